package rod

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/infrastructure/logger"
	"tracking-cog/internal/infrastructure/metrics"
)

type fakeSession struct {
	output.Session

	id     string
	resets atomic.Int32
	dead   atomic.Bool
	closed atomic.Bool
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) reset(context.Context) error {
	f.resets.Add(1)
	return nil
}

func (f *fakeSession) healthy(context.Context) bool {
	return !f.dead.Load() && !f.closed.Load()
}

func (f *fakeSession) close() error {
	f.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeSession
	closed  bool
	pingErr error
}

func (f *fakeFactory) NewSession(ctx context.Context) (pooledSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{id: fmt.Sprintf("s%d", len(f.created)+1)}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeFactory) Ping(context.Context) error { return f.pingErr }

func (f *fakeFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestPool(t *testing.T, size int) (*Pool, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	return newPool(f, size, logger.NewFromZap(zap.NewNop()), metrics.New(prometheus.NewRegistry())), f
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p, f := newTestPool(t, 2)
	ctx := context.Background()

	a, err := p.Acquire(ctx, "a")
	require.NoError(t, err)
	_, err = p.Acquire(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count())

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short, "c")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan output.Session, 1)
	go func() {
		s, err := p.Acquire(ctx, "c")
		assert.NoError(t, err)
		got <- s
	}()

	p.Release(a)
	select {
	case s := <-got:
		assert.Equal(t, a.ID(), s.ID(), "the freed page is reused")
	case <-time.After(2 * time.Second):
		t.Fatal("waiting acquire was not woken by release")
	}
	assert.Equal(t, 2, f.count())
}

func TestPool_AffinityAndLIFO(t *testing.T) {
	p, _ := newTestPool(t, 2)
	ctx := context.Background()

	a, err := p.Acquire(ctx, "scenario-a")
	require.NoError(t, err)
	b, err := p.Acquire(ctx, "scenario-b")
	require.NoError(t, err)

	p.Release(a)
	p.Release(b)

	again, err := p.Acquire(ctx, "scenario-a")
	require.NoError(t, err)
	assert.Equal(t, a.ID(), again.ID(), "same key gets its own page back")
	assert.Zero(t, again.(*fakeSession).resets.Load())

	other, err := p.Acquire(ctx, "scenario-c")
	require.NoError(t, err)
	assert.Equal(t, b.ID(), other.ID(), "a full pool hands over the latest idle page")
	assert.Equal(t, int32(1), other.(*fakeSession).resets.Load(), "a page changing hands is reset")
}

func TestPool_OtherKeyOpensNewPageBelowCapacity(t *testing.T) {
	p, f := newTestPool(t, 4)
	ctx := context.Background()

	a, err := p.Acquire(ctx, "scenario-a")
	require.NoError(t, err)
	p.Release(a)

	b, err := p.Acquire(ctx, "scenario-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, f.count())
	assert.Zero(t, a.(*fakeSession).resets.Load(), "an idle page of another scenario is left alone")

	again, err := p.Acquire(ctx, "scenario-a")
	require.NoError(t, err)
	assert.Equal(t, a.ID(), again.ID())
	assert.Zero(t, again.(*fakeSession).resets.Load())

	p.Release(b)
	p.Release(again)
	inUse, idle := p.Stats()
	assert.Zero(t, inUse)
	assert.Equal(t, 2, idle)
}

func TestPool_NeverExceedsSizeWithForeignIdlePages(t *testing.T) {
	p, f := newTestPool(t, 2)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c", "d"} {
		s, err := p.Acquire(ctx, key)
		require.NoError(t, err)
		p.Release(s)
	}
	assert.Equal(t, 2, f.count())
	_, idle := p.Stats()
	assert.Equal(t, 2, idle)
}

func TestPool_DiscardsDeadSessions(t *testing.T) {
	p, f := newTestPool(t, 1)
	ctx := context.Background()

	s, err := p.Acquire(ctx, "k")
	require.NoError(t, err)
	s.(*fakeSession).dead.Store(true)
	p.Release(s)

	assert.True(t, s.(*fakeSession).closed.Load())
	inUse, idle := p.Stats()
	assert.Zero(t, inUse)
	assert.Zero(t, idle)

	fresh, err := p.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), fresh.ID())
	assert.Equal(t, 2, f.count())
}

func TestPool_IdleDeathDetectedAtCheckout(t *testing.T) {
	p, f := newTestPool(t, 1)
	ctx := context.Background()

	s, err := p.Acquire(ctx, "k")
	require.NoError(t, err)
	p.Release(s)
	s.(*fakeSession).dead.Store(true)

	fresh, err := p.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), fresh.ID())
	assert.Equal(t, 2, f.count())
}

func TestPool_DoubleReleaseIsNoop(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	s, err := p.Acquire(ctx, "k")
	require.NoError(t, err)
	p.Release(s)
	assert.NotPanics(t, func() { p.Release(s) })
	p.Release(nil)

	_, err = p.Acquire(ctx, "k")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short, "k")
	assert.Error(t, err, "a double release must not create an extra slot")
}

func TestPool_Close(t *testing.T) {
	p, f := newTestPool(t, 2)
	ctx := context.Background()

	idle, err := p.Acquire(ctx, "a")
	require.NoError(t, err)
	busy, err := p.Acquire(ctx, "b")
	require.NoError(t, err)
	p.Release(idle)

	require.NoError(t, p.Close())
	assert.True(t, idle.(*fakeSession).closed.Load())
	assert.False(t, busy.(*fakeSession).closed.Load())
	assert.True(t, f.closed)

	_, err = p.Acquire(ctx, "c")
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Release(busy)
	assert.True(t, busy.(*fakeSession).closed.Load(), "in-use pages are closed when returned after Close")
	assert.ErrorIs(t, p.Health(ctx), ErrPoolClosed)
}

func TestPool_Health(t *testing.T) {
	p, f := newTestPool(t, 1)
	assert.NoError(t, p.Health(context.Background()))

	f.pingErr = ErrSessionClosed
	assert.ErrorIs(t, p.Health(context.Background()), ErrSessionClosed)
}
