package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type funcStep struct {
	id string
	fn func(ctx context.Context, data map[string]any) (*entity.StepResponse, error)
}

func (s funcStep) Definition() entity.StepDefinition {
	return entity.StepDefinition{StepID: s.id, Name: s.id, Expression: s.id, Type: entity.StepTypeAction}
}

func (s funcStep) Execute(ctx context.Context, _ output.Session, data map[string]any) (*entity.StepResponse, error) {
	return s.fn(ctx, data)
}

// stubPool hands out nil sessions and counts checkouts.
type stubPool struct {
	mu       sync.Mutex
	acquired int
	released int
	keys     []string
	err      error
}

func (p *stubPool) Acquire(_ context.Context, key string) (output.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	p.keys = append(p.keys, key)
	return nil, nil
}

func (p *stubPool) Release(output.Session) {
	p.mu.Lock()
	p.released++
	p.mu.Unlock()
}

func (p *stubPool) Close() error { return nil }

func (p *stubPool) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

// chanStream feeds requests from a channel; closing it yields io.EOF.
type chanStream struct {
	ctx     context.Context
	in      chan *entity.StepRequest
	recvErr error

	mu    sync.Mutex
	sent  []*entity.StepResponse
	sends atomic.Int32
}

func newChanStream(ctx context.Context) *chanStream {
	return &chanStream{ctx: ctx, in: make(chan *entity.StepRequest, 16)}
}

func (s *chanStream) Context() context.Context { return s.ctx }

func (s *chanStream) Recv() (*entity.StepRequest, error) {
	req, ok := <-s.in
	if !ok {
		if s.recvErr != nil {
			return nil, s.recvErr
		}
		return nil, io.EOF
	}
	return req, nil
}

func (s *chanStream) Send(resp *entity.StepResponse) error {
	if s.sends.Add(1) > 1 {
		panic("concurrent Send")
	}
	defer s.sends.Add(-1)
	s.mu.Lock()
	s.sent = append(s.sent, resp)
	s.mu.Unlock()
	return nil
}

func (s *chanStream) responses() []*entity.StepResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.StepResponse(nil), s.sent...)
}

func newTestDispatcher(pool output.PagePool, steps ...output.StepPort) *Dispatcher {
	return NewDispatcher(NewStepRegistry(steps...), pool, nil, logger.NewFromZap(zap.NewNop()), ManifestInfo{
		Name:    "tracking-cog",
		Label:   "Tracking",
		Version: "test",
	})
}

func passStep(id string) funcStep {
	return funcStep{id: id, fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		return &entity.StepResponse{Outcome: entity.OutcomePassed, MessageFormat: "ok"}, nil
	}}
}

func serve(t *testing.T, d *Dispatcher, stream *chanStream) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Serve(stream) }()
	return done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServe_OneResponsePerRequest(t *testing.T) {
	pool := &stubPool{}
	d := newTestDispatcher(pool, passStep("Pass"))
	stream := newChanStream(context.Background())
	done := serve(t, d, stream)

	const n = 25
	for i := 0; i < n; i++ {
		stream.in <- &entity.StepRequest{RequestID: string(rune('a' + i)), StepID: "Pass"}
	}
	close(stream.in)

	require.NoError(t, waitServe(t, done))
	resps := stream.responses()
	require.Len(t, resps, n)

	ids := map[string]bool{}
	for _, r := range resps {
		assert.Equal(t, entity.OutcomePassed, r.Outcome)
		ids[r.RequestID] = true
	}
	assert.Len(t, ids, n)

	acquired, released := pool.counts()
	assert.Equal(t, n, acquired)
	assert.Equal(t, n, released)
}

func TestServe_WaitsForInFlightAfterHalfClose(t *testing.T) {
	gate := make(chan struct{})
	slow := funcStep{id: "Slow", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		<-gate
		return &entity.StepResponse{Outcome: entity.OutcomePassed, MessageFormat: "slow"}, nil
	}}
	d := newTestDispatcher(&stubPool{}, slow)
	stream := newChanStream(context.Background())
	done := serve(t, d, stream)

	stream.in <- &entity.StepRequest{RequestID: "1", StepID: "Slow"}
	close(stream.in)

	select {
	case <-done:
		t.Fatal("stream ended with a step still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, waitServe(t, done))
	require.Len(t, stream.responses(), 1)
}

// gatedStream blocks its first Send until gate is closed.
type gatedStream struct {
	*chanStream
	gate    chan struct{}
	blocked chan struct{}
	once    sync.Once
}

func (s *gatedStream) Send(resp *entity.StepResponse) error {
	s.once.Do(func() {
		close(s.blocked)
		<-s.gate
	})
	return s.chanStream.Send(resp)
}

func TestServe_SlowSendDoesNotStallReceive(t *testing.T) {
	started := make(chan struct{})
	second := funcStep{id: "Second", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		close(started)
		return &entity.StepResponse{Outcome: entity.OutcomePassed, MessageFormat: "second"}, nil
	}}
	d := newTestDispatcher(&stubPool{}, passStep("Pass"), second)
	stream := &gatedStream{
		chanStream: newChanStream(context.Background()),
		gate:       make(chan struct{}),
		blocked:    make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() { done <- d.Serve(stream) }()

	stream.in <- &entity.StepRequest{RequestID: "1", StepID: "Pass"}
	select {
	case <-stream.blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("first response was never sent")
	}

	stream.in <- &entity.StepRequest{RequestID: "2", StepID: "Second"}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked Send kept the next request from being dispatched")
	}

	close(stream.gate)
	close(stream.in)
	require.NoError(t, waitServe(t, done))

	resps := stream.responses()
	require.Len(t, resps, 2)
	assert.Equal(t, "1", resps[0].RequestID)
	assert.Equal(t, "2", resps[1].RequestID)
}

func TestServe_EmptyStreamEndsImmediately(t *testing.T) {
	d := newTestDispatcher(&stubPool{})
	stream := newChanStream(context.Background())
	close(stream.in)
	require.NoError(t, waitServe(t, serve(t, d, stream)))
	assert.Empty(t, stream.responses())
}

func TestServe_CompletionOrder(t *testing.T) {
	first := make(chan struct{})
	blocked := funcStep{id: "Blocked", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		<-first
		return &entity.StepResponse{Outcome: entity.OutcomePassed, MessageFormat: "blocked"}, nil
	}}
	d := newTestDispatcher(&stubPool{}, blocked, passStep("Pass"))
	stream := newChanStream(context.Background())
	done := serve(t, d, stream)

	stream.in <- &entity.StepRequest{RequestID: "slow", StepID: "Blocked"}
	stream.in <- &entity.StepRequest{RequestID: "fast", StepID: "Pass"}

	require.Eventually(t, func() bool { return len(stream.responses()) == 1 }, 2*time.Second, 5*time.Millisecond)
	close(first)
	close(stream.in)
	require.NoError(t, waitServe(t, done))

	resps := stream.responses()
	require.Len(t, resps, 2)
	assert.Equal(t, "fast", resps[0].RequestID)
	assert.Equal(t, "slow", resps[1].RequestID)
}

func TestServe_UnknownStep(t *testing.T) {
	pool := &stubPool{}
	d := newTestDispatcher(pool)
	stream := newChanStream(context.Background())
	done := serve(t, d, stream)

	stream.in <- &entity.StepRequest{RequestID: "1", StepID: "DoesNotExist"}
	close(stream.in)
	require.NoError(t, waitServe(t, done))

	resps := stream.responses()
	require.Len(t, resps, 1)
	assert.Equal(t, entity.OutcomeError, resps[0].Outcome)
	assert.Equal(t, "Unknown step %s", resps[0].MessageFormat)
	assert.Equal(t, []any{"DoesNotExist"}, resps[0].MessageArgs)
	assert.Equal(t, "1", resps[0].RequestID)

	acquired, _ := pool.counts()
	assert.Zero(t, acquired)
}

func TestServe_RecvErrorDropsLateResponses(t *testing.T) {
	gate := make(chan struct{})
	var finished atomic.Bool
	slow := funcStep{id: "Slow", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		<-gate
		finished.Store(true)
		return &entity.StepResponse{Outcome: entity.OutcomePassed}, nil
	}}
	pool := &stubPool{}
	d := newTestDispatcher(pool, slow)
	stream := newChanStream(context.Background())
	stream.recvErr = errors.New("transport closed")
	done := serve(t, d, stream)

	stream.in <- &entity.StepRequest{RequestID: "1", StepID: "Slow"}
	close(stream.in)
	require.EqualError(t, waitServe(t, done), "transport closed")

	close(gate)
	require.Eventually(t, finished.Load, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, released := pool.counts()
		return released == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, stream.responses())
}

func TestServe_AffinityKey(t *testing.T) {
	pool := &stubPool{}
	d := newTestDispatcher(pool, passStep("Pass"))
	stream := newChanStream(context.Background())
	done := serve(t, d, stream)

	stream.in <- &entity.StepRequest{RequestID: "1", ScenarioID: "scenario-1", StepID: "Pass"}
	close(stream.in)
	require.NoError(t, waitServe(t, done))
	assert.Equal(t, []string{"scenario-1"}, pool.keys)
}

func TestRun_StepFailures(t *testing.T) {
	panicky := funcStep{id: "Panic", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		panic("boom")
	}}
	failing := funcStep{id: "Err", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		return nil, errors.New("element not found")
	}}
	empty := funcStep{id: "Empty", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		return nil, nil
	}}
	pool := &stubPool{}
	d := newTestDispatcher(pool, panicky, failing, empty)

	tests := []struct {
		stepID  string
		message string
	}{
		{"Panic", "boom"},
		{"Err", "element not found"},
		{"Empty", errNoResponse.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.stepID, func(t *testing.T) {
			resp := d.Run(context.Background(), &entity.StepRequest{RequestID: "r", StepID: tt.stepID})
			require.NotNil(t, resp)
			assert.Equal(t, entity.OutcomeError, resp.Outcome)
			assert.Equal(t, tt.message, resp.Message())
			assert.Equal(t, tt.stepID, resp.StepID)
			require.Len(t, resp.Records, 1)
			require.NotNil(t, resp.Records[0].KeyValue)
			assert.Equal(t, tt.message, resp.Records[0].KeyValue.Map["error"])
		})
	}

	acquired, released := pool.counts()
	assert.Equal(t, acquired, released)
}

func TestRun_PanicRecordCarriesStack(t *testing.T) {
	panicky := funcStep{id: "Panic", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		panic("boom")
	}}
	d := newTestDispatcher(&stubPool{}, panicky)
	resp := d.Run(context.Background(), &entity.StepRequest{StepID: "Panic"})
	assert.Contains(t, resp.Records[0].KeyValue.Map["stack"], "goroutine")
}

func TestRun_PoolError(t *testing.T) {
	d := newTestDispatcher(&stubPool{err: errors.New("page pool closed")}, passStep("Pass"))
	resp := d.Run(context.Background(), &entity.StepRequest{StepID: "Pass"})
	assert.Equal(t, entity.OutcomeError, resp.Outcome)
	assert.Equal(t, "page pool closed", resp.Message())
}

func TestRun_CancelledContextDoesNotInterruptStep(t *testing.T) {
	var sawCancel atomic.Bool
	step := funcStep{id: "Check", fn: func(ctx context.Context, _ map[string]any) (*entity.StepResponse, error) {
		sawCancel.Store(ctx.Err() != nil)
		return &entity.StepResponse{Outcome: entity.OutcomePassed}, nil
	}}
	d := newTestDispatcher(&stubPool{}, step)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := d.Run(ctx, &entity.StepRequest{StepID: "Check"})
	assert.Equal(t, entity.OutcomePassed, resp.Outcome)
	assert.False(t, sawCancel.Load())
}

func TestManifest(t *testing.T) {
	d := newTestDispatcher(&stubPool{}, passStep("B"), passStep("A"))
	m := d.Manifest()
	assert.Equal(t, "tracking-cog", m.Name)
	assert.NotNil(t, m.AuthFields)
	require.Len(t, m.StepDefinitions, 2)
	assert.Equal(t, "B", m.StepDefinitions[0].StepID)
	assert.Equal(t, "A", m.StepDefinitions[1].StepID)
}

func TestStepRegistry_ReplaceKeepsOrder(t *testing.T) {
	r := NewStepRegistry(passStep("A"), passStep("B"))
	replacement := funcStep{id: "A", fn: func(context.Context, map[string]any) (*entity.StepResponse, error) {
		return &entity.StepResponse{Outcome: entity.OutcomeFailed}, nil
	}}
	r.Register(replacement)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Definition().StepID)
	resp, err := all[0].Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeFailed, resp.Outcome)

	_, ok := r.Get("missing")
	assert.False(t, ok)
}
