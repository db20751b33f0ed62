package rod

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tracking-cog/internal/application/port/output"
)

var _ output.PagePool = (*Pool)(nil)

type pooledSession interface {
	output.Session
	reset(ctx context.Context) error
	healthy(ctx context.Context) bool
	close() error
}

type sessionFactory interface {
	NewSession(ctx context.Context) (pooledSession, error)
	Ping(ctx context.Context) error
	Close() error
}

type slot struct {
	sess pooledSession
	key  string
}

// Pool bounds the number of open tabs. A key gets its own idle page back;
// otherwise a new page is opened while below capacity, and only a full pool
// hands over (and resets) the most recently returned page of another key.
type Pool struct {
	factory sessionFactory
	sem     *semaphore.Weighted
	log     output.LoggerPort
	metrics output.MetricsPort

	size    int
	mu      sync.Mutex
	idle    []*slot
	inUse   map[string]*slot
	opening int
	closed  bool
}

func NewPool(browser *Browser, log output.LoggerPort, metrics output.MetricsPort) *Pool {
	return newPool(browser, browser.cfg.PoolSize, log, metrics)
}

func newPool(factory sessionFactory, size int, log output.LoggerPort, metrics output.MetricsPort) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		factory: factory,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		log:     log,
		metrics: metrics,
		inUse:   make(map[string]*slot),
	}
}

func (p *Pool) Acquire(ctx context.Context, key string) (output.Session, error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for page: %w", err)
	}
	p.metrics.PoolWait(time.Since(start))

	s, err := p.checkout(ctx, key)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	p.mu.Lock()
	p.inUse[s.sess.ID()] = s
	p.reportLocked()
	p.mu.Unlock()

	return s.sess, nil
}

func (p *Pool) checkout(ctx context.Context, key string) (*slot, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	s := p.takeIdleLocked(key)
	p.mu.Unlock()

	if s != nil {
		switch {
		case !s.sess.healthy(ctx):
			p.log.Warn("discarding dead session", "session", s.sess.ID())
			_ = s.sess.close()
			s = nil
		case s.key != key:
			if err := s.sess.reset(ctx); err != nil {
				p.log.Warn("session reset failed, replacing", "session", s.sess.ID(), "error", err)
				_ = s.sess.close()
				s = nil
			}
		}
	}

	if s == nil {
		sess, err := p.open(ctx)
		if err != nil {
			return nil, err
		}
		s = &slot{sess: sess}
	}

	s.key = key
	return s, nil
}

// open creates a session. The opening counter keeps concurrent creations
// visible to takeIdleLocked's capacity check.
func (p *Pool) open(ctx context.Context) (pooledSession, error) {
	p.mu.Lock()
	p.opening++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.opening--
		p.mu.Unlock()
	}()

	sess, err := p.factory.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	p.log.Debug("session opened", "session", sess.ID())
	return sess, nil
}

// takeIdleLocked returns the most recent idle slot with a matching key. A
// page belonging to another key is only taken once the pool is full, so
// concurrent scenarios keep their own pages while capacity remains.
func (p *Pool) takeIdleLocked(key string) *slot {
	if len(p.idle) == 0 {
		return nil
	}

	idx := -1
	for i := len(p.idle) - 1; i >= 0; i-- {
		if p.idle[i].key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		if len(p.inUse)+len(p.idle)+p.opening < p.size {
			return nil
		}
		idx = len(p.idle) - 1
	}

	s := p.idle[idx]
	p.idle = append(p.idle[:idx], p.idle[idx+1:]...)
	return s
}

// Release returns sess to the pool. A session whose browser went away is
// closed instead of kept. Releasing an unknown or already released session
// is a no-op.
func (p *Pool) Release(sess output.Session) {
	if sess == nil {
		return
	}

	p.mu.Lock()
	s, ok := p.inUse[sess.ID()]
	if ok {
		delete(p.inUse, sess.ID())
	}
	closed := p.closed
	p.mu.Unlock()
	if !ok {
		return
	}
	defer p.sem.Release(1)

	keep := !closed && s.sess.healthy(context.Background())

	p.mu.Lock()
	if keep && !p.closed {
		p.idle = append(p.idle, s)
	} else {
		keep = false
	}
	p.reportLocked()
	p.mu.Unlock()

	if !keep {
		p.log.Debug("session discarded", "session", s.sess.ID())
		_ = s.sess.close()
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.reportLocked()
	p.mu.Unlock()

	var errs []error
	for _, s := range idle {
		if err := s.sess.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.factory.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Health reports whether the browser process still answers.
func (p *Pool) Health(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}
	return p.factory.Ping(ctx)
}

func (p *Pool) Stats() (inUse, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse), len(p.idle)
}

func (p *Pool) reportLocked() {
	p.metrics.PoolUsage(len(p.inUse), len(p.idle))
}
