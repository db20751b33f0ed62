// Package capture holds the per-session record of observed network traffic.
package capture

import (
	"iter"
	"sync"

	"tracking-cog/internal/domain/entity"
)

// RequestLog is an append-only, insertion-ordered list of captured requests.
// Writers append from the CDP event goroutine while steps read snapshots.
type RequestLog struct {
	mu      sync.RWMutex
	entries []entity.CapturedRequest
	resets  int
}

func NewRequestLog() *RequestLog {
	return &RequestLog{}
}

// Record appends a request. It never fails; partially populated requests are
// kept as they are.
func (l *RequestLog) Record(req entity.CapturedRequest) {
	if req.Headers != nil {
		h := make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			h[k] = v
		}
		req.Headers = h
	}

	l.mu.Lock()
	l.entries = append(l.entries, req)
	l.mu.Unlock()
}

// Reset drops every recorded request. Sessions call it once per top-level
// navigation, before the navigation starts.
func (l *RequestLog) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.resets++
	l.mu.Unlock()
}

// Snapshot returns a restartable sequence over the requests recorded at the
// time of the call. Later appends are not visible to it.
func (l *RequestLog) Snapshot() iter.Seq[entity.CapturedRequest] {
	l.mu.RLock()
	// Reset replaces the slice and Record only appends, so the prefix
	// captured here is never written again.
	view := l.entries[:len(l.entries):len(l.entries)]
	l.mu.RUnlock()

	return func(yield func(entity.CapturedRequest) bool) {
		for _, req := range view {
			if !yield(req) {
				return
			}
		}
	}
}

func (l *RequestLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recently recorded request.
func (l *RequestLog) Last() (entity.CapturedRequest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return entity.CapturedRequest{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Resets reports how many times the log was cleared.
func (l *RequestLog) Resets() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resets
}
