package rod

import (
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"tracking-cog/internal/capture"
	"tracking-cog/internal/domain/entity"
)

// networkRecorder turns CDP network events into CapturedRequest entries.
// All handlers run on the single event goroutine of the page, so pending is
// never touched concurrently with itself; the lock only guards against reset
// and inspection from step goroutines.
type networkRecorder struct {
	page *rod.Page
	log  *capture.RequestLog

	mu       sync.Mutex
	pending  map[proto.NetworkRequestID]*entity.CapturedRequest
	lastResp *entity.NavigationResponse
	lastSeen time.Time
}

func newNetworkRecorder(page *rod.Page) *networkRecorder {
	return &networkRecorder{
		page:     page,
		log:      capture.NewRequestLog(),
		pending:  make(map[proto.NetworkRequestID]*entity.CapturedRequest),
		lastSeen: time.Now(),
	}
}

// handlers returns the callbacks for page.EachEvent.
func (r *networkRecorder) handlers() []any {
	return []any{
		r.onRequestWillBeSent,
		r.onResponseReceived,
		r.onLoadingFinished,
		r.onLoadingFailed,
	}
}

func (r *networkRecorder) onRequestWillBeSent(ev *proto.NetworkRequestWillBeSent) {
	if ev.Request == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = time.Now()

	// A redirect reuses the request id: the previous hop is complete.
	if prev, ok := r.pending[ev.RequestID]; ok && ev.RedirectResponse != nil {
		prev.Status = ev.RedirectResponse.Status
		prev.FinishedAt = time.Now()
		r.log.Record(*prev)
	}

	req := &entity.CapturedRequest{
		ID:           string(ev.RequestID),
		URL:          ev.Request.URL + ev.Request.URLFragment,
		Method:       ev.Request.Method,
		ResourceType: string(ev.Type),
		PostBody:     ev.Request.PostData,
		HasPostBody:  ev.Request.HasPostData || ev.Request.PostData != "",
		Headers:      lowerHeaders(ev.Request.Headers),
		FrameID:      string(ev.FrameID),
		StartedAt:    time.Now(),
	}
	r.pending[ev.RequestID] = req
}

func (r *networkRecorder) onResponseReceived(ev *proto.NetworkResponseReceived) {
	if ev.Response == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = time.Now()

	if req, ok := r.pending[ev.RequestID]; ok {
		req.Status = ev.Response.Status
	}

	if ev.Type == proto.NetworkResourceTypeDocument && ev.FrameID == r.page.FrameID {
		r.lastResp = &entity.NavigationResponse{
			URL:        ev.Response.URL,
			Status:     ev.Response.Status,
			StatusText: ev.Response.StatusText,
			MimeType:   ev.Response.MIMEType,
			Headers:    lowerHeaders(ev.Response.Headers),
		}
	}
}

func (r *networkRecorder) onLoadingFinished(ev *proto.NetworkLoadingFinished) {
	req := r.take(ev.RequestID)
	if req == nil {
		return
	}

	if req.HasPostBody && req.PostBody == "" {
		// Large bodies are not inlined in the event. Failing to fetch one
		// still records the request.
		if res, err := (proto.NetworkGetRequestPostData{RequestID: ev.RequestID}).Call(r.page); err == nil {
			req.PostBody = res.PostData
		}
	}

	req.FinishedAt = time.Now()
	r.log.Record(*req)
}

func (r *networkRecorder) onLoadingFailed(ev *proto.NetworkLoadingFailed) {
	req := r.take(ev.RequestID)
	if req == nil {
		return
	}

	req.Failed = true
	req.FailureText = ev.ErrorText
	req.Status = 0
	req.FinishedAt = time.Now()
	r.log.Record(*req)
}

func (r *networkRecorder) take(id proto.NetworkRequestID) *entity.CapturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = time.Now()
	req, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return req
}

// reset forgets everything that belongs to the previous page, including
// requests still in flight.
func (r *networkRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.pending)
	r.lastResp = nil
	r.log.Reset()
}

func (r *networkRecorder) lastResponse() (entity.NavigationResponse, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastResp == nil {
		return entity.NavigationResponse{}, false
	}
	return *r.lastResp, true
}

// quietFor reports whether no request is in flight and no network event
// arrived during the last d.
func (r *networkRecorder) quietFor(d time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending) == 0 && time.Since(r.lastSeen) >= d
}

func lowerHeaders(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v.String()
	}
	return out
}
