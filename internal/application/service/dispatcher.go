package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"tracking-cog/internal/application/port/input"
	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/infrastructure/logger"

	"github.com/google/uuid"
)

var _ input.StepRunner = (*Dispatcher)(nil)

var errNoResponse = errors.New("step returned no response")

// ManifestInfo is the static part of the cog manifest.
type ManifestInfo struct {
	Name       string
	Label      string
	Version    string
	Homepage   string
	AuthFields []entity.FieldDefinition
}

// Dispatcher routes step requests to registered steps, each on a pooled
// browser session. Every request gets exactly one response.
type Dispatcher struct {
	registry output.StepRegistry
	pool     output.PagePool
	metrics  output.MetricsPort
	log      output.LoggerPort
	info     ManifestInfo
}

func NewDispatcher(
	registry output.StepRegistry,
	pool output.PagePool,
	metrics output.MetricsPort,
	log output.LoggerPort,
	info ManifestInfo,
) *Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dispatcher{
		registry: registry,
		pool:     pool,
		metrics:  metrics,
		log:      log,
		info:     info,
	}
}

func (d *Dispatcher) Manifest() *entity.CogManifest {
	auth := d.info.AuthFields
	if auth == nil {
		auth = []entity.FieldDefinition{}
	}
	return &entity.CogManifest{
		Name:            d.info.Name,
		Label:           d.info.Label,
		Version:         d.info.Version,
		Homepage:        d.info.Homepage,
		AuthFields:      auth,
		StepDefinitions: d.registry.Definitions(),
	}
}

// Run executes a single step. Cancelling ctx does not interrupt the step;
// every browser wait inside it carries its own timeout.
func (d *Dispatcher) Run(ctx context.Context, req *entity.StepRequest) *entity.StepResponse {
	key := req.ScenarioID
	if key == "" {
		key = req.RequestID
	}
	if key == "" {
		key = uuid.NewString()
	}
	return d.execute(context.WithoutCancel(ctx), req, key)
}

// Serve answers every request received on stream, in completion order. It
// returns nil once the client has half-closed and every response is written,
// or the receive error that ended the stream early.
func (d *Dispatcher) Serve(stream input.StepStream) error {
	streamID := uuid.NewString()
	log := d.log.WithField("stream_id", streamID)
	log.Debug("stream opened")
	d.metrics.StreamOpened()
	defer d.metrics.StreamClosed()

	ctx := context.WithoutCancel(stream.Context())
	state := newDispatchState(stream, log)

	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			state.halfClose()
			break
		}
		if err != nil {
			state.terminate()
			log.Warn("stream receive failed", "error", err, "in_flight", state.pending())
			return err
		}
		if req == nil {
			continue
		}

		key := req.ScenarioID
		if key == "" {
			key = streamID
		}
		state.begin()
		go func() {
			defer state.finish()
			state.send(d.execute(ctx, req, key))
		}()
	}

	select {
	case <-state.done:
		log.Debug("stream closed")
		return nil
	case <-stream.Context().Done():
		state.terminate()
		return stream.Context().Err()
	}
}

func (d *Dispatcher) execute(ctx context.Context, req *entity.StepRequest, key string) *entity.StepResponse {
	start := time.Now()
	log := logger.StepLogger(d.log, req)

	var resp *entity.StepResponse
	step, ok := d.registry.Get(req.StepID)
	if !ok {
		resp = &entity.StepResponse{
			Outcome:       entity.OutcomeError,
			MessageFormat: "Unknown step %s",
			MessageArgs:   []any{req.StepID},
		}
	} else {
		d.metrics.StepStarted(req.StepID)
		resp = d.invoke(ctx, step, req, key, log)
		d.metrics.StepFinished(req.StepID, resp.Outcome, time.Since(start))
	}

	resp.RequestID = req.RequestID
	resp.StepID = req.StepID
	logger.LogStepResult(log, resp, start)
	return resp
}

func (d *Dispatcher) invoke(ctx context.Context, step output.StepPort, req *entity.StepRequest, key string, log output.LoggerPort) (resp *entity.StepResponse) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			log.Error("step panicked", "panic", r, "stack", stack)
			resp = errorResponse(fmt.Sprint(r), map[string]any{"error": fmt.Sprint(r), "stack": stack})
		}
	}()

	sess, err := d.pool.Acquire(ctx, key)
	if err != nil {
		return errorResponse(err.Error(), map[string]any{"error": err.Error()})
	}
	defer d.pool.Release(sess)

	resp, err = step.Execute(ctx, sess, req.Data)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		return errorResponse(err.Error(), map[string]any{"error": err.Error()})
	}
	return resp
}

func errorResponse(message string, detail map[string]any) *entity.StepResponse {
	return &entity.StepResponse{
		Outcome:       entity.OutcomeError,
		MessageFormat: "%s",
		MessageArgs:   []any{message},
		Records: []entity.Record{
			{ID: "error", Name: "Error", KeyValue: &entity.KeyValue{Map: detail}},
		},
	}
}

// dispatchState tracks one duplex stream. Sends are serialized on sendMu, and
// nothing is written once the stream has terminated. mu guards the counters
// only and is never held across a Send, so a slow client cannot stall begin.
type dispatchState struct {
	stream input.StepStream
	log    output.LoggerPort

	sendMu sync.Mutex

	mu               sync.Mutex
	inFlight         int
	clientHalfClosed bool
	terminated       bool
	done             chan struct{}
}

func newDispatchState(stream input.StepStream, log output.LoggerPort) *dispatchState {
	return &dispatchState{stream: stream, log: log, done: make(chan struct{})}
}

func (s *dispatchState) begin() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *dispatchState) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if s.clientHalfClosed && s.inFlight == 0 {
		s.terminateLocked()
	}
}

func (s *dispatchState) halfClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientHalfClosed = true
	if s.inFlight == 0 {
		s.terminateLocked()
	}
}

func (s *dispatchState) send(resp *entity.StepResponse) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	terminated := s.terminated
	s.mu.Unlock()
	if terminated {
		s.log.Debug("dropping response for terminated stream", "request_id", resp.RequestID)
		return
	}
	if err := s.stream.Send(resp); err != nil {
		s.log.Warn("stream send failed", "request_id", resp.RequestID, "error", err)
		s.terminate()
	}
}

func (s *dispatchState) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked()
}

func (s *dispatchState) terminateLocked() {
	if s.terminated {
		return
	}
	s.terminated = true
	close(s.done)
}

func (s *dispatchState) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

type nopMetrics struct{}

func (nopMetrics) StepStarted(string)                                 {}
func (nopMetrics) StepFinished(string, entity.Outcome, time.Duration) {}
func (nopMetrics) StreamOpened()                                      {}
func (nopMetrics) StreamClosed()                                      {}
func (nopMetrics) PoolUsage(int, int)                                 {}
func (nopMetrics) PoolWait(time.Duration)                             {}
