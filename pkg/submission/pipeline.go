// Package submission turns a validated capture into one outbound request and
// tracks its outcome.
//
// A Pipeline moves idle -> pending -> success | error. It never retries on
// its own; calling Submit again from either terminal state re-enters
// pending. After Close, any response still in flight is discarded.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/validation"
)

var (
	ErrNotValidated      = errors.New("payload has not passed validation")
	ErrAlreadySubmitting = errors.New("submission already pending")
	ErrClosed            = errors.New("submission pipeline closed")
)

// Status is the position of a Pipeline in its lifecycle.
type Status int

const (
	Idle Status = iota
	Pending
	Success
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome describes the latest submission attempt.
type Outcome struct {
	Attempt     int             `json:"attempt"`
	Status      Status          `json:"status"`
	Message     string          `json:"message,omitempty"`
	Result      *backend.Result `json:"result,omitempty"`
	Err         error           `json:"-"`
	SubmittedAt time.Time       `json:"submitted_at,omitzero"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// Options configures a Pipeline.
type Options struct {
	// OnComplete is called once per attempt that reaches a terminal status
	// while the pipeline is still open. It runs on the request goroutine
	// and Wait returns only after it does.
	OnComplete func(Request, Outcome)
	Logger     *slog.Logger
}

// Request is the payload of one attempt.
type Request = backend.Request

// Pipeline submits payloads through a backend.Client.
type Pipeline struct {
	client     backend.Client
	onComplete func(Request, Outcome)
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	outcome Outcome
	done    chan struct{}
	closed  bool
}

// New creates an idle Pipeline.
func New(client backend.Client, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		client:     client,
		onComplete: opts.OnComplete,
		logger:     logger.With("system", "submission"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit starts one outbound request for req. The verdict must be valid;
// otherwise ErrNotValidated is returned and nothing is sent. Submit returns
// once the pipeline is pending; use Wait to observe the result.
func (p *Pipeline) Submit(req Request, verdict validation.Verdict) error {
	if !verdict.Valid() {
		return ErrNotValidated
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.outcome.Status == Pending {
		return ErrAlreadySubmitting
	}

	attempt := p.outcome.Attempt + 1
	p.outcome = Outcome{
		Attempt:     attempt,
		Status:      Pending,
		SubmittedAt: time.Now().UTC(),
	}
	done := make(chan struct{})
	p.done = done

	p.logger.Info("submission pending", "kind", req.Kind, "attempt", attempt)
	go p.run(req, attempt, done)
	return nil
}

func (p *Pipeline) run(req Request, attempt int, done chan struct{}) {
	result, err := p.client.Submit(p.ctx, req)

	p.mu.Lock()
	if p.closed || p.outcome.Attempt != attempt {
		p.mu.Unlock()
		p.logger.Debug("discarding late response", "attempt", attempt)
		return
	}

	o := p.outcome
	o.CompletedAt = time.Now().UTC()
	if err != nil {
		o.Status = Failed
		o.Err = err
		o.Message = backend.Message(err)
	} else {
		o.Status = Success
		o.Result = result
	}
	p.outcome = o
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("submission failed", "attempt", attempt, "error", err)
	} else {
		p.logger.Info("submission succeeded", "attempt", attempt)
	}

	if p.onComplete != nil {
		p.onComplete(req, o)
	}
	close(done)
}

// Wait blocks until the current attempt completes or ctx is done, and
// returns the latest outcome. An idle pipeline returns immediately.
func (p *Pipeline) Wait(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	done := p.done
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return p.Outcome(), ErrClosed
	}
	if done == nil {
		return p.Outcome(), nil
	}

	select {
	case <-done:
	case <-p.ctx.Done():
		return p.Outcome(), ErrClosed
	case <-ctx.Done():
		return p.Outcome(), ctx.Err()
	}
	return p.Outcome(), nil
}

// Outcome returns the latest attempt.
func (p *Pipeline) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Status returns the current status.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome.Status
}

// Close cancels any in-flight request. A response that arrives afterwards
// is discarded and OnComplete is not called. Close does not block.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.outcome.Status == Pending
	p.mu.Unlock()

	p.cancel()
	if pending {
		p.logger.Info("submission abandoned", "attempt", p.Outcome().Attempt)
	}
}
