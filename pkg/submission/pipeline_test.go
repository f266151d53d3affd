package submission_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/submission"
	"github.com/JaimeStill/loam/pkg/validation"
)

type fakeClient struct {
	calls   atomic.Int32
	release chan struct{}
	ignore  bool
	err     error
}

func (c *fakeClient) Submit(ctx context.Context, req backend.Request) (*backend.Result, error) {
	c.calls.Add(1)
	if c.release != nil {
		if c.ignore {
			<-c.release
		} else {
			select {
			case <-c.release:
			case <-ctx.Done():
				return nil, &backend.Error{Kind: backend.ErrTransport, Message: backend.MessageUnreachable, Cause: ctx.Err()}
			}
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &backend.Result{StatusCode: 200, Body: json.RawMessage(`{"soil_quality":"good"}`)}, nil
}

func (c *fakeClient) Health(context.Context) error { return nil }

var manualRequest = backend.Request{
	Kind:   backend.KindRecord,
	Fields: map[string]string{"ph": "6.5"},
}

func wait(t *testing.T, p *submission.Pipeline) submission.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return o
}

func TestSubmitRequiresValidVerdict(t *testing.T) {
	client := &fakeClient{}
	p := submission.New(client, submission.Options{})
	defer p.Close()

	verdicts := []validation.Verdict{
		{},
		validation.Fail(validation.FieldError{Field: "ph", Code: validation.CodeOutOfRange}),
	}
	for _, v := range verdicts {
		if err := p.Submit(manualRequest, v); !errors.Is(err, submission.ErrNotValidated) {
			t.Errorf("submit(%v) err = %v, want ErrNotValidated", v.Status, err)
		}
	}

	if client.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", client.calls.Load())
	}
	if p.Status() != submission.Idle {
		t.Errorf("status = %v, want idle", p.Status())
	}
}

func TestSubmitSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu        sync.Mutex
		completed []submission.Status
	)
	client := &fakeClient{}
	p := submission.New(client, submission.Options{
		OnComplete: func(_ submission.Request, o submission.Outcome) {
			mu.Lock()
			completed = append(completed, o.Status)
			mu.Unlock()
		},
	})
	defer p.Close()

	if err := p.Submit(manualRequest, validation.Pass()); err != nil {
		t.Fatal(err)
	}

	o := wait(t, p)
	if o.Status != submission.Success || string(o.Result.Body) != `{"soil_quality":"good"}` {
		t.Errorf("outcome = %+v", o)
	}
	if client.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", client.calls.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 1 || completed[0] != submission.Success {
		t.Errorf("completed = %v", completed)
	}
}

func TestWaitReturnsAfterOnComplete(t *testing.T) {
	var settled atomic.Bool
	p := submission.New(&fakeClient{}, submission.Options{
		OnComplete: func(submission.Request, submission.Outcome) {
			time.Sleep(20 * time.Millisecond)
			settled.Store(true)
		},
	})
	defer p.Close()

	if err := p.Submit(manualRequest, validation.Pass()); err != nil {
		t.Fatal(err)
	}
	wait(t, p)

	if !settled.Load() {
		t.Error("wait returned before OnComplete finished")
	}
}

func TestSubmitWhilePending(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &fakeClient{release: make(chan struct{})}
	p := submission.New(client, submission.Options{})
	defer p.Close()

	if err := p.Submit(manualRequest, validation.Pass()); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(manualRequest, validation.Pass()); !errors.Is(err, submission.ErrAlreadySubmitting) {
		t.Errorf("second submit err = %v, want ErrAlreadySubmitting", err)
	}

	close(client.release)
	wait(t, p)

	if client.calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1", client.calls.Load())
	}
}

func TestSubmitFailurePreservesReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		msg  string
	}{
		{
			"transport",
			&backend.Error{Kind: backend.ErrTransport, Message: backend.MessageUnreachable},
			backend.ErrTransport,
			backend.MessageUnreachable,
		},
		{
			"server rejected",
			&backend.Error{Kind: backend.ErrServerRejected, Message: "Invalid pH value"},
			backend.ErrServerRejected,
			"Invalid pH value",
		},
		{
			"unauthorized",
			&backend.Error{Kind: backend.ErrUnauthorized, Message: "token expired"},
			backend.ErrUnauthorized,
			"token expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := submission.New(&fakeClient{err: tt.err}, submission.Options{})
			defer p.Close()

			p.Submit(manualRequest, validation.Pass())
			o := wait(t, p)

			if o.Status != submission.Failed {
				t.Fatalf("status = %v, want error", o.Status)
			}
			if !errors.Is(o.Err, tt.kind) {
				t.Errorf("err = %v, want kind %v", o.Err, tt.kind)
			}
			if o.Message != tt.msg {
				t.Errorf("message = %q, want %q", o.Message, tt.msg)
			}
		})
	}
}

func TestResubmitFromTerminal(t *testing.T) {
	client := &fakeClient{err: &backend.Error{Kind: backend.ErrTransport, Message: backend.MessageUnreachable}}
	p := submission.New(client, submission.Options{})
	defer p.Close()

	p.Submit(manualRequest, validation.Pass())
	if o := wait(t, p); o.Status != submission.Failed {
		t.Fatalf("status = %v", o.Status)
	}

	client.err = nil
	if err := p.Submit(manualRequest, validation.Pass()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	o := wait(t, p)
	if o.Status != submission.Success || o.Attempt != 2 {
		t.Errorf("outcome = %+v", o)
	}

	if err := p.Submit(manualRequest, validation.Pass()); err != nil {
		t.Errorf("resubmit after success: %v", err)
	}
	wait(t, p)
}

func TestCloseDiscardsLateResponse(t *testing.T) {
	defer goleak.VerifyNone(t)

	var completions atomic.Int32
	client := &fakeClient{release: make(chan struct{}), ignore: true}
	p := submission.New(client, submission.Options{
		OnComplete: func(submission.Request, submission.Outcome) { completions.Add(1) },
	})

	if err := p.Submit(manualRequest, validation.Pass()); err != nil {
		t.Fatal(err)
	}

	p.Close()
	close(client.release)

	if _, err := p.Wait(context.Background()); !errors.Is(err, submission.ErrClosed) {
		t.Errorf("wait err = %v, want ErrClosed", err)
	}
	if err := p.Submit(manualRequest, validation.Pass()); !errors.Is(err, submission.ErrClosed) {
		t.Errorf("submit after close err = %v", err)
	}

	// goleak waits for the request goroutine to return.
	goleak.VerifyNone(t)

	if completions.Load() != 0 {
		t.Errorf("late response applied: completions = %d", completions.Load())
	}
	if p.Status() != submission.Pending {
		t.Errorf("status = %v, want the pending status at close", p.Status())
	}
}

func TestCloseCancelsRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &fakeClient{release: make(chan struct{})}
	p := submission.New(client, submission.Options{})

	p.Submit(manualRequest, validation.Pass())
	p.Close()
	p.Close()
}

func TestStatusText(t *testing.T) {
	want := map[submission.Status]string{
		submission.Idle:    "idle",
		submission.Pending: "pending",
		submission.Success: "success",
		submission.Failed:  "error",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}
