// Package backend is the client for the soil prediction service.
//
// The service accepts a manual record as JSON, or a file as multipart form
// data, and answers with either an opaque success body or {"error": "..."}.
// Failures are reported as *Error values whose Message is safe to show to
// the user verbatim.
package backend

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrTransport      = errors.New("transport failure")
	ErrServerRejected = errors.New("server rejected request")
	ErrUnauthorized   = errors.New("unauthorized")
)

const (
	// MessageUnreachable is reported when no response was received.
	MessageUnreachable = "could not reach service"
	// MessageRejected is reported when the service failed without an error body.
	MessageRejected = "Failed to process data. Please try again."
	// MessageUnauthorized is reported for 401 and 403 responses without an error body.
	MessageUnauthorized = "Not authorized to submit. Please log in again."
	// MessageHealth is reported when the health probe fails.
	MessageHealth = "Could not connect to backend."
)

// Kind selects the backend endpoint for a request.
type Kind string

const (
	KindRecord Kind = "record"
	KindImage  Kind = "image"
	KindCsv    Kind = "csv"
)

// File is an opaque payload forwarded to the service.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request is one outbound submission. Record requests carry Fields only;
// image and CSV requests carry File, and CSV requests may carry companion
// Fields as form values.
type Request struct {
	Kind   Kind
	Fields map[string]string
	File   *File
}

// Result is a successful service response.
type Result struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// Client submits requests to the prediction service.
type Client interface {
	Submit(ctx context.Context, req Request) (*Result, error)
	Health(ctx context.Context) error
}

// Error is a failed submission. Kind is one of the package sentinels and is
// matched through errors.Is.
type Error struct {
	Kind       error
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Message returns the user-facing text for err. Errors that did not come
// from a Client fall back to their own text.
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
