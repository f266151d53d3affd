// Package camera manages the lifecycle of a live camera stream and the
// stills captured from it.
//
// A Session holds at most one live stream handle. Every exit path must call
// Release or Close, both idempotent, which also cancel an acquire that is
// still waiting on the device. After Close the session never opens the
// device again.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

var (
	// ErrCaptureUnavailable indicates permission was denied, no device exists,
	// or the host refused camera access.
	ErrCaptureUnavailable = errors.New("camera unavailable")
	// ErrNotAcquired indicates an operation that needs a live stream was
	// called before Acquire succeeded.
	ErrNotAcquired = errors.New("camera not acquired")
	// ErrAcquiring indicates an acquire is already waiting on the device.
	ErrAcquiring = errors.New("camera acquire in progress")
	// ErrReleased indicates the session was released while an acquire or
	// snapshot was in flight, or was closed for good.
	ErrReleased = errors.New("camera released")
	// ErrStreamStopped is returned by streams read after Stop.
	ErrStreamStopped = errors.New("stream stopped")
)

// State is the lifecycle position of a Session.
type State int

const (
	Unacquired State = iota
	Acquiring
	Live
	Captured
)

func (s State) String() string {
	switch s {
	case Unacquired:
		return "unacquired"
	case Acquiring:
		return "acquiring"
	case Live:
		return "live"
	case Captured:
		return "captured"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Still is a captured frame rendered at fixed dimensions.
type Still struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Options configures a Session. Zero values select the defaults.
type Options struct {
	Width          int
	Height         int
	AcquireTimeout time.Duration
	Logger         *slog.Logger
}

const (
	DefaultWidth          = 400
	DefaultHeight         = 200
	DefaultAcquireTimeout = 10 * time.Second
)

// Status is a point-in-time view of a Session.
type Status struct {
	State       State  `json:"state"`
	Unavailable bool   `json:"unavailable"`
	Reason      string `json:"reason,omitempty"`
	Still       *Still `json:"still,omitempty"`
}

// Session owns a single camera stream.
type Session struct {
	device         Device
	width          int
	height         int
	acquireTimeout time.Duration
	logger         *slog.Logger

	mu          sync.Mutex
	state       State
	stream      Stream
	still       *Still
	unavailable error
	cancel      context.CancelFunc
	epoch       uint64
	closed      bool
}

// New creates an unacquired Session for device.
func New(device Device, opts Options) *Session {
	s := &Session{
		device:         device,
		width:          opts.Width,
		height:         opts.Height,
		acquireTimeout: opts.AcquireTimeout,
		logger:         opts.Logger,
	}
	if s.width <= 0 {
		s.width = DefaultWidth
	}
	if s.height <= 0 {
		s.height = DefaultHeight
	}
	if s.acquireTimeout <= 0 {
		s.acquireTimeout = DefaultAcquireTimeout
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("system", "camera")
	return s
}

// Acquire requests camera access and blocks until the device grants or
// refuses it. A session that already holds a stream returns nil without
// opening another. On refusal the session stays Unacquired and reports
// itself unavailable; no retry is attempted.
func (s *Session) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrReleased
	}
	switch s.state {
	case Live, Captured:
		s.mu.Unlock()
		return nil
	case Acquiring:
		s.mu.Unlock()
		return ErrAcquiring
	}

	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	s.state = Acquiring
	s.cancel = cancel
	s.unavailable = nil
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.Debug("acquiring camera")
	stream, err := s.device.Open(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		if stream != nil {
			s.stop(stream)
		}
		return ErrReleased
	}

	s.cancel = nil
	if err != nil {
		if !IsUnavailable(err) {
			err = fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
		s.state = Unacquired
		s.unavailable = err
		s.logger.Warn("camera unavailable", "error", err)
		return err
	}

	s.stream = stream
	s.state = Live
	s.logger.Info("camera live")
	return nil
}

// Snapshot renders the current frame into a still. It may be called while
// Live or Captured; a previous still is replaced.
func (s *Session) Snapshot(ctx context.Context) (*Still, error) {
	s.mu.Lock()
	if s.state != Live && s.state != Captured {
		s.mu.Unlock()
		return nil, ErrNotAcquired
	}
	stream := s.stream
	epoch := s.epoch
	s.mu.Unlock()

	frame, err := stream.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}

	still, err := render(frame, s.width, s.height)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, ErrReleased
	}

	s.still = still
	s.state = Captured
	s.logger.Debug("still captured", "bytes", len(still.Data))
	return cloneStill(still), nil
}

// Retake discards the last still and returns to the live preview without
// reacquiring the stream.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Captured:
		s.still = nil
		s.state = Live
		return nil
	case Live:
		return nil
	default:
		return ErrNotAcquired
	}
}

// Release stops the stream, discards any still, and cancels an in-flight
// acquire. It is safe to call any number of times, in any state. A released
// session may be acquired again.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}

// Close releases the session and makes every later Acquire fail with
// ErrReleased.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.release()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) release() {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		s.stop(s.stream)
		s.stream = nil
		s.logger.Info("camera released")
	}
	s.still = nil
	s.state = Unacquired
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Still returns a copy of the captured still, or nil.
func (s *Session) Still() *Still {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStill(s.still)
}

// Unavailable returns the reason the last acquire failed, or nil.
func (s *Session) Unavailable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}

// Status returns a point-in-time view of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.state,
		Unavailable: s.unavailable != nil,
		Still:       cloneStill(s.still),
	}
	if s.unavailable != nil {
		st.Reason = s.unavailable.Error()
	}
	return st
}

func (s *Session) stop(stream Stream) {
	if err := stream.Stop(); err != nil {
		s.logger.Warn("stream stop failed", "error", err)
	}
}

func render(frame image.Image, width, height int) (*Still, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode still: %w", err)
	}

	return &Still{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Width:       width,
		Height:      height,
		CapturedAt:  time.Now().UTC(),
	}, nil
}

func cloneStill(s *Still) *Still {
	if s == nil {
		return nil
	}
	c := *s
	c.Data = append([]byte(nil), s.Data...)
	return &c
}
