package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"time"
)

// Device is the host camera. Open grants access to a live stream or fails
// with ErrCaptureUnavailable.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live media stream handle. Stop releases the underlying
// hardware tracks.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// HTTPDevice reads stills from a network camera's snapshot endpoint.
type HTTPDevice struct {
	URL    string
	Client *http.Client
}

// NewHTTPDevice creates an HTTPDevice with a request timeout.
func NewHTTPDevice(url string, timeout time.Duration) *HTTPDevice {
	return &HTTPDevice{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Open probes the snapshot endpoint. Unreachable hosts, permission failures
// and missing devices are all reported as ErrCaptureUnavailable.
func (d *HTTPDevice) Open(ctx context.Context) (Stream, error) {
	if d.URL == "" {
		return nil, fmt.Errorf("%w: no camera configured", ErrCaptureUnavailable)
	}

	s := &httpStream{device: d}
	if _, err := s.Frame(ctx); err != nil {
		if !IsUnavailable(err) {
			err = fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
		return nil, err
	}
	return s, nil
}

type httpStream struct {
	device  *HTTPDevice
	mu      sync.Mutex
	stopped bool
}

func (s *httpStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, ErrStreamStopped
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.device.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	resp, err := s.device.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: permission denied", ErrCaptureUnavailable)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: no device", ErrCaptureUnavailable)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: camera returned %s", ErrCaptureUnavailable, resp.Status)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (s *httpStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (d *HTTPDevice) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

const maxFrameBytes = 32 << 20

// ImageDevice streams a fixed image. It backs demo kiosks that have no
// physical camera.
type ImageDevice struct {
	Image image.Image
}

// Open returns a stream of the configured image, or ErrCaptureUnavailable
// when none is set.
func (d *ImageDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Image == nil {
		return nil, fmt.Errorf("%w: no device", ErrCaptureUnavailable)
	}
	return &imageStream{img: d.Image}, nil
}

type imageStream struct {
	img     image.Image
	mu      sync.Mutex
	stopped bool
}

func (s *imageStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStreamStopped
	}
	return s.img, nil
}

func (s *imageStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// Unavailable is a Device that always refuses access.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Open(context.Context) (Stream, error) {
	reason := u.Reason
	if reason == "" {
		reason = "camera disabled"
	}
	return nil, fmt.Errorf("%w: %s", ErrCaptureUnavailable, reason)
}

// IsUnavailable reports whether err is a camera availability failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCaptureUnavailable)
}
