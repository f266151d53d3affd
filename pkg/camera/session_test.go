package camera_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/JaimeStill/loam/pkg/camera"
)

type fakeStream struct {
	img   image.Image
	stops atomic.Int32
}

func (s *fakeStream) Frame(context.Context) (image.Image, error) {
	if s.stops.Load() > 0 {
		return nil, camera.ErrStreamStopped
	}
	return s.img, nil
}

func (s *fakeStream) Stop() error {
	s.stops.Add(1)
	return nil
}

type fakeDevice struct {
	stream *fakeStream
	err    error
	gate   chan struct{}
	opens  atomic.Int32
}

func (d *fakeDevice) Open(ctx context.Context) (camera.Stream, error) {
	d.opens.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func newLiveSession(t *testing.T) (*camera.Session, *fakeStream) {
	t.Helper()
	stream := &fakeStream{img: solid(64, 48)}
	s := camera.New(&fakeDevice{stream: stream}, camera.Options{})
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return s, stream
}

func TestAcquireGoesLive(t *testing.T) {
	s, _ := newLiveSession(t)

	if got := s.State(); got != camera.Live {
		t.Errorf("state = %v, want live", got)
	}
	if s.Unavailable() != nil {
		t.Errorf("unavailable = %v, want nil", s.Unavailable())
	}
}

func TestAcquireDenied(t *testing.T) {
	dev := &fakeDevice{err: errors.New("NotAllowedError: permission denied")}
	s := camera.New(dev, camera.Options{})

	err := s.Acquire(context.Background())
	if !errors.Is(err, camera.ErrCaptureUnavailable) {
		t.Fatalf("err = %v, want ErrCaptureUnavailable", err)
	}

	st := s.Status()
	if st.State != camera.Unacquired {
		t.Errorf("state = %v, want unacquired", st.State)
	}
	if !st.Unavailable {
		t.Error("status should report camera unavailable")
	}

	if _, err := s.Snapshot(context.Background()); !errors.Is(err, camera.ErrNotAcquired) {
		t.Errorf("snapshot err = %v, want ErrNotAcquired", err)
	}
	if dev.opens.Load() != 1 {
		t.Errorf("opens = %d, want no automatic retry", dev.opens.Load())
	}
}

func TestAcquireTwiceKeepsSingleHandle(t *testing.T) {
	stream := &fakeStream{img: solid(8, 8)}
	dev := &fakeDevice{stream: stream}
	s := camera.New(dev, camera.Options{})

	for range 2 {
		if err := s.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if dev.opens.Load() != 1 {
		t.Errorf("opens = %d, want 1", dev.opens.Load())
	}
}

func TestSnapshotBeforeAcquire(t *testing.T) {
	s := camera.New(&fakeDevice{}, camera.Options{})

	if _, err := s.Snapshot(context.Background()); !errors.Is(err, camera.ErrNotAcquired) {
		t.Errorf("err = %v, want ErrNotAcquired", err)
	}
	if err := s.Retake(); !errors.Is(err, camera.ErrNotAcquired) {
		t.Errorf("retake err = %v, want ErrNotAcquired", err)
	}
}

func TestSnapshotFixedDimensions(t *testing.T) {
	s, _ := newLiveSession(t)

	still, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if still.ContentType != "image/png" {
		t.Errorf("content type = %s", still.ContentType)
	}

	img, err := png.Decode(bytes.NewReader(still.Data))
	if err != nil {
		t.Fatalf("decode still: %v", err)
	}
	if b := img.Bounds(); b.Dx() != camera.DefaultWidth || b.Dy() != camera.DefaultHeight {
		t.Errorf("still size = %dx%d, want %dx%d", b.Dx(), b.Dy(), camera.DefaultWidth, camera.DefaultHeight)
	}
	if s.State() != camera.Captured {
		t.Errorf("state = %v, want captured", s.State())
	}
}

func TestRetakeKeepsStream(t *testing.T) {
	s, stream := newLiveSession(t)

	if _, err := s.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := s.Retake(); err != nil {
		t.Fatalf("retake: %v", err)
	}

	if s.State() != camera.Live {
		t.Errorf("state = %v, want live", s.State())
	}
	if s.Still() != nil {
		t.Error("still should be discarded")
	}
	if stream.stops.Load() != 0 {
		t.Error("retake must not stop the stream")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	t.Run("never acquired", func(t *testing.T) {
		s := camera.New(&fakeDevice{}, camera.Options{})
		s.Release()
		s.Release()
		if s.State() != camera.Unacquired {
			t.Errorf("state = %v", s.State())
		}
	})

	t.Run("after capture", func(t *testing.T) {
		s, stream := newLiveSession(t)
		if _, err := s.Snapshot(context.Background()); err != nil {
			t.Fatalf("snapshot: %v", err)
		}

		s.Release()
		s.Release()

		if s.State() != camera.Unacquired {
			t.Errorf("state = %v", s.State())
		}
		if got := stream.stops.Load(); got != 1 {
			t.Errorf("stops = %d, want 1", got)
		}
		if s.Still() != nil {
			t.Error("still should be discarded on release")
		}
	})
}

func TestReleaseDuringAcquire(t *testing.T) {
	defer goleak.VerifyNone(t)

	stream := &fakeStream{img: solid(4, 4)}
	dev := &fakeDevice{stream: stream, gate: make(chan struct{})}
	s := camera.New(dev, camera.Options{})

	done := make(chan error, 1)
	go func() { done <- s.Acquire(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for s.State() != camera.Acquiring && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	s.Release()

	select {
	case err := <-done:
		if !errors.Is(err, camera.ErrReleased) {
			t.Errorf("acquire err = %v, want ErrReleased", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not return after release")
	}

	if s.State() != camera.Unacquired {
		t.Errorf("state = %v, want unacquired", s.State())
	}
}

func TestCloseIsTerminal(t *testing.T) {
	t.Run("live session", func(t *testing.T) {
		s, stream := newLiveSession(t)
		s.Close()
		s.Close()

		if got := stream.stops.Load(); got != 1 {
			t.Errorf("stops = %d, want 1", got)
		}
		if !s.Closed() {
			t.Error("Closed() = false after Close")
		}
	})

	t.Run("acquire after close", func(t *testing.T) {
		dev := &fakeDevice{stream: &fakeStream{img: solid(4, 4)}}
		s := camera.New(dev, camera.Options{})
		s.Close()

		if err := s.Acquire(context.Background()); !errors.Is(err, camera.ErrReleased) {
			t.Errorf("acquire err = %v, want ErrReleased", err)
		}
		if got := dev.opens.Load(); got != 0 {
			t.Errorf("device opened %d times after close", got)
		}
		if s.State() != camera.Unacquired {
			t.Errorf("state = %v, want unacquired", s.State())
		}
	})

	t.Run("release stays reusable", func(t *testing.T) {
		s, _ := newLiveSession(t)
		s.Release()
		if err := s.Acquire(context.Background()); err != nil {
			t.Errorf("reacquire after release: %v", err)
		}
		s.Close()
	})
}

func TestAcquireTimeout(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{})}
	s := camera.New(dev, camera.Options{AcquireTimeout: 20 * time.Millisecond})

	err := s.Acquire(context.Background())
	if !errors.Is(err, camera.ErrCaptureUnavailable) {
		t.Errorf("err = %v, want ErrCaptureUnavailable", err)
	}
}

func TestHTTPDevice(t *testing.T) {
	var frame bytes.Buffer
	if err := png.Encode(&frame, solid(10, 10)); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(frame.Bytes())
	})
	mux.HandleFunc("GET /locked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"serves frames", srv.URL + "/snapshot", nil},
		{"permission denied", srv.URL + "/locked", camera.ErrCaptureUnavailable},
		{"no device", srv.URL + "/missing", camera.ErrCaptureUnavailable},
		{"not configured", "", camera.ErrCaptureUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := camera.New(camera.NewHTTPDevice(tt.url, time.Second), camera.Options{Width: 40, Height: 20})
			defer s.Release()

			err := s.Acquire(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("acquire err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			still, err := s.Snapshot(context.Background())
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if still.Width != 40 || still.Height != 20 {
				t.Errorf("still = %dx%d", still.Width, still.Height)
			}
		})
	}
}

func TestUnavailableDevice(t *testing.T) {
	s := camera.New(camera.Unavailable{}, camera.Options{})
	if err := s.Acquire(context.Background()); !camera.IsUnavailable(err) {
		t.Errorf("err = %v, want unavailable", err)
	}
}
