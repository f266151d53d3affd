package capture_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/camera"
	"github.com/JaimeStill/loam/pkg/capture"
	"github.com/JaimeStill/loam/pkg/validation"
)

// journal is an ordered record of hardware and controller events.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type journalDevice struct {
	j *journal
}

func (d journalDevice) Open(context.Context) (camera.Stream, error) {
	d.j.add("camera open")
	return &journalStream{j: d.j}, nil
}

type journalStream struct {
	j *journal
}

func (s *journalStream) Frame(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
}

func (s *journalStream) Stop() error {
	s.j.add("camera stop")
	return nil
}

func newController(j *journal) *capture.Controller {
	return capture.New(capture.Options{
		Camera: func() *camera.Session {
			j.add("camera constructed")
			return camera.New(journalDevice{j: j}, camera.Options{})
		},
		Observer: func(t capture.Transition) {
			j.add("transition " + string(t.From) + "->" + string(t.To))
		},
	})
}

func soilRecord() map[string]string {
	return map[string]string{
		"ph":             "6.5",
		"nitrogen":       "350",
		"phosphorus":     "40",
		"potassium":      "250",
		"moisture":       "25",
		"organic_carbon": "0.8",
		"ec":             "1.2",
		"texture":        "Loamy",
	}
}

func TestNewControllerSelecting(t *testing.T) {
	c := capture.New(capture.Options{})

	if c.Phase() != capture.PhaseSelecting || c.Mode() != capture.ModeNone {
		t.Errorf("phase = %s, mode = %q", c.Phase(), c.Mode())
	}
	if _, err := c.Validate(); !errors.Is(err, capture.ErrNoMode) {
		t.Errorf("validate err = %v, want ErrNoMode", err)
	}
}

func TestSelectModeReleasesCameraFirst(t *testing.T) {
	j := &journal{}
	c := newController(j)

	if err := c.SelectMode(capture.ModeCamera); err != nil {
		t.Fatal(err)
	}
	if err := c.AcquireCamera(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := c.SelectMode(capture.ModeManual); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectMode(capture.ModeCamera); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"camera constructed",
		"transition ->camera",
		"camera open",
		"camera stop",
		"transition camera->manual",
		"camera constructed",
		"transition manual->camera",
	}
	if diff := cmp.Diff(want, j.list()); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectModeSameIsNoop(t *testing.T) {
	c := capture.New(capture.Options{})

	c.SelectMode(capture.ModeManual)
	c.SetFields(map[string]string{"ph": "6.5"})
	c.SelectMode(capture.ModeManual)

	if got := c.State().Record["ph"]; got != "6.5" {
		t.Errorf("record lost on reselect: ph = %q", got)
	}
	if n := len(c.Events()); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestSelectModeDiscardsPayload(t *testing.T) {
	c := capture.New(capture.Options{})

	c.SelectMode(capture.ModeManual)
	c.SetFields(map[string]string{"ph": "6.5"})
	c.SelectMode(capture.ModeImage)
	c.SelectMode(capture.ModeManual)

	if len(c.State().Record) != 0 {
		t.Errorf("record = %v, want empty", c.State().Record)
	}
}

func TestSelectModeUnknown(t *testing.T) {
	c := capture.New(capture.Options{})
	if err := c.SelectMode("video"); !errors.Is(err, capture.ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}
}

func TestTransitionLog(t *testing.T) {
	c := capture.New(capture.Options{})

	c.SelectMode(capture.ModeImage)
	c.SelectMode(capture.ModeCsv)
	c.SetFile(backend.File{Name: "soil.csv", Data: []byte("N,P,K\n1,2,3\n")})
	c.MarkSubmitted()

	want := []capture.Transition{
		{From: capture.ModeNone, To: capture.ModeImage, Phase: capture.PhaseCapturing},
		{From: capture.ModeImage, To: capture.ModeCsv, Phase: capture.PhaseCapturing},
		{From: capture.ModeCsv, To: capture.ModeCsv, Phase: capture.PhaseSubmitted},
	}
	opts := cmpopts.IgnoreFields(capture.Transition{}, "At")
	if diff := cmp.Diff(want, c.Events(), opts); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestInputWrongMode(t *testing.T) {
	c := capture.New(capture.Options{})
	c.SelectMode(capture.ModeImage)

	if err := c.SetFields(map[string]string{"ph": "7"}); !errors.Is(err, capture.ErrWrongMode) {
		t.Errorf("SetFields err = %v", err)
	}
	if err := c.AcquireCamera(context.Background()); !errors.Is(err, capture.ErrWrongMode) {
		t.Errorf("AcquireCamera err = %v", err)
	}
	if err := c.SetFile(backend.File{Name: "x.jpg"}); !errors.Is(err, capture.ErrEmptyFile) {
		t.Errorf("SetFile empty err = %v", err)
	}
}

func TestManualScenarios(t *testing.T) {
	t.Run("valid sample", func(t *testing.T) {
		c := capture.New(capture.Options{})
		c.SelectMode(capture.ModeManual)
		c.SetFields(soilRecord())

		v, err := c.Validate()
		if err != nil || !v.Valid() {
			t.Fatalf("verdict = %+v, err = %v", v, err)
		}

		req, verdict, err := c.Payload()
		if err != nil {
			t.Fatal(err)
		}
		if req.Kind != backend.KindRecord || req.Fields["texture"] != "Loamy" || !verdict.Valid() {
			t.Errorf("payload = %+v, verdict = %v", req, verdict.Status)
		}
	})

	t.Run("ph out of range", func(t *testing.T) {
		c := capture.New(capture.Options{})
		c.SelectMode(capture.ModeManual)
		rec := soilRecord()
		rec["ph"] = "10.0"
		c.SetFields(rec)

		v, _ := c.Validate()
		if v.Status != validation.Invalid || len(v.Errors) != 1 || v.Errors[0].Field != "ph" {
			t.Errorf("verdict = %+v", v)
		}
		if got := c.State().Record["ph"]; got != "10.0" {
			t.Errorf("input discarded: ph = %q", got)
		}
	})
}

func TestInputResetsVerdict(t *testing.T) {
	c := capture.New(capture.Options{})
	c.SelectMode(capture.ModeManual)
	c.SetFields(soilRecord())
	c.Validate()

	c.SetFields(map[string]string{"ph": "6.6"})

	if got := c.Verdict().Status; got != validation.Unvalidated {
		t.Errorf("status = %v, want unvalidated", got)
	}
}

func TestCsvValidation(t *testing.T) {
	c := capture.New(capture.Options{})
	c.SelectMode(capture.ModeCsv)

	v, _ := c.Validate()
	if v.Valid() || v.Errors[0].Field != "file" {
		t.Fatalf("verdict = %+v, want missing file first", v)
	}

	c.SetFile(backend.File{Name: "soil.csv", Data: []byte("a,b\n")})
	c.SetFields(map[string]string{
		"N": "90", "P": "42", "K": "43", "pH": "6.5",
		"moisture": "20", "temperature": "21", "humidity": "82", "rainfall": "203",
	})

	if v, _ := c.Validate(); !v.Valid() {
		t.Errorf("verdict = %+v, want valid", v)
	}

	req, _, _ := c.Payload()
	if req.Kind != backend.KindCsv || req.File == nil || req.Fields["rainfall"] != "203" {
		t.Errorf("payload = %+v", req)
	}
}

func TestCameraMode(t *testing.T) {
	j := &journal{}
	c := newController(j)
	c.SelectMode(capture.ModeCamera)

	if v, _ := c.Validate(); v.Valid() {
		t.Error("camera mode without still should be invalid")
	}

	if _, err := c.Snapshot(context.Background()); !errors.Is(err, camera.ErrNotAcquired) {
		t.Fatalf("snapshot before acquire err = %v", err)
	}

	if err := c.AcquireCamera(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Validate(); !v.Valid() {
		t.Errorf("verdict = %+v", v)
	}

	req, _, _ := c.Payload()
	if req.Kind != backend.KindImage || req.File == nil || req.File.ContentType != "image/png" {
		t.Errorf("payload = %+v", req)
	}

	events := len(c.Events())
	if err := c.Retake(); err != nil {
		t.Fatal(err)
	}
	if len(c.Events()) != events {
		t.Error("retake must not be a mode transition")
	}
	if c.Verdict().Status != validation.Unvalidated {
		t.Error("retake should reset the verdict")
	}
	if st := c.State(); st.Camera == nil || st.Camera.State != camera.Live {
		t.Errorf("camera state = %+v, want live", st.Camera)
	}
}

func TestMarkSubmitted(t *testing.T) {
	j := &journal{}
	c := newController(j)
	c.SelectMode(capture.ModeCamera)
	c.AcquireCamera(context.Background())

	if err := c.MarkSubmitted(); err != nil {
		t.Fatal(err)
	}

	if c.Phase() != capture.PhaseSubmitted {
		t.Errorf("phase = %s", c.Phase())
	}
	if err := c.SelectMode(capture.ModeManual); !errors.Is(err, capture.ErrSubmitted) {
		t.Errorf("select after submit err = %v", err)
	}
	if _, _, err := c.Payload(); !errors.Is(err, capture.ErrSubmitted) {
		t.Errorf("payload after submit err = %v", err)
	}

	entries := j.list()
	if entries[len(entries)-2] != "camera stop" {
		t.Errorf("camera not released on submit: %v", entries)
	}
}

func TestCloseIdempotent(t *testing.T) {
	j := &journal{}
	c := newController(j)
	c.SelectMode(capture.ModeCamera)
	c.AcquireCamera(context.Background())

	c.Close()
	c.Close()

	stops := 0
	for _, e := range j.list() {
		if e == "camera stop" {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
}

func TestClosedControllerRejectsCamera(t *testing.T) {
	j := &journal{}
	c := newController(j)
	c.SelectMode(capture.ModeCamera)
	c.Close()

	if err := c.AcquireCamera(context.Background()); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("acquire after close err = %v, want ErrClosed", err)
	}
	if err := c.SelectMode(capture.ModeManual); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("select after close err = %v, want ErrClosed", err)
	}
	if err := c.MarkSubmitted(); !errors.Is(err, capture.ErrClosed) {
		t.Errorf("mark submitted after close err = %v, want ErrClosed", err)
	}

	want := []string{"camera constructed", "transition ->camera"}
	if diff := cmp.Diff(want, j.list()); diff != "" {
		t.Errorf("camera opened after close (-want +got):\n%s", diff)
	}
}

type gatedDevice struct {
	j    *journal
	gate chan struct{}
}

func (d gatedDevice) Open(ctx context.Context) (camera.Stream, error) {
	select {
	case <-d.gate:
		d.j.add("camera open")
		return &journalStream{j: d.j}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTeardownDuringAcquire(t *testing.T) {
	for _, tt := range []struct {
		name  string
		leave func(*capture.Controller)
	}{
		{"mode switch", func(c *capture.Controller) { c.SelectMode(capture.ModeManual) }},
		{"close", func(c *capture.Controller) { c.Close() }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			j := &journal{}
			var cam *camera.Session
			c := capture.New(capture.Options{
				Camera: func() *camera.Session {
					cam = camera.New(gatedDevice{j: j, gate: make(chan struct{})}, camera.Options{})
					return cam
				},
			})
			c.SelectMode(capture.ModeCamera)

			done := make(chan error, 1)
			go func() { done <- c.AcquireCamera(context.Background()) }()

			deadline := time.Now().Add(time.Second)
			for cam.State() != camera.Acquiring && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			tt.leave(c)

			select {
			case err := <-done:
				if !errors.Is(err, camera.ErrReleased) {
					t.Errorf("acquire err = %v, want ErrReleased", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("acquire did not return after teardown")
			}

			if err := cam.Acquire(context.Background()); !errors.Is(err, camera.ErrReleased) {
				t.Errorf("torn-down camera reacquired: err = %v", err)
			}
			if got := j.list(); len(got) != 0 {
				t.Errorf("stream opened on a torn-down camera: %v", got)
			}
		})
	}
}

func TestSubmitFreezesInput(t *testing.T) {
	c := capture.New(capture.Options{})
	c.SelectMode(capture.ModeManual)
	c.SetFields(soilRecord())

	req, v, err := c.BeginSubmit()
	if err != nil || !v.Valid() {
		t.Fatalf("begin submit: verdict = %+v, err = %v", v, err)
	}
	if req.Kind != backend.KindRecord {
		t.Errorf("request kind = %v", req.Kind)
	}

	if err := c.SelectMode(capture.ModeCsv); !errors.Is(err, capture.ErrSubmitting) {
		t.Errorf("select while pending err = %v, want ErrSubmitting", err)
	}
	if err := c.SetFields(map[string]string{"ph": "7"}); !errors.Is(err, capture.ErrSubmitting) {
		t.Errorf("input while pending err = %v, want ErrSubmitting", err)
	}
	if _, _, err := c.BeginSubmit(); !errors.Is(err, capture.ErrSubmitting) {
		t.Errorf("second begin err = %v, want ErrSubmitting", err)
	}

	if mode := c.FinishSubmit(true); mode != capture.ModeManual {
		t.Errorf("finished mode = %q, want manual", mode)
	}
	if mode := c.FinishSubmit(true); mode != capture.ModeManual {
		t.Errorf("repeated finish mode = %q, want manual", mode)
	}
	if c.Phase() != capture.PhaseSubmitted {
		t.Errorf("phase = %s, want submitted", c.Phase())
	}
	if got := c.State().Record["ph"]; got != "6.5" {
		t.Errorf("submitted record changed: ph = %q", got)
	}
}

func TestFailedSubmitUnfreezes(t *testing.T) {
	c := capture.New(capture.Options{})
	c.SelectMode(capture.ModeManual)
	c.SetFields(soilRecord())
	c.BeginSubmit()

	if mode := c.FinishSubmit(false); mode != capture.ModeManual {
		t.Errorf("finished mode = %q, want manual", mode)
	}
	if c.Phase() != capture.PhaseCapturing {
		t.Errorf("phase = %s, want capturing", c.Phase())
	}
	if err := c.SetFields(map[string]string{"ph": "6.8"}); err != nil {
		t.Errorf("input after failure: %v", err)
	}
	if err := c.SelectMode(capture.ModeCsv); err != nil {
		t.Errorf("select after failure: %v", err)
	}
}

func TestBeginSubmitInvalidDoesNotFreeze(t *testing.T) {
	c := capture.New(capture.Options{})
	c.SelectMode(capture.ModeManual)

	_, v, err := c.BeginSubmit()
	if err != nil || v.Valid() {
		t.Fatalf("verdict = %+v, err = %v, want invalid", v, err)
	}
	if err := c.SetFields(map[string]string{"ph": "6.5"}); err != nil {
		t.Errorf("input after invalid submit: %v", err)
	}
}

func TestPayloadNeverPairsMissingStillWithValidVerdict(t *testing.T) {
	j := &journal{}
	c := newController(j)
	c.SelectMode(capture.ModeCamera)
	if err := c.AcquireCamera(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			c.Snapshot(ctx)
			c.Validate()
			c.Retake()
		}
	}()

	for range 2000 {
		req, v, err := c.Payload()
		if err != nil {
			t.Fatal(err)
		}
		if req.File == nil && v.Valid() {
			t.Fatal("payload without a still carried a valid verdict")
		}
	}
	cancel()
	wg.Wait()
	c.Close()
}
