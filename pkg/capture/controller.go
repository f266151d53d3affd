// Package capture implements the capture-mode state machine.
//
// A Controller presents exactly one of four capture modes at a time. Leaving
// a mode tears down its resources, releasing the camera when the live camera
// mode was active, before the next mode's state is constructed. While a
// submission is pending the mode and its input are frozen.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/camera"
	"github.com/JaimeStill/loam/pkg/validation"
)

// Transition records one change of mode or phase.
type Transition struct {
	From  Mode      `json:"from"`
	To    Mode      `json:"to"`
	Phase Phase     `json:"phase"`
	At    time.Time `json:"at"`
}

// CameraFactory creates a fresh camera session each time the live camera
// mode is entered.
type CameraFactory func() *camera.Session

// Options configures a Controller.
type Options struct {
	Camera      CameraFactory
	ManualRules validation.Ruleset
	CsvRules    validation.Ruleset
	Observer    func(Transition)
	Logger      *slog.Logger
}

// Controller is the capture-mode state machine for one capture session.
type Controller struct {
	newCamera   CameraFactory
	manualRules validation.Ruleset
	csvRules    validation.Ruleset
	observer    func(Transition)
	logger      *slog.Logger

	mu      sync.Mutex
	phase   Phase
	variant Variant
	verdict validation.Verdict
	events  []Transition
	held    Mode
	closed  bool
}

// New creates a Controller in the selecting phase.
func New(opts Options) *Controller {
	c := &Controller{
		newCamera:   opts.Camera,
		manualRules: opts.ManualRules,
		csvRules:    opts.CsvRules,
		observer:    opts.Observer,
		logger:      opts.Logger,
		phase:       PhaseSelecting,
	}
	if c.newCamera == nil {
		base := opts.Logger
		c.newCamera = func() *camera.Session {
			return camera.New(camera.Unavailable{}, camera.Options{Logger: base})
		}
	}
	if c.manualRules.Name == "" {
		c.manualRules = validation.ManualEntry
	}
	if c.csvRules.Name == "" {
		c.csvRules = validation.CsvColumns
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("system", "capture")
	return c
}

// SelectMode switches to mode. The previous mode is torn down first and its
// uncommitted payload discarded. Reselecting the active mode is a no-op.
func (c *Controller) SelectMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.selectable(); err != nil {
		c.mu.Unlock()
		return err
	}

	from := c.mode()
	if from == mode {
		c.mu.Unlock()
		return nil
	}

	teardown(c.variant)
	c.variant = c.construct(mode)
	c.phase = PhaseCapturing
	c.verdict = validation.Verdict{}
	t := c.record(from, mode)
	c.mu.Unlock()

	c.logger.Info("capture mode selected", "from", from, "to", mode)
	c.notify(t)
	return nil
}

// SetFile attaches a file to the image or CSV mode.
func (c *Controller) SetFile(f backend.File) error {
	if len(f.Data) == 0 {
		return ErrEmptyFile
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writable(); err != nil {
		return err
	}

	switch v := c.variant.(type) {
	case *ImageUpload:
		v.File = &f
	case *CsvBulk:
		v.File = &f
	default:
		return ErrWrongMode
	}
	c.verdict = validation.Verdict{}
	return nil
}

// SetFields merges raw field values into the manual record or the CSV
// companion columns.
func (c *Controller) SetFields(fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writable(); err != nil {
		return err
	}

	switch v := c.variant.(type) {
	case *ManualEntry:
		v.Record.Merge(fields)
	case *CsvBulk:
		v.Columns.Merge(fields)
	default:
		return ErrWrongMode
	}
	c.verdict = validation.Verdict{}
	return nil
}

// AcquireCamera starts the live preview. The controller lock is not held
// while waiting on the device, so a mode switch or Close can cancel the
// wait. A camera torn down meanwhile never goes live.
func (c *Controller) AcquireCamera(ctx context.Context) error {
	cam, err := c.camera()
	if err != nil {
		return err
	}
	if err := cam.Acquire(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if lc, ok := c.variant.(*LiveCamera); c.closed || !ok || lc.Camera != cam {
		cam.Close()
		return camera.ErrReleased
	}
	return nil
}

// Snapshot captures a still from the live preview.
func (c *Controller) Snapshot(ctx context.Context) (*camera.Still, error) {
	cam, err := c.camera()
	if err != nil {
		return nil, err
	}

	still, err := cam.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	c.resetVerdict(cam)
	return still, nil
}

// Retake discards the captured still and keeps the stream live. It is not a
// mode transition.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cam, err := c.activeCamera()
	if err != nil {
		return err
	}
	c.verdict = validation.Verdict{}
	return cam.Retake()
}

// ReleaseCamera stops the live preview without leaving the camera mode.
func (c *Controller) ReleaseCamera() error {
	cam, err := c.camera()
	if err != nil {
		return err
	}
	cam.Release()
	c.resetVerdict(cam)
	return nil
}

// Validate checks the active mode's payload and stores the verdict.
func (c *Controller) Validate() (validation.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writable(); err != nil {
		return validation.Verdict{}, err
	}
	return c.validate(), nil
}

// Payload assembles the outbound request for the active mode together with
// the stored verdict.
func (c *Controller) Payload() (backend.Request, validation.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writable(); err != nil {
		return backend.Request{}, validation.Verdict{}, err
	}
	req, v := c.payload()
	return req, v, nil
}

// BeginSubmit validates the active payload and assembles its request. A
// passing verdict freezes the controller: mode changes and input fail with
// ErrSubmitting until FinishSubmit.
func (c *Controller) BeginSubmit() (backend.Request, validation.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writable(); err != nil {
		return backend.Request{}, validation.Verdict{}, err
	}

	c.validate()
	req, v := c.payload()
	if v.Valid() {
		c.held = c.mode()
	}
	return req, v, nil
}

// FinishSubmit lifts the freeze taken by BeginSubmit and returns the mode
// that was submitted. On success the controller moves to its terminal
// phase. Calling it again after success returns the same mode.
func (c *Controller) FinishSubmit(succeeded bool) Mode {
	c.mu.Lock()
	mode := c.held
	c.held = ModeNone
	if mode == ModeNone {
		mode = c.mode()
	}
	if !succeeded || c.closed || c.phase != PhaseCapturing {
		c.mu.Unlock()
		return mode
	}

	t := c.finish()
	c.mu.Unlock()

	c.logger.Info("capture submitted", "mode", mode)
	c.notify(t)
	return mode
}

// MarkSubmitted moves the controller to its terminal phase and releases any
// held resources. Capturing again requires a new Controller.
func (c *Controller) MarkSubmitted() error {
	c.mu.Lock()
	if c.phase == PhaseSubmitted {
		c.mu.Unlock()
		return nil
	}
	if c.phase == PhaseSelecting {
		c.mu.Unlock()
		return ErrNoMode
	}

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	mode := c.mode()
	c.held = ModeNone
	t := c.finish()
	c.mu.Unlock()

	c.logger.Info("capture submitted", "mode", mode)
	c.notify(t)
	return nil
}

// Close tears down the active mode for good. Every later operation that
// would change state fails with ErrClosed. It is safe to call more than once
// and in any phase.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.held = ModeNone
	teardown(c.variant)
}

// Mode returns the active mode, or ModeNone while selecting.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode()
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Verdict returns the stored verdict for the current payload.
func (c *Controller) Verdict() validation.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict
}

// Events returns a copy of the transition log.
func (c *Controller) Events() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition(nil), c.events...)
}

// State is a point-in-time view of a Controller.
type State struct {
	Mode    Mode               `json:"mode"`
	Phase   Phase              `json:"phase"`
	Verdict validation.Verdict `json:"verdict"`
	File    *FileInfo          `json:"file,omitempty"`
	Record  validation.Record  `json:"record,omitempty"`
	Camera  *camera.Status     `json:"camera,omitempty"`
}

// State returns a view of the controller suitable for rendering.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Mode:    c.mode(),
		Phase:   c.phase,
		Verdict: c.verdict,
	}

	switch m := c.variant.(type) {
	case *ImageUpload:
		st.File = fileInfo(m.File)
	case *LiveCamera:
		cs := m.Camera.Status()
		st.Camera = &cs
	case *ManualEntry:
		st.Record = m.Record.Clone()
	case *CsvBulk:
		st.File = fileInfo(m.File)
		st.Record = m.Columns.Clone()
	}
	return st
}

func (c *Controller) mode() Mode {
	if c.variant == nil {
		return ModeNone
	}
	return c.variant.Mode()
}

func (c *Controller) selectable() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.phase == PhaseSubmitted:
		return ErrSubmitted
	case c.held != ModeNone:
		return ErrSubmitting
	}
	return nil
}

func (c *Controller) writable() error {
	if err := c.selectable(); err != nil {
		return err
	}
	if c.phase == PhaseSelecting {
		return ErrNoMode
	}
	return nil
}

// finish tears down the active mode and enters the terminal phase.
func (c *Controller) finish() Transition {
	mode := c.mode()
	teardown(c.variant)
	c.phase = PhaseSubmitted
	return c.record(mode, mode)
}

func (c *Controller) validate() validation.Verdict {
	var v validation.Verdict
	switch m := c.variant.(type) {
	case *ImageUpload:
		v = requireFile(m.File, "Please select an image to upload.")
	case *LiveCamera:
		if m.Camera.Still() == nil {
			v = validation.Fail(validation.FieldError{
				Field:   "image",
				Code:    validation.CodeMissing,
				Message: "Please capture a photo before submitting.",
			})
		} else {
			v = validation.Pass()
		}
	case *ManualEntry:
		v = validation.Validate(m.Record, c.manualRules)
	case *CsvBulk:
		v = merge(
			requireFile(m.File, "Please select a CSV file to upload."),
			validation.Validate(m.Columns, c.csvRules),
		)
	}

	c.verdict = v
	c.logger.Debug("capture validated", "mode", c.mode(), "status", v.Status, "errors", len(v.Errors))
	return v
}

// payload builds the request for the active mode. A camera whose still has
// gone since validation reports an unvalidated verdict.
func (c *Controller) payload() (backend.Request, validation.Verdict) {
	v := c.verdict

	var req backend.Request
	switch m := c.variant.(type) {
	case *ImageUpload:
		req = backend.Request{Kind: backend.KindImage, File: cloneFile(m.File)}
	case *LiveCamera:
		req = backend.Request{Kind: backend.KindImage}
		still := m.Camera.Still()
		if still == nil {
			v = validation.Verdict{}
			break
		}
		req.File = &backend.File{
			Name:        "capture.png",
			ContentType: still.ContentType,
			Data:        still.Data,
		}
	case *ManualEntry:
		req = backend.Request{Kind: backend.KindRecord, Fields: m.Record.Clone()}
	case *CsvBulk:
		req = backend.Request{Kind: backend.KindCsv, File: cloneFile(m.File), Fields: m.Columns.Clone()}
	}
	return req, v
}

func (c *Controller) construct(mode Mode) Variant {
	switch mode {
	case ModeImage:
		return &ImageUpload{}
	case ModeCamera:
		return &LiveCamera{Camera: c.newCamera()}
	case ModeManual:
		return &ManualEntry{Record: validation.Record{}}
	case ModeCsv:
		return &CsvBulk{Columns: validation.Record{}}
	}
	return nil
}

func (c *Controller) camera() (*camera.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCamera()
}

func (c *Controller) activeCamera() (*camera.Session, error) {
	if err := c.writable(); err != nil {
		return nil, err
	}
	lc, ok := c.variant.(*LiveCamera)
	if !ok {
		return nil, ErrWrongMode
	}
	return lc.Camera, nil
}

// resetVerdict clears the verdict if cam still belongs to the active mode.
func (c *Controller) resetVerdict(cam *camera.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lc, ok := c.variant.(*LiveCamera); ok && lc.Camera == cam {
		c.verdict = validation.Verdict{}
	}
}

func (c *Controller) record(from, to Mode) Transition {
	t := Transition{From: from, To: to, Phase: c.phase, At: time.Now().UTC()}
	c.events = append(c.events, t)
	return t
}

func (c *Controller) notify(t Transition) {
	if c.observer != nil {
		c.observer(t)
	}
}

func teardown(v Variant) {
	switch m := v.(type) {
	case *LiveCamera:
		m.Camera.Close()
	case *ImageUpload, *ManualEntry, *CsvBulk, nil:
	}
}

func requireFile(f *backend.File, message string) validation.Verdict {
	if f == nil || len(f.Data) == 0 {
		return validation.Fail(validation.FieldError{
			Field:   "file",
			Code:    validation.CodeMissing,
			Message: message,
		})
	}
	return validation.Pass()
}

func merge(verdicts ...validation.Verdict) validation.Verdict {
	var errs []validation.FieldError
	for _, v := range verdicts {
		errs = append(errs, v.Errors...)
	}
	if len(errs) > 0 {
		return validation.Fail(errs...)
	}
	return validation.Pass()
}

func cloneFile(f *backend.File) *backend.File {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}
