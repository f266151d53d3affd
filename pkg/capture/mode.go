package capture

import (
	"fmt"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/camera"
	"github.com/JaimeStill/loam/pkg/validation"
)

// Mode tags the active capture experience.
type Mode string

const (
	ModeNone   Mode = ""
	ModeImage  Mode = "image"
	ModeCamera Mode = "camera"
	ModeManual Mode = "manual"
	ModeCsv    Mode = "csv"
)

// Modes lists the selectable capture modes.
var Modes = []Mode{ModeImage, ModeCamera, ModeManual, ModeCsv}

// ParseMode resolves a mode tag.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeImage, ModeCamera, ModeManual, ModeCsv:
		return m, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Phase is the controller's position in its lifecycle.
type Phase string

const (
	PhaseSelecting Phase = "selecting"
	PhaseCapturing Phase = "capturing"
	PhaseSubmitted Phase = "submitted"
)

// Variant is the state held by one capture mode. The set of variants is
// closed; every consumer dispatches on it with a type switch.
type Variant interface {
	Mode() Mode
	variant()
}

// ImageUpload holds a photo chosen from the device.
type ImageUpload struct {
	File *backend.File
}

// LiveCamera holds the camera session for the live capture mode.
type LiveCamera struct {
	Camera *camera.Session
}

// ManualEntry holds the soil parameters typed into the form.
type ManualEntry struct {
	Record validation.Record
}

// CsvBulk holds a bulk CSV upload and its companion columns.
type CsvBulk struct {
	File    *backend.File
	Columns validation.Record
}

func (ImageUpload) Mode() Mode { return ModeImage }
func (LiveCamera) Mode() Mode  { return ModeCamera }
func (ManualEntry) Mode() Mode { return ModeManual }
func (CsvBulk) Mode() Mode     { return ModeCsv }

func (ImageUpload) variant() {}
func (LiveCamera) variant()  {}
func (ManualEntry) variant() {}
func (CsvBulk) variant()     {}

// FileInfo describes an attached file without its contents.
type FileInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
}

func fileInfo(f *backend.File) *FileInfo {
	if f == nil {
		return nil
	}
	return &FileInfo{Name: f.Name, ContentType: f.ContentType, Size: len(f.Data)}
}
