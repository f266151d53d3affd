package capture

import "errors"

var (
	ErrUnknownMode = errors.New("unknown capture mode")
	ErrNoMode      = errors.New("no capture mode selected")
	ErrWrongMode   = errors.New("operation not valid for the active capture mode")
	ErrSubmitted   = errors.New("capture already submitted")
	ErrEmptyFile   = errors.New("file is empty")
	ErrSubmitting  = errors.New("capture submission pending")
	ErrClosed      = errors.New("capture closed")
)
