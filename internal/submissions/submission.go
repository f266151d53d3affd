// Package submissions records completed capture submissions and serves the
// results history. Each record archives the submitted payload to blob
// storage and keeps the backend result or failure message.
package submissions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/loam/pkg/backend"
)

// Submission is a recorded submission attempt and its outcome.
type Submission struct {
	ID          uuid.UUID       `json:"id"`
	CaptureID   uuid.UUID       `json:"capture_id"`
	UserID      string          `json:"user_id"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Error       *string         `json:"error"`
	Result      json.RawMessage `json:"result"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	StorageKey  string          `json:"storage_key"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// RecordCommand carries a completed submission to persist.
// When Payload.File is nil the record fields are archived as JSON.
type RecordCommand struct {
	CaptureID   uuid.UUID
	UserID      string
	Mode        string
	Status      string
	Error       string
	Result      json.RawMessage
	Payload     backend.Request
	SubmittedAt time.Time
	CompletedAt time.Time
}

// archive returns the blob that represents the submitted payload.
func (c RecordCommand) archive() (backend.File, error) {
	if c.Payload.File != nil {
		return *c.Payload.File, nil
	}

	data, err := json.Marshal(c.Payload.Fields)
	if err != nil {
		return backend.File{}, err
	}
	return backend.File{
		Name:        "record.json",
		ContentType: "application/json",
		Data:        data,
	}, nil
}
