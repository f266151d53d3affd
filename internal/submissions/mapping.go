package submissions

import (
	"fmt"
	"net/url"
	"time"

	"github.com/JaimeStill/loam/pkg/query"
	"github.com/JaimeStill/loam/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "submissions", "s").
	Project("id").
	Project("capture_id").
	Project("user_id").
	Project("mode").
	Project("status").
	Project("error").
	Project("result").
	Project("filename").
	Project("content_type").
	Project("size_bytes").
	Project("storage_key").
	Project("submitted_at").
	Project("completed_at")

var defaultSort = query.SortField{
	Field:      "completed_at",
	Descending: true,
}

// Filters contains optional filtering criteria for submission queries.
// Nil fields are ignored. Since and Until bound CompletedAt as [Since, Until).
type Filters struct {
	Mode   *string    `json:"mode,omitempty"`
	Status *string    `json:"status,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("mode", f.Mode).
		WhereEquals("status", f.Status).
		WhereRange("completed_at", f.Since, f.Until)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Timestamps are RFC 3339.
func FiltersFromQuery(values url.Values) (Filters, error) {
	var f Filters

	if m := values.Get("mode"); m != "" {
		f.Mode = &m
	}
	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	var err error
	if f.Since, err = parseTime(values, "since"); err != nil {
		return Filters{}, err
	}
	if f.Until, err = parseTime(values, "until"); err != nil {
		return Filters{}, err
	}
	return f, nil
}

func parseTime(values url.Values, key string) (*time.Time, error) {
	v := values.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC 3339", ErrInvalidRequest, key)
	}
	return &t, nil
}

func scanSubmission(s repository.Scanner) (Submission, error) {
	var (
		sub    Submission
		result []byte
	)
	err := s.Scan(
		&sub.ID,
		&sub.CaptureID,
		&sub.UserID,
		&sub.Mode,
		&sub.Status,
		&sub.Error,
		&result,
		&sub.Filename,
		&sub.ContentType,
		&sub.SizeBytes,
		&sub.StorageKey,
		&sub.SubmittedAt,
		&sub.CompletedAt,
	)
	sub.Result = result
	return sub, err
}
