// Package captures hosts server-side capture sessions. Each session pairs a
// capture.Controller with a submission.Pipeline on behalf of one user, and
// leaving the session releases the camera and discards any in-flight
// submission.
package captures

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/loam/pkg/capture"
	"github.com/JaimeStill/loam/pkg/submission"
	"github.com/JaimeStill/loam/pkg/validation"
)

// Session is one capture page opened by a user.
type Session struct {
	ID        uuid.UUID
	Owner     string
	CreatedAt time.Time

	controller *capture.Controller
	pipeline   *submission.Pipeline

	mu       sync.Mutex
	lastSeen time.Time
}

// View is the rendered state of a Session.
type View struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	capture.State
	Submission submission.Outcome `json:"submission"`
}

// Controller returns the session's capture-mode state machine.
func (s *Session) Controller() *capture.Controller {
	return s.controller
}

// View returns the current state of the session.
func (s *Session) View() View {
	return View{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		State:      s.controller.State(),
		Submission: s.pipeline.Outcome(),
	}
}

// Submit validates the active payload and starts a submission. An invalid
// payload returns the failing verdict and submission.ErrNotValidated. Until
// the attempt completes the controller refuses mode changes and input.
func (s *Session) Submit() (validation.Verdict, error) {
	req, verdict, err := s.controller.BeginSubmit()
	if err != nil {
		return verdict, err
	}
	if !verdict.Valid() {
		return verdict, submission.ErrNotValidated
	}

	if err := s.pipeline.Submit(req, verdict); err != nil {
		s.controller.FinishSubmit(false)
		return verdict, err
	}
	return verdict, nil
}

// Wait blocks until the in-flight submission completes or ctx is done. The
// controller has settled by the time a completed outcome is returned.
func (s *Session) Wait(ctx context.Context) (submission.Outcome, error) {
	return s.pipeline.Wait(ctx)
}

// Close releases the camera and abandons any in-flight submission.
func (s *Session) Close() {
	s.pipeline.Close()
	s.controller.Close()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
