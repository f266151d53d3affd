package captures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/loam/internal/submissions"
	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/capture"
	"github.com/JaimeStill/loam/pkg/lifecycle"
	"github.com/JaimeStill/loam/pkg/submission"
)

// System defines the public contract for capture session management.
// Sessions are owned by the creating user; lookups by any other user
// report ErrNotFound.
type System interface {
	Handler(maxUploadSize int64) *Handler

	Create(owner string) *Session
	Find(owner string, id uuid.UUID) (*Session, error)
	Remove(owner string, id uuid.UUID) error

	// Reap closes sessions idle since before cutoff and returns how many
	// were removed.
	Reap(cutoff time.Time) int
	// Start runs the idle reaper until shutdown, then closes every session.
	Start(lc *lifecycle.Coordinator) error
}

// Recorder persists completed submissions.
type Recorder interface {
	Record(ctx context.Context, cmd submissions.RecordCommand) (*submissions.Submission, error)
}

// Options configures the registry.
type Options struct {
	Backend     backend.Client
	Camera      capture.CameraFactory
	Recorder    Recorder
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

const recordTimeout = 30 * time.Second

type registry struct {
	backend     backend.Client
	camera      capture.CameraFactory
	recorder    Recorder
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// New creates an empty capture session registry.
func New(opts Options) System {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &registry{
		backend:     opts.Backend,
		camera:      opts.Camera,
		recorder:    opts.Recorder,
		idleTimeout: opts.IdleTimeout,
		logger:      logger.With("system", "captures"),
		now:         time.Now,
		sessions:    make(map[uuid.UUID]*Session),
	}
}

func (r *registry) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, maxUploadSize)
}

func (r *registry) Create(owner string) *Session {
	now := r.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		Owner:     owner,
		CreatedAt: now,
		lastSeen:  now,
	}

	logger := r.logger.With("capture", s.ID)
	s.controller = capture.New(capture.Options{
		Camera: r.camera,
		Logger: logger,
	})
	s.pipeline = submission.New(r.backend, submission.Options{
		OnComplete: func(req submission.Request, o submission.Outcome) {
			r.complete(s, req, o)
		},
		Logger: logger,
	})

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("capture session created", "id", s.ID, "owner", owner)
	return s
}

func (r *registry) Find(owner string, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok || s.Owner != owner {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

func (r *registry) Remove(owner string, id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.Owner != owner {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	s.Close()
	r.logger.Info("capture session closed", "id", id)
	return nil
}

func (r *registry) Reap(cutoff time.Time) int {
	return r.evict("idle capture session reaped", func(s *Session) bool {
		return s.idleSince().Before(cutoff)
	})
}

func (r *registry) evict(msg string, match func(*Session) bool) int {
	var evicted []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if match(s) {
			evicted = append(evicted, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Close()
		r.logger.Info(msg, "id", s.ID, "owner", s.Owner)
	}
	return len(evicted)
}

func (r *registry) Start(lc *lifecycle.Coordinator) error {
	if r.idleTimeout > 0 {
		interval := min(r.idleTimeout/2, time.Minute)
		go r.reap(lc.Context(), interval)
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		n := r.evict("capture session closed at shutdown", func(*Session) bool { return true })
		r.logger.Info("capture sessions drained", "count", n)
	})
	return nil
}

func (r *registry) reap(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(r.now().Add(-r.idleTimeout))
		}
	}
}

// complete settles the controller with the mode frozen at submit time and
// records the attempt in the submission history.
func (r *registry) complete(s *Session, req submission.Request, o submission.Outcome) {
	mode := s.controller.FinishSubmit(o.Status == submission.Success)

	if r.recorder == nil {
		return
	}

	cmd := submissions.RecordCommand{
		CaptureID:   s.ID,
		UserID:      s.Owner,
		Mode:        string(mode),
		Status:      o.Status.String(),
		Error:       o.Message,
		Payload:     req,
		SubmittedAt: o.SubmittedAt,
		CompletedAt: o.CompletedAt,
	}
	if o.Result != nil {
		cmd.Result = o.Result.Body
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := r.recorder.Record(ctx, cmd); err != nil {
		r.logger.Warn("submission history not recorded", "id", s.ID, "error", err)
	}
}
