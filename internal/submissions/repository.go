package submissions

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/JaimeStill/loam/pkg/pagination"
	"github.com/JaimeStill/loam/pkg/query"
	"github.com/JaimeStill/loam/pkg/repository"
	"github.com/JaimeStill/loam/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a submission repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		logger:     logger.With("system", "submissions"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	userID string,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Submission], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("user_id", userID).
		WhereSearch(page.Search, "filename", "error")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	subs, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanSubmission)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}

	result := pagination.NewPageResult(subs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, userID string, id uuid.UUID) (*Submission, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("id", id).
		WhereEquals("user_id", userID).
		BuildSingleOrNull()

	s, err := repository.QueryOne(ctx, r.db, q, args, scanSubmission)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

func (r *repo) Last(ctx context.Context, userID string) (*Submission, error) {
	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("user_id", userID).
		BuildPage(1, 1)

	s, err := repository.QueryOne(ctx, r.db, q, args, scanSubmission)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

func (r *repo) Payload(ctx context.Context, userID string, id uuid.UUID) (*storage.Blob, *Submission, error) {
	s, err := r.Find(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	blob, err := r.storage.Download(ctx, s.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("download payload: %w", err)
	}
	return blob, s, nil
}

func (r *repo) Record(ctx context.Context, cmd RecordCommand) (*Submission, error) {
	file, err := cmd.archive()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	id := uuid.New()
	filename := sanitizeFilename(file.Name)
	key := buildStorageKey(id, filename)

	if err := r.storage.Upload(ctx, key, bytes.NewReader(file.Data), file.ContentType); err != nil {
		return nil, fmt.Errorf("upload payload blob: %w", err)
	}

	var errMsg *string
	if cmd.Error != "" {
		errMsg = &cmd.Error
	}

	q := `
		INSERT INTO submissions(id, capture_id, user_id, mode, status, error, result, filename, content_type, size_bytes, storage_key, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, capture_id, user_id, mode, status, error, result, filename, content_type, size_bytes, storage_key, submitted_at, completed_at`

	insertArgs := []any{
		id,
		cmd.CaptureID,
		cmd.UserID,
		cmd.Mode,
		cmd.Status,
		errMsg,
		nullableJSON(cmd.Result),
		filename,
		file.ContentType,
		int64(len(file.Data)),
		key,
		cmd.SubmittedAt,
		cmd.CompletedAt,
	}

	s, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Submission, error) {
		return repository.QueryOne(ctx, tx, q, insertArgs, scanSubmission)
	})

	if err != nil {
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate, ErrInvalidRequest)
	}

	r.logger.Info("submission recorded", "id", s.ID, "capture", s.CaptureID, "status", s.Status)
	return &s, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func buildStorageKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("submissions/%s/%s", id, filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "payload"
	}
	return url.PathEscape(name)
}
