package submissions

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/loam/pkg/pagination"
	"github.com/JaimeStill/loam/pkg/storage"
)

// System defines the public contract for submission history operations.
// Read operations are scoped to the owning user.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		userID string,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Submission], error)

	Find(ctx context.Context, userID string, id uuid.UUID) (*Submission, error)
	Last(ctx context.Context, userID string) (*Submission, error)
	Payload(ctx context.Context, userID string, id uuid.UUID) (*storage.Blob, *Submission, error)
	Record(ctx context.Context, cmd RecordCommand) (*Submission, error)
}
