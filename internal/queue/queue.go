package queue

import (
	"context"
	"errors"

	"github.com/ssuji15/docbuilder/model"
)

// MaxAttempts is the number of failed builds after which an entry is never
// selected again. Such entries stay in the queue for inspection.
const MaxAttempts = 5

var ErrQueueEmpty = errors.New("no eligible queue entry")

// Queue is the persistent build queue.
type Queue interface {
	Enqueue(ctx context.Context, name, version string, priority int) error
	CountEligible(ctx context.Context) (int64, error)
	// ClaimNext returns ErrQueueEmpty when nothing is eligible.
	ClaimNext(ctx context.Context) (*model.QueueEntry, error)
	RecordSuccess(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64) error
	// ExtendClaim renews the lease of a claimed entry.
	ExtendClaim(ctx context.Context, id int64) error
}
