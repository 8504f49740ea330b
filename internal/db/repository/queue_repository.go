package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/queue"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type QueueRepository struct {
	db    *db.DB
	lease time.Duration
}

// NewQueueRepository returns the postgres backed build queue. lease bounds how
// long a claimed entry stays invisible to other workers.
func NewQueueRepository(db *db.DB, lease time.Duration) *QueueRepository {
	return &QueueRepository{db: db, lease: lease}
}

// Enqueue adds a build job. An entry that already exists for the same name and
// version is left untouched and no error is returned.
func (r *QueueRepository) Enqueue(ctx context.Context, name, version string, priority int) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/Enqueue")
	defer span.End()

	span.AddEvent("queue.context",
		trace.WithAttributes(attribute.String("name", name), attribute.String("version", version)),
	)

	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO queue (name, version, priority) VALUES ($1, $2, $3)`,
		name, version, priority,
	)
	if err != nil {
		if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to enqueue %s-%s: %w", name, version, err)
	}
	return nil
}

func (r *QueueRepository) CountEligible(ctx context.Context) (int64, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/CountEligible")
	defer span.End()

	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue WHERE attempt < $1`, queue.MaxAttempts,
	).Scan(&count)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// ClaimNext selects the next eligible entry and stamps a lease on it in one
// statement. Rows locked by a concurrent claim are skipped.
func (r *QueueRepository) ClaimNext(ctx context.Context) (*model.QueueEntry, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/ClaimNext")
	defer span.End()

	query := `
		UPDATE queue
		SET locked_until = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id
			FROM queue
			WHERE attempt < $1
			AND (locked_until IS NULL OR locked_until < now())
			ORDER BY priority ASC, attempt ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, version, priority, attempt;
	`
	var e model.QueueEntry
	err := r.db.Pool.QueryRow(ctx, query, queue.MaxAttempts, r.lease.Seconds()).
		Scan(&e.ID, &e.Name, &e.Version, &e.Priority, &e.Attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrQueueEmpty
	}
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to claim queue entry: %w", err)
	}
	return &e, nil
}

func (r *QueueRepository) RecordSuccess(ctx context.Context, id int64) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/RecordSuccess")
	defer span.End()

	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM queue WHERE id = $1`, id); err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to delete queue entry %d: %w", id, err)
	}
	return nil
}

// ExtendClaim pushes the lease of a claimed entry one full lease into the
// future. The worker calls it periodically while the build runs.
func (r *QueueRepository) ExtendClaim(ctx context.Context, id int64) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/ExtendClaim")
	defer span.End()

	_, err := r.db.Pool.Exec(ctx,
		`UPDATE queue SET locked_until = now() + make_interval(secs => $2) WHERE id = $1`,
		id, r.lease.Seconds(),
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to extend claim on queue entry %d: %w", id, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter and releases the claim. The entry is
// kept even once it stops being eligible.
func (r *QueueRepository) RecordFailure(ctx context.Context, id int64) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/RecordFailure")
	defer span.End()

	_, err := r.db.Pool.Exec(ctx,
		`UPDATE queue SET attempt = attempt + 1, locked_until = NULL WHERE id = $1`, id,
	)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to record failure for queue entry %d: %w", id, err)
	}
	return nil
}

// List returns every row of the queue, quarantined entries included.
func (r *QueueRepository) List(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, version, priority, attempt FROM queue ORDER BY priority, attempt, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Version, &e.Priority, &e.Attempt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}
