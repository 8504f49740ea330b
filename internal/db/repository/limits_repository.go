package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
)

// LimitsRepository resolves sandbox limits from the configured defaults and the
// per crate overrides table.
type LimitsRepository struct {
	db       *db.DB
	defaults model.BuildLimits
}

func NewLimitsRepository(db *db.DB, defaults model.BuildLimits) *LimitsRepository {
	return &LimitsRepository{db: db, defaults: defaults}
}

func (r *LimitsRepository) LimitsFor(ctx context.Context, name string) (model.BuildLimits, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/LimitsFor")
	defer span.End()

	limits := r.defaults
	var memory *int64
	var timeout *int32
	err := r.db.Pool.QueryRow(ctx,
		`SELECT max_memory_bytes, timeout_seconds FROM sandbox_overrides WHERE crate_name = $1`, name,
	).Scan(&memory, &timeout)
	if errors.Is(err, pgx.ErrNoRows) {
		return limits, nil
	}
	if err != nil {
		util.RecordSpanError(span, err)
		return limits, fmt.Errorf("failed to load sandbox overrides for %s: %w", name, err)
	}
	if memory != nil {
		limits.MemoryBytes = *memory
	}
	if timeout != nil {
		limits.Timeout = time.Duration(*timeout) * time.Second
	}
	return limits, nil
}

// SetOverride stores per crate limits. A nil value keeps the default.
func (r *LimitsRepository) SetOverride(ctx context.Context, name string, memory *int64, timeout *time.Duration) error {
	var secs *int32
	if timeout != nil {
		s := int32(timeout.Seconds())
		secs = &s
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sandbox_overrides (crate_name, max_memory_bytes, timeout_seconds)
		VALUES ($1, $2, $3)
		ON CONFLICT (crate_name) DO UPDATE SET
			max_memory_bytes = EXCLUDED.max_memory_bytes,
			timeout_seconds  = EXCLUDED.timeout_seconds
	`, name, memory, secs)
	if err != nil {
		return fmt.Errorf("failed to set sandbox override for %s: %w", name, err)
	}
	return nil
}
