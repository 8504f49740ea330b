package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/util"
)

// ErrConfigNotFound is returned by Get for an unknown key.
var ErrConfigNotFound = errors.New("config key not found")

type ConfigRepository struct {
	db *db.DB
}

func NewConfigRepository(db *db.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Upsert stores value as JSON under key, replacing any previous value.
func (r *ConfigRepository) Upsert(ctx context.Context, key string, value any) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/UpsertConfig")
	defer span.End()

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", key, err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO config (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, key, b)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to upsert config %s: %w", key, err)
	}
	return nil
}

// Get decodes the JSON value stored under key into dst.
func (r *ConfigRepository) Get(ctx context.Context, key string, dst any) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/GetConfig")
	defer span.End()

	var b []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM config WHERE name = $1`, key).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConfigNotFound
	}
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return json.Unmarshal(b, dst)
}
