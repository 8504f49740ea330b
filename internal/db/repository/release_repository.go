package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ReleaseRepository struct {
	db *db.DB
}

func NewReleaseRepository(db *db.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

func jsonList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

// AddPackage upserts the crate and its release row in a transaction and
// returns the release id.
func (r *ReleaseRepository) AddPackage(ctx context.Context, rec model.ReleaseRecord) (int64, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/AddPackage")
	defer span.End()

	root := rec.Metadata.Root
	span.AddEvent("release.context",
		trace.WithAttributes(attribute.String("name", root.Name), attribute.String("version", root.Version)),
	)

	keywords, err := jsonList(root.Keywords)
	if err != nil {
		return 0, err
	}
	authors, err := jsonList(root.Authors)
	if err != nil {
		return 0, err
	}
	deps, err := jsonList(rec.Metadata.RootDependencies)
	if err != nil {
		return 0, err
	}
	files, err := jsonList(rec.Files)
	if err != nil {
		return 0, err
	}
	targets, err := jsonList(rec.DocTargets)
	if err != nil {
		return 0, err
	}
	docsMeta, err := json.Marshal(rec.PackageMetadata)
	if err != nil {
		return 0, err
	}

	var defaultTarget string
	var buildStatus bool
	if rec.Result != nil {
		defaultTarget = rec.Result.Target
		buildStatus = rec.Result.Successful
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}
	defer tx.Rollback(ctx)

	var crateID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO crates (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, root.Name).Scan(&crateID)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, fmt.Errorf("failed to upsert crate %s: %w", root.Name, err)
	}

	var releaseID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO releases (
			crate_id, version, description, license, repository_url, homepage_url,
			documentation_url, keywords, authors, dependencies, files, target_name,
			default_target, doc_targets, rustdoc_status, build_status, have_examples,
			source_directory, docs_metadata
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (crate_id, version) DO UPDATE SET
			description       = EXCLUDED.description,
			license           = EXCLUDED.license,
			repository_url    = EXCLUDED.repository_url,
			homepage_url      = EXCLUDED.homepage_url,
			documentation_url = EXCLUDED.documentation_url,
			keywords          = EXCLUDED.keywords,
			authors           = EXCLUDED.authors,
			dependencies      = EXCLUDED.dependencies,
			files             = EXCLUDED.files,
			target_name       = EXCLUDED.target_name,
			default_target    = EXCLUDED.default_target,
			doc_targets       = EXCLUDED.doc_targets,
			rustdoc_status    = EXCLUDED.rustdoc_status,
			build_status      = EXCLUDED.build_status,
			have_examples     = EXCLUDED.have_examples,
			source_directory  = EXCLUDED.source_directory,
			docs_metadata     = EXCLUDED.docs_metadata,
			release_time      = now()
		RETURNING id
	`,
		crateID,
		root.Version,
		root.Description,
		root.License,
		root.Repository,
		root.Homepage,
		root.Documentation,
		keywords,
		authors,
		deps,
		files,
		root.LibName,
		defaultTarget,
		targets,
		rec.HasDocs,
		buildStatus,
		rec.HasExamples,
		rec.SourceDirectory,
		docsMeta,
	).Scan(&releaseID)
	if err != nil {
		util.RecordSpanError(span, err)
		return 0, fmt.Errorf("failed to upsert release %s-%s: %w", root.Name, root.Version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		util.RecordSpanError(span, err)
		return 0, err
	}
	return releaseID, nil
}

// AddBuild records one build attempt of a release.
func (r *ReleaseRepository) AddBuild(ctx context.Context, releaseID int64, res *model.BuildResult) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Postgres/AddBuild")
	defer span.End()

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO builds (rid, rustc_version, service_version, build_status, output)
		VALUES ($1, $2, $3, $4, $5)
	`, releaseID, res.ToolchainVersion, res.ServiceVersion, res.Successful, res.BuildLog)
	if err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to add build for release %d: %w", releaseID, err)
	}
	return nil
}
