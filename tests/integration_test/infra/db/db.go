package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ssuji15/docbuilder/internal/db"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupContainer starts postgres, applies the migrations and returns a pool.
func SetupContainer(ctx context.Context) (testcontainers.Container, *db.DB, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "docbuilder",
			"POSTGRES_PASSWORD": "docbuilder123",
			"POSTGRES_DB":       "docbuilder",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		panic(err)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")

	POSTGRES_URL := fmt.Sprintf(
		"postgres://docbuilder:docbuilder123@%s:%s/docbuilder?sslmode=disable",
		host,
		port.Port(),
	)

	if err := db.Migrate(POSTGRES_URL); err != nil {
		panic(err)
	}

	d, err := db.New(ctx, POSTGRES_URL)
	if err != nil {
		panic(err)
	}
	return container, d, POSTGRES_URL
}

func TruncateTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE queue, config, builds, releases, crates, sandbox_overrides RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
