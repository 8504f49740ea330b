package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/storage"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/ssuji15/docbuilder/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinioClient wraps the MinIO SDK client.
type MinioClient struct {
	client    *minio.Client
	bucket    string
	transport *http.Transport
}

// NewMinioClient connects to MinIO and creates the bucket when missing.
func NewMinioClient(ctx context.Context, cfg *config.MinioConfig) (*MinioClient, error) {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	cli, err := minio.New(cfg.URL, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.ACCESS_KEY, cfg.SECRET_KEY, ""),
		Secure:    cfg.USE_SSL,
		Transport: transport,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, cfg.BUCKET)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.BUCKET, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.BUCKET, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.BUCKET, err)
		}
	}

	return &MinioClient{client: cli, bucket: cfg.BUCKET, transport: transport}, nil
}

func (m *MinioClient) PutTree(ctx context.Context, prefix, localPath string) ([]model.StoredFile, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "MinIO/PutTree")
	defer span.End()

	span.AddEvent("storage.context",
		trace.WithAttributes(attribute.String("prefix", prefix), attribute.String("path", localPath)),
	)

	files, err := storage.ListTree(prefix, localPath)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, fmt.Errorf("failed to list %s: %w", localPath, err)
	}

	stored := make([]model.StoredFile, 0, len(files))
	for _, f := range files {
		if err := m.putFile(ctx, f); err != nil {
			util.RecordSpanError(span, err)
			return nil, err
		}
		stored = append(stored, model.StoredFile{Mime: f.Mime, Path: f.ObjectPath})
	}
	return stored, nil
}

func (m *MinioClient) putFile(ctx context.Context, f storage.File) error {
	file, err := os.Open(f.LocalPath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, f.ObjectPath, file, stat.Size(), minio.PutObjectOptions{ContentType: f.Mime})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", f.ObjectPath, err)
	}
	return nil
}

func (m *MinioClient) Put(ctx context.Context, objectPath string, data []byte, mime string) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "MinIO/Put")
	defer span.End()

	reader := bytes.NewReader(data)
	_, err := m.client.PutObject(ctx, m.bucket, objectPath, reader, int64(len(data)), minio.PutObjectOptions{ContentType: mime})
	if err != nil {
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (m *MinioClient) Get(ctx context.Context, objectPath string) ([]byte, error) {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "MinIO/Get")
	defer span.End()

	object, err := m.client.GetObject(ctx, m.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	defer object.Close()

	// check if the object exists
	if _, err := object.Stat(); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	data, err := io.ReadAll(object)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	return data, nil
}

func (m *MinioClient) Close() {
	m.transport.CloseIdleConnections()
}
