package jetstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ssuji15/docbuilder/internal/component/jetstream"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JetStreamCacheClient keeps cache entries in a JetStream object store. The
// bucket TTL applies to every entry.
type JetStreamCacheClient struct {
	connection *nats.Conn
	bucket     nats.ObjectStore
	ttl        int
}

func NewJetStreamCacheClient(cfg *config.NatsConfig) (*JetStreamCacheClient, error) {
	nc, err := jetstream.NewJetStreamClient(cfg)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	store, err := createOrGetObjectStore(js, cfg.BUCKET_NAME, cfg.TTL, cfg.BUCKET_SIZE_BYTES)
	if err != nil {
		return nil, err
	}
	return &JetStreamCacheClient{
		connection: nc,
		bucket:     store,
		ttl:        cfg.TTL,
	}, nil
}

func (j *JetStreamCacheClient) Put(ctx context.Context, key string, value interface{}, _ int) error {
	tracer := job_tracer.GetTracer()
	_, span := tracer.Start(ctx, "Nats/Put")
	defer span.End()

	if key == "" {
		err := fmt.Errorf("key cannot be empty")
		util.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("nats.context",
		trace.WithAttributes(attribute.String("key", key)),
	)
	if value == nil {
		err := fmt.Errorf("value cannot be nil")
		util.RecordSpanError(span, err)
		return err
	}

	b, err := msgpack.Marshal(value)
	if err != nil {
		err := fmt.Errorf("failed to marshal value for key %s: %w", key, err)
		util.RecordSpanError(span, err)
		return err
	}
	if _, err := j.bucket.PutBytes(key, b); err != nil {
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (j *JetStreamCacheClient) Get(ctx context.Context, key string, value interface{}) error {
	tracer := job_tracer.GetTracer()
	_, span := tracer.Start(ctx, "Nats/Get")
	defer span.End()

	if key == "" {
		err := fmt.Errorf("key cannot be empty")
		util.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("nats.context",
		trace.WithAttributes(attribute.String("key", key)),
	)

	b, err := j.bucket.GetBytes(key)
	if err != nil {
		return fmt.Errorf("failed to retrieve value for key %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(b, value); err != nil {
		err := fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (j *JetStreamCacheClient) GetDefaultTTL() int {
	return j.ttl
}

// Close leaves the shared connection open; it is owned by the component package.
func (j *JetStreamCacheClient) Close() error {
	return nil
}

func createOrGetObjectStore(js nats.JetStreamContext, bucket string, ttlSeconds int, bucketSizeBytes int) (nats.ObjectStore, error) {
	store, err := js.ObjectStore(bucket)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("error retrieving nats bucket instance: %w", err)
	}
	store, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "docbuilder cache",
		TTL:         time.Duration(ttlSeconds) * time.Second,
		MaxBytes:    int64(bucketSizeBytes),
		Storage:     nats.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create nats bucket: %w", err)
	}
	return store, nil
}
