package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	component "github.com/ssuji15/docbuilder/internal/component/redis"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/job_tracer"
	"github.com/ssuji15/docbuilder/internal/util"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RedisClient struct {
	client *redis.Client
	ttl    int
}

func NewRedisCacheClient(ctx context.Context, cfg *config.RedisConfig) (*RedisClient, error) {
	rc, err := component.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RedisClient{client: rc, ttl: cfg.TTL}, nil
}

func (r *RedisClient) Put(ctx context.Context, key string, value interface{}, ttl int) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Redis/Put")
	defer span.End()
	if key == "" {
		err := fmt.Errorf("key cannot be empty")
		util.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("redis.context",
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
	if err := r.client.Set(ctx, key, b, time.Duration(ttl)*time.Second).Err(); err != nil {
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (r *RedisClient) Get(ctx context.Context, key string, value interface{}) error {
	tracer := job_tracer.GetTracer()
	ctx, span := tracer.Start(ctx, "Redis/Get")
	defer span.End()
	if key == "" {
		err := fmt.Errorf("key cannot be empty")
		util.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("redis.context",
		trace.WithAttributes(attribute.String("key", key)),
	)

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("failed to retrieve value for key %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(val, value); err != nil {
		err := fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (r *RedisClient) GetDefaultTTL() int {
	return r.ttl
}

func (r *RedisClient) Close() error {
	err := r.client.Close()
	component.ResetRedisClient()
	return err
}
