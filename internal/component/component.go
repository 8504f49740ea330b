package component

import (
	"context"
	"fmt"

	"github.com/ssuji15/docbuilder/internal/cache"
	"github.com/ssuji15/docbuilder/internal/cache/freecache"
	"github.com/ssuji15/docbuilder/internal/cache/jetstream"
	"github.com/ssuji15/docbuilder/internal/cache/redis"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/events"
	ejs "github.com/ssuji15/docbuilder/internal/events/jetstream"
	"github.com/ssuji15/docbuilder/internal/metrics"
	"github.com/ssuji15/docbuilder/internal/sandbox"
	"github.com/ssuji15/docbuilder/internal/sandbox/containerd"
	"github.com/ssuji15/docbuilder/internal/sandbox/docker"
	"github.com/ssuji15/docbuilder/internal/storage"
	"github.com/ssuji15/docbuilder/internal/storage/local"
	"github.com/ssuji15/docbuilder/internal/storage/minio"
)

func GetCache(ctx context.Context, cacheType string) (cache.Cache, error) {
	switch cacheType {
	case "redis":
		cfg, err := config.GetRedisConfig()
		if err != nil {
			return nil, err
		}
		return redis.NewRedisCacheClient(ctx, cfg)
	case "jetstream":
		cfg, err := config.GetNatsConfig()
		if err != nil {
			return nil, err
		}
		return jetstream.NewJetStreamCacheClient(cfg)
	default:
		cfg, err := config.GetFreeCacheConfig()
		if err != nil {
			return nil, err
		}
		return freecache.NewFreeCache(cfg), nil
	}
}

// GetStorage returns the artifact store. The local store writes below root.
func GetStorage(ctx context.Context, storageType, root string) (storage.Storage, error) {
	switch storageType {
	case "local":
		return local.New(root)
	default:
		cfg, err := config.GetMinioConfig()
		if err != nil {
			return nil, err
		}
		return minio.NewMinioClient(ctx, cfg)
	}
}

func GetSandbox(sandboxType string) (sandbox.Sandbox, error) {
	cfg, err := config.GetSandboxConfig()
	if err != nil {
		return nil, err
	}
	switch sandboxType {
	case "containerd":
		return containerd.NewContainerdSandbox(cfg)
	case "docker":
		return docker.NewDockerSandbox(cfg)
	default:
		return nil, fmt.Errorf("unknown sandbox type %q", sandboxType)
	}
}

func GetPublisher(eventsType string) (events.Publisher, error) {
	switch eventsType {
	case "jetstream":
		cfg, err := config.GetNatsConfig()
		if err != nil {
			return nil, err
		}
		return ejs.NewPublisher(cfg)
	default:
		return events.Nop{}, nil
	}
}

// GetRecorder returns the metrics recorder. The prometheus recorder is also
// returned separately so its handler can be mounted on the status server.
func GetRecorder(metricsType string) (metrics.Recorder, *metrics.PrometheusRecorder, error) {
	switch metricsType {
	case "prometheus":
		pr := metrics.NewPrometheusRecorder(nil)
		return pr, pr, nil
	case "otel":
		r, err := metrics.NewOtelRecorder()
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	default:
		return metrics.NoopRecorder{}, nil, nil
	}
}
