package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrMissingPath = errors.New("required path does not exist")

type Config struct {
	SERVICE_NAME string `env:"SERVICE_NAME" envDefault:"docbuilder"`
	LOG_LEVEL    string `env:"LOG_LEVEL" envDefault:"info"`
	TRACE_URL    string `env:"TRACE_URL"`
	CACHE_TYPE   string `env:"CACHE_TYPE" envDefault:"freecache"`
	STORAGE_TYPE string `env:"STORAGE_TYPE" envDefault:"minio"`
	SANDBOX_TYPE string `env:"SANDBOX_TYPE" envDefault:"docker"`
	EVENTS_TYPE  string `env:"EVENTS_TYPE" envDefault:"none"`
	METRICS_TYPE string `env:"METRICS_TYPE" envDefault:"prometheus"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL,required,notEmpty"`
}

type MinioConfig struct {
	URL        string `env:"MINIO_ENDPOINT,required,notEmpty"`
	BUCKET     string `env:"MINIO_BUCKET,required,notEmpty"`
	ACCESS_KEY string `env:"MINIO_ACCESS_KEY,required,notEmpty"`
	SECRET_KEY string `env:"MINIO_SECRET_KEY,required,notEmpty"`
	USE_SSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type RedisConfig struct {
	URL            string `env:"REDIS_ENDPOINT,required,notEmpty"`
	ClientPassword string `env:"REDIS_CLIENT_PASSWORD"`
	TTL            int    `env:"REDIS_TTL" envDefault:"600"`
}

type FreeCacheConfig struct {
	SIZE_BYTES int `env:"FREECACHE_SIZE" envDefault:"1048576"`
	TTL        int `env:"FREECACHE_TTL" envDefault:"600"`
}

type NatsConfig struct {
	URL               string `env:"JETSTREAM_URL,required,notEmpty"`
	STREAM_NAME       string `env:"JETSTREAM_STREAM" envDefault:"DOCBUILDER"`
	BUCKET_NAME       string `env:"JETSTREAM_BUCKET_NAME" envDefault:"DOCBUILDER_CACHE"`
	BUCKET_SIZE_BYTES int    `env:"JETSTREAM_BUCKET_SIZE" envDefault:"1048576"`
	TTL               int    `env:"JETSTREAM_TTL" envDefault:"600"`
}

type SandboxConfig struct {
	IMAGE            string `env:"SANDBOX_IMAGE" envDefault:"rustops/crates-build-env"`
	RUNTIME          string `env:"SANDBOX_RUNTIME" envDefault:"runc"`
	SECCOMP_PROFILE  string `env:"SECCOMP_PROFILE"`
	APPARMOR_PROFILE string `env:"APPARMOR_PROFILE"`
	CPU_QUOTA        int64  `env:"SANDBOX_CPU_QUOTA" envDefault:"200000"`
	PIDS_LIMIT       int64  `env:"SANDBOX_PIDS_LIMIT" envDefault:"512"`
	// HOST_NETWORK lets the containerd backend join the host network
	// namespace when a build asks for networking. The host's loopback
	// services become reachable from build scripts.
	HOST_NETWORK bool `env:"SANDBOX_HOST_NETWORK" envDefault:"false"`
}

// BuilderConfig holds the on-disk layout and builder switches.
type BuilderConfig struct {
	PREFIX               string `env:"DOCBUILDER_PREFIX,required,notEmpty"`
	DESTINATION          string `env:"DOCBUILDER_DESTINATION"`
	INDEX_PATH           string `env:"DOCBUILDER_INDEX_PATH"`
	INDEX_BRANCH         string `env:"DOCBUILDER_INDEX_BRANCH" envDefault:"master"`
	WORKSPACE            string `env:"DOCBUILDER_WORKSPACE"`
	TOOLCHAIN            string `env:"DOCBUILDER_TOOLCHAIN" envDefault:"nightly"`
	DOCS_BASE_URL        string `env:"DOCBUILDER_DOCS_BASE_URL" envDefault:"https://docs.rs"`
	DOWNLOAD_URL         string `env:"DOCBUILDER_DOWNLOAD_URL" envDefault:"https://static.crates.io/crates"`
	SETTINGS_FILE        string `env:"BUILD_SETTINGS_FILE"`
	KEEP_BUILD_DIRECTORY bool   `env:"KEEP_BUILD_DIRECTORY" envDefault:"false"`
	SKIP_IF_EXISTS       bool   `env:"SKIP_IF_EXISTS" envDefault:"false"`
	SKIP_IF_LOG_EXISTS   bool   `env:"SKIP_IF_LOG_EXISTS" envDefault:"false"`
}

type LimitsConfig struct {
	MEMORY_BYTES  int64         `env:"LIMITS_MEMORY_BYTES" envDefault:"3221225472"`
	NETWORKING    bool          `env:"LIMITS_NETWORKING" envDefault:"false"`
	TIMEOUT       time.Duration `env:"LIMITS_TIMEOUT" envDefault:"15m"`
	MAX_LOG_BYTES int           `env:"LIMITS_MAX_LOG_BYTES" envDefault:"102400"`
}

type QueueConfig struct {
	CLAIM_LEASE      time.Duration `env:"QUEUE_CLAIM_LEASE" envDefault:"3h"`
	ENQUEUE_INTERVAL time.Duration `env:"QUEUE_ENQUEUE_INTERVAL" envDefault:"1m"`
	WORKER_INTERVAL  time.Duration `env:"QUEUE_WORKER_INTERVAL" envDefault:"10s"`
}

type MetricsConfig struct {
	ADDR string `env:"METRICS_ADDR"`
}

func parse[T any]() (*T, error) {
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}
	return &cfg, nil
}

func GetConfig() (*Config, error) {
	return parse[Config]()
}

func GetPostgresConfig() (*PostgresConfig, error) {
	return parse[PostgresConfig]()
}

func GetMinioConfig() (*MinioConfig, error) {
	return parse[MinioConfig]()
}

func GetRedisConfig() (*RedisConfig, error) {
	return parse[RedisConfig]()
}

func GetFreeCacheConfig() (*FreeCacheConfig, error) {
	return parse[FreeCacheConfig]()
}

func GetNatsConfig() (*NatsConfig, error) {
	return parse[NatsConfig]()
}

func GetSandboxConfig() (*SandboxConfig, error) {
	return parse[SandboxConfig]()
}

func GetLimitsConfig() (*LimitsConfig, error) {
	return parse[LimitsConfig]()
}

func GetQueueConfig() (*QueueConfig, error) {
	return parse[QueueConfig]()
}

func GetMetricsConfig() (*MetricsConfig, error) {
	return parse[MetricsConfig]()
}

// GetBuilderConfig derives the destination, index and workspace paths from
// the prefix unless they are set explicitly.
func GetBuilderConfig() (*BuilderConfig, error) {
	cfg, err := parse[BuilderConfig]()
	if err != nil {
		return nil, err
	}
	if cfg.DESTINATION == "" {
		cfg.DESTINATION = filepath.Join(cfg.PREFIX, "documentations")
	}
	if cfg.INDEX_PATH == "" {
		cfg.INDEX_PATH = filepath.Join(cfg.PREFIX, "crates.io-index")
	}
	if cfg.WORKSPACE == "" {
		cfg.WORKSPACE = filepath.Join(cfg.PREFIX, ".workspace")
	}
	return cfg, nil
}

// CacheFile is where the completion cache checkpoint lives.
func (c *BuilderConfig) CacheFile() string {
	return filepath.Join(c.PREFIX, "cache")
}

func (c *BuilderConfig) CheckPaths() error {
	if _, err := os.Stat(c.DESTINATION); err != nil {
		return fmt.Errorf("destination path '%s': %w", c.DESTINATION, ErrMissingPath)
	}
	if _, err := os.Stat(c.INDEX_PATH); err != nil {
		return fmt.Errorf("crates.io-index path '%s': %w", c.INDEX_PATH, ErrMissingPath)
	}
	return nil
}
