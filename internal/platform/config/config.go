// Package config loads server configuration from defaults, an optional TOML file,
// an optional .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("invalid config")

// Store kinds accepted for the registry backends.
const (
	StoreBlob  = "blob"
	StoreTable = "table"
	StoreMock  = "mock"
)

// Reconcile modes.
const (
	ReconcileInline = "inline"
	ReconcileKafka  = "kafka"
	ReconcileNone   = "none"
)

// Duration parses Go duration strings ("250ms", "5s") from TOML and env alike.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server    Server      `toml:"server"`
	Logging   Logging     `toml:"logging"`
	Registry  Registry    `toml:"registry"`
	Blob      Blob        `toml:"blob"`
	Postgres  Postgres    `toml:"postgres"`
	Redis     RedisConfig `toml:"redis"`
	Media     Media       `toml:"media"`
	Retry     Retry       `toml:"retry"`
	Reconcile Reconcile   `toml:"reconcile"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string   `toml:"addr" env:"TRAILHEAD_ADDR"`
	Environment       string   `toml:"environment" env:"TRAILHEAD_ENV"`
	AdminToken        string   `toml:"admin_token" env:"TRAILHEAD_ADMIN_TOKEN"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout" env:"TRAILHEAD_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout" env:"TRAILHEAD_SHUTDOWN_TIMEOUT"`
}

type Logging struct {
	Level     string `toml:"level" env:"TRAILHEAD_LOG_LEVEL"`
	Format    string `toml:"format" env:"TRAILHEAD_LOG_FORMAT"`
	File      string `toml:"file" env:"TRAILHEAD_LOG_FILE"`
	MaxSizeMB int    `toml:"max_size_mb" env:"TRAILHEAD_LOG_MAX_SIZE_MB"`
	MaxFiles  int    `toml:"max_files" env:"TRAILHEAD_LOG_MAX_FILES"`
}

// Registry selects the document stores. SecondaryStore enables a staged migration
// in which writes go to both stores.
type Registry struct {
	PrimaryStore      string `toml:"primary_store" env:"TRAILHEAD_STORE_PRIMARY"`
	SecondaryStore    string `toml:"secondary_store" env:"TRAILHEAD_STORE_SECONDARY"`
	ReadNewStoreFirst bool   `toml:"read_new_store_first" env:"TRAILHEAD_READ_NEW_STORE_FIRST"`
	MaxRetries        int    `toml:"max_conflict_retries" env:"TRAILHEAD_MAX_CONFLICT_RETRIES"`
	MaxHuntDays       int    `toml:"max_hunt_days" env:"TRAILHEAD_MAX_HUNT_DAYS"`
	FanOut            int    `toml:"fan_out" env:"TRAILHEAD_FAN_OUT"`
}

// Blob configures the object-storage model. Driver is badger or redis.
type Blob struct {
	Driver    string `toml:"driver" env:"TRAILHEAD_BLOB_DRIVER"`
	Dir       string `toml:"dir" env:"TRAILHEAD_BLOB_DIR"`
	InMemory  bool   `toml:"in_memory" env:"TRAILHEAD_BLOB_IN_MEMORY"`
	KeyPrefix string `toml:"key_prefix" env:"TRAILHEAD_BLOB_KEY_PREFIX"`
}

// Postgres configures the table model.
type Postgres struct {
	DSN             string   `toml:"dsn" env:"TRAILHEAD_POSTGRES_DSN"`
	MaxOpenConns    int      `toml:"max_open_conns" env:"TRAILHEAD_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int      `toml:"max_idle_conns" env:"TRAILHEAD_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime" env:"TRAILHEAD_POSTGRES_CONN_MAX_LIFETIME"`
	TxTimeout       Duration `toml:"tx_timeout" env:"TRAILHEAD_POSTGRES_TX_TIMEOUT"`
	EnsureSchema    bool     `toml:"ensure_schema" env:"TRAILHEAD_POSTGRES_ENSURE_SCHEMA"`
}

// RedisConfig is consumed by the redis client constructor.
type RedisConfig struct {
	URL          string   `toml:"url" env:"TRAILHEAD_REDIS_URL"`
	PoolSize     int      `toml:"pool_size" env:"TRAILHEAD_REDIS_POOL_SIZE"`
	MinIdleConns int      `toml:"min_idle_conns" env:"TRAILHEAD_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  Duration `toml:"dial_timeout" env:"TRAILHEAD_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  Duration `toml:"read_timeout" env:"TRAILHEAD_REDIS_READ_TIMEOUT"`
	WriteTimeout Duration `toml:"write_timeout" env:"TRAILHEAD_REDIS_WRITE_TIMEOUT"`
}

// Media selects the media provider: bucket stores bytes in the blob bucket, mock
// keeps pointers in memory.
type Media struct {
	Provider string `toml:"provider" env:"TRAILHEAD_MEDIA_PROVIDER"`
	BaseURL  string `toml:"base_url" env:"TRAILHEAD_MEDIA_BASE_URL"`
	MaxBytes int64  `toml:"max_bytes" env:"TRAILHEAD_MEDIA_MAX_BYTES"`
}

// Retry bounds transient-failure retries and the per-backend circuit breaker.
type Retry struct {
	MaxRetries       uint64   `toml:"max_retries" env:"TRAILHEAD_RETRY_MAX"`
	InitialInterval  Duration `toml:"initial_interval" env:"TRAILHEAD_RETRY_INITIAL_INTERVAL"`
	MaxInterval      Duration `toml:"max_interval" env:"TRAILHEAD_RETRY_MAX_INTERVAL"`
	BreakerFailures  int      `toml:"breaker_failures" env:"TRAILHEAD_BREAKER_FAILURES"`
	BreakerCooldown  Duration `toml:"breaker_cooldown" env:"TRAILHEAD_BREAKER_COOLDOWN"`
	BreakerSuccesses int      `toml:"breaker_successes" env:"TRAILHEAD_BREAKER_SUCCESSES"`
}

// Reconcile selects how date index repairs are scheduled: inline, kafka or none.
type Reconcile struct {
	Mode     string   `toml:"mode" env:"TRAILHEAD_RECONCILE_MODE"`
	Brokers  []string `toml:"brokers" env:"TRAILHEAD_KAFKA_BROKERS" envSeparator:","`
	Topic    string   `toml:"topic" env:"TRAILHEAD_RECONCILE_TOPIC"`
	Group    string   `toml:"group" env:"TRAILHEAD_RECONCILE_GROUP"`
	Debounce Duration `toml:"debounce" env:"TRAILHEAD_RECONCILE_DEBOUNCE"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			Environment:       "development",
			ReadHeaderTimeout: Duration(5 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Logging: Logging{
			Level:     "info",
			Format:    "json",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Registry: Registry{
			PrimaryStore: StoreMock,
			MaxRetries:   1,
			MaxHuntDays:  366,
			FanOut:       8,
		},
		Blob: Blob{
			Driver:   "badger",
			InMemory: true,
		},
		Postgres: Postgres{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
			TxTimeout:       Duration(5 * time.Second),
			EnsureSchema:    true,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		Media: Media{
			Provider: StoreMock,
			BaseURL:  "http://localhost:8080/media",
			MaxBytes: 20 << 20,
		},
		Retry: Retry{
			MaxRetries:       2,
			InitialInterval:  Duration(50 * time.Millisecond),
			MaxInterval:      Duration(400 * time.Millisecond),
			BreakerFailures:  5,
			BreakerCooldown:  Duration(30 * time.Second),
			BreakerSuccesses: 1,
		},
		Reconcile: Reconcile{
			Mode:     ReconcileInline,
			Topic:    "trailhead.reconcile",
			Group:    "trailhead-reconcile",
			Debounce: Duration(2 * time.Second),
		},
	}
}

type LoadOptions struct {
	// ConfigPath is the TOML file. Empty falls back to TRAILHEAD_CONFIG; a missing
	// file is not an error.
	ConfigPath string
	// EnvFile is loaded into the process environment without overriding variables
	// that are already set. A missing file is not an error.
	EnvFile string
	// Env replaces the process environment when non-nil. Used by tests.
	Env map[string]string
}

// FromEnv loads configuration using the process environment and ./.env.
func FromEnv() (Config, error) {
	return Load(LoadOptions{EnvFile: ".env"})
}

func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.Env == nil && opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: load env file %q: %v", ErrInvalidConfig, opts.EnvFile, err)
		}
	}

	path := opts.ConfigPath
	if path == "" {
		path = lookupEnv(opts, "TRAILHEAD_CONFIG")
	}
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	envOpts := env.Options{}
	if opts.Env != nil {
		envOpts.Environment = opts.Env
	}
	if err := env.ParseWithOptions(&cfg, envOpts); err != nil {
		return Config{}, fmt.Errorf("%w: parse environment: %v", ErrInvalidConfig, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func lookupEnv(opts LoadOptions, key string) string {
	if opts.Env != nil {
		return opts.Env[key]
	}
	return os.Getenv(key)
}

func loadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

var (
	storeKinds     = []string{StoreBlob, StoreTable, StoreMock}
	blobDrivers    = []string{"badger", "redis"}
	mediaProviders = []string{"bucket", StoreMock}
	reconcileModes = []string{ReconcileInline, ReconcileKafka, ReconcileNone}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

func validate(cfg Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Server.Addr == "" {
		fail("server.addr is required")
	}
	if !slices.Contains(logLevels, cfg.Logging.Level) {
		fail("logging.level must be one of %v", logLevels)
	}
	if !slices.Contains(storeKinds, cfg.Registry.PrimaryStore) {
		fail("registry.primary_store must be one of %v", storeKinds)
	}
	if s := cfg.Registry.SecondaryStore; s != "" {
		if !slices.Contains(storeKinds, s) {
			fail("registry.secondary_store must be one of %v", storeKinds)
		}
		if s == cfg.Registry.PrimaryStore {
			fail("registry.secondary_store must differ from primary_store")
		}
	} else if cfg.Registry.ReadNewStoreFirst {
		fail("registry.read_new_store_first requires secondary_store")
	}
	if cfg.Registry.MaxRetries < 0 {
		fail("registry.max_conflict_retries must not be negative")
	}
	if cfg.Registry.MaxHuntDays <= 0 {
		fail("registry.max_hunt_days must be positive")
	}

	usesStore := func(kind string) bool {
		return cfg.Registry.PrimaryStore == kind || cfg.Registry.SecondaryStore == kind
	}
	if usesStore(StoreBlob) || cfg.Media.Provider == "bucket" {
		if !slices.Contains(blobDrivers, cfg.Blob.Driver) {
			fail("blob.driver must be one of %v", blobDrivers)
		}
		if cfg.Blob.Driver == "redis" && cfg.Redis.URL == "" {
			fail("redis.url is required for the redis blob driver")
		}
		if cfg.Blob.Driver == "badger" && !cfg.Blob.InMemory && cfg.Blob.Dir == "" {
			fail("blob.dir is required unless blob.in_memory is set")
		}
	}
	if usesStore(StoreTable) && cfg.Postgres.DSN == "" {
		fail("postgres.dsn is required for the table store")
	}
	if !slices.Contains(mediaProviders, cfg.Media.Provider) {
		fail("media.provider must be one of %v", mediaProviders)
	}
	if !slices.Contains(reconcileModes, cfg.Reconcile.Mode) {
		fail("reconcile.mode must be one of %v", reconcileModes)
	}
	if cfg.Reconcile.Mode == ReconcileKafka && len(cfg.Reconcile.Brokers) == 0 {
		fail("reconcile.brokers is required for kafka mode")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
