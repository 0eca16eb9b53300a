// Package factory turns configuration into store and media adapters.
//
// Adapters are built on first use and cached until Reset. The cached instances are
// shared by every caller; apart from their connection pools they hold no mutable
// state after construction.
package factory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"trailhead/internal/platform/config"
	"trailhead/internal/platform/metrics"
	"trailhead/internal/platform/postgres"
	platformredis "trailhead/internal/platform/redis"
	"trailhead/internal/registry/adapters/blob"
	"trailhead/internal/registry/adapters/dualwrite"
	"trailhead/internal/registry/adapters/media"
	"trailhead/internal/registry/adapters/memory"
	"trailhead/internal/registry/adapters/resilient"
	"trailhead/internal/registry/adapters/table"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	"trailhead/pkg/platform/circuit"
)

type StoreKind string

const (
	StoreBlob  StoreKind = config.StoreBlob
	StoreTable StoreKind = config.StoreTable
	StoreMock  StoreKind = config.StoreMock
)

func (k StoreKind) valid() bool {
	return k == StoreBlob || k == StoreTable || k == StoreMock
}

var ErrUnknownStore = errors.New("unknown store kind")

// Config selects and configures the adapters.
type Config struct {
	PrimaryStore      StoreKind
	SecondaryStore    StoreKind
	ReadNewStoreFirst bool
	Blob              config.Blob
	Redis             config.RedisConfig
	Table             config.Postgres
	Media             config.Media
	Retry             config.Retry
}

// FromConfig maps the loaded server configuration.
func FromConfig(cfg config.Config) Config {
	return Config{
		PrimaryStore:      StoreKind(cfg.Registry.PrimaryStore),
		SecondaryStore:    StoreKind(cfg.Registry.SecondaryStore),
		ReadNewStoreFirst: cfg.Registry.ReadNewStoreFirst,
		Blob:              cfg.Blob,
		Redis:             cfg.Redis,
		Table:             cfg.Postgres,
		Media:             cfg.Media,
		Retry:             cfg.Retry,
	}
}

// Selection describes which adapters a Config resolves to.
type Selection struct {
	Authoritative StoreKind
	Mirror        StoreKind // empty unless dual writing
	Media         string
}

func (s Selection) DualWrite() bool {
	return s.Mirror != ""
}

// Overrides replace constructed adapters, for tests.
type Overrides struct {
	Store ports.Store
	Media ports.MediaPort
}

type Factory struct {
	mu sync.Mutex

	cfg       Config
	overrides Overrides
	registry  *schema.Registry
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onMirror  dualwrite.SecondaryFailureFunc

	store   ports.Store
	media   ports.MediaPort
	bucket  blob.Bucket
	db      *sql.DB
	redis   *platformredis.Client
	closers []io.Closer
}

type Option func(*Factory)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Factory) {
		f.metrics = m
	}
}

func WithRegistry(r *schema.Registry) Option {
	return func(f *Factory) {
		f.registry = r
	}
}

// WithSecondaryFailureFunc receives failed mirror writes while dual writing. The
// default logs them.
func WithSecondaryFailureFunc(fn dualwrite.SecondaryFailureFunc) Option {
	return func(f *Factory) {
		f.onMirror = fn
	}
}

func New(cfg Config, opts ...Option) *Factory {
	f := &Factory{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.registry == nil {
		f.registry = schema.NewRegistry()
	}
	if f.onMirror == nil {
		f.onMirror = func(ctx context.Context, op, key string, err error) {
			f.logger.ErrorContext(ctx, "mirror store diverged", "op", op, "key", key, "error", err)
		}
	}
	return f
}

// Selection resolves the configuration without touching any backend.
func (f *Factory) Selection() (Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return selection(f.cfg)
}

func selection(cfg Config) (Selection, error) {
	if !cfg.PrimaryStore.valid() {
		return Selection{}, fmt.Errorf("%w: primary %q", ErrUnknownStore, cfg.PrimaryStore)
	}
	sel := Selection{Authoritative: cfg.PrimaryStore, Media: cfg.Media.Provider}
	if cfg.SecondaryStore == "" {
		return sel, nil
	}
	if !cfg.SecondaryStore.valid() {
		return Selection{}, fmt.Errorf("%w: secondary %q", ErrUnknownStore, cfg.SecondaryStore)
	}
	if cfg.SecondaryStore == cfg.PrimaryStore {
		return Selection{}, fmt.Errorf("%w: secondary store equals primary", ErrUnknownStore)
	}
	sel.Mirror = cfg.SecondaryStore
	if cfg.ReadNewStoreFirst {
		sel.Authoritative, sel.Mirror = sel.Mirror, sel.Authoritative
	}
	return sel, nil
}

func (f *Factory) OrgRepo(ctx context.Context) (ports.OrgRepoPort, error) {
	return f.Store(ctx)
}

func (f *Factory) EventRepo(ctx context.Context) (ports.EventRepoPort, error) {
	return f.Store(ctx)
}

// Store returns the cached store serving both document ports.
func (f *Factory) Store(ctx context.Context) (ports.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrides.Store != nil {
		return f.overrides.Store, nil
	}
	if f.store != nil {
		return f.store, nil
	}
	sel, err := selection(f.cfg)
	if err != nil {
		return nil, err
	}
	primary, err := f.buildStore(ctx, sel.Authoritative)
	if err != nil {
		return nil, err
	}
	if !sel.DualWrite() {
		f.store = primary
		return f.store, nil
	}
	mirror, err := f.buildStore(ctx, sel.Mirror)
	if err != nil {
		return nil, err
	}
	dual, err := dualwrite.New(
		dualwrite.Named{Name: string(sel.Authoritative), Store: primary},
		dualwrite.Named{Name: string(sel.Mirror), Store: mirror},
		f.onMirror,
		dualwrite.WithMetrics(f.metrics),
		dualwrite.WithLogger(f.logger),
	)
	if err != nil {
		return nil, err
	}
	f.store = dual
	return f.store, nil
}

func (f *Factory) Media(ctx context.Context) (ports.MediaPort, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrides.Media != nil {
		return f.overrides.Media, nil
	}
	if f.media != nil {
		return f.media, nil
	}
	switch f.cfg.Media.Provider {
	case "bucket":
		bucket, err := f.openBucket(ctx)
		if err != nil {
			return nil, err
		}
		f.media = media.NewBucketMedia(bucket, f.cfg.Media.BaseURL, media.WithMaxBytes(f.cfg.Media.MaxBytes))
	case "", config.StoreMock:
		f.media = media.NewMemoryMedia(f.cfg.Media.BaseURL)
	default:
		return nil, fmt.Errorf("unknown media provider %q", f.cfg.Media.Provider)
	}
	return f.media, nil
}

// Override replaces adapters until the next Reset.
func (f *Factory) Override(o Overrides) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = o
}

// Reset releases every constructed adapter and switches to cfg.
func (f *Factory) Reset(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.closeLocked()
	f.cfg = cfg
	f.overrides = Overrides{}
	return err
}

func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeLocked()
}

func (f *Factory) closeLocked() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		errs = append(errs, f.closers[i].Close())
	}
	f.closers = nil
	f.store, f.media, f.bucket, f.db, f.redis = nil, nil, nil, nil, nil
	return errors.Join(errs...)
}

func (f *Factory) buildStore(ctx context.Context, kind StoreKind) (ports.Store, error) {
	var (
		store ports.Store
		name  = string(kind)
	)
	switch kind {
	case StoreMock:
		store = memory.New(memory.WithRegistry(f.registry), memory.WithLogger(f.logger))
	case StoreBlob:
		bucket, err := f.openBucket(ctx)
		if err != nil {
			return nil, err
		}
		name = f.cfg.Blob.Driver
		store = blob.New(bucket,
			blob.WithRegistry(f.registry),
			blob.WithLogger(f.logger),
			blob.WithBackendName(name),
		)
	case StoreTable:
		db, err := f.openDB(ctx)
		if err != nil {
			return nil, err
		}
		store = table.New(db,
			table.WithRegistry(f.registry),
			table.WithLogger(f.logger),
			table.WithTxTimeout(f.cfg.Table.TxTimeout.Std()),
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
	}

	retry := f.cfg.Retry
	return resilient.New(store, name,
		resilient.WithPolicy(resilient.Policy{
			MaxRetries:      retry.MaxRetries,
			InitialInterval: retry.InitialInterval.Std(),
			MaxInterval:     retry.MaxInterval.Std(),
		}),
		resilient.WithBreaker(circuit.New(name,
			circuit.WithFailureThreshold(retry.BreakerFailures),
			circuit.WithSuccessThreshold(retry.BreakerSuccesses),
			circuit.WithCooldown(retry.BreakerCooldown.Std()),
		)),
		resilient.WithMetrics(f.metrics),
		resilient.WithLogger(f.logger),
	), nil
}

// openBucket is shared by the blob store and bucket media.
func (f *Factory) openBucket(ctx context.Context) (blob.Bucket, error) {
	if f.bucket != nil {
		return f.bucket, nil
	}
	switch f.cfg.Blob.Driver {
	case "badger", "":
		bucket, err := blob.OpenBadger(f.cfg.Blob.Dir, f.cfg.Blob.InMemory, f.logger)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, bucket)
		f.bucket = bucket
	case "redis":
		if f.redis == nil {
			client, err := platformredis.New(ctx, f.cfg.Redis)
			if err != nil {
				return nil, err
			}
			if client == nil {
				return nil, errors.New("redis blob driver requires a redis url")
			}
			f.closers = append(f.closers, client)
			f.redis = client
		}
		var opts []blob.RedisOption
		if f.cfg.Blob.KeyPrefix != "" {
			opts = append(opts, blob.WithKeyPrefix(f.cfg.Blob.KeyPrefix))
		}
		f.bucket = blob.NewRedisBucket(f.redis.Client, opts...)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", f.cfg.Blob.Driver)
	}
	return f.bucket, nil
}

func (f *Factory) openDB(ctx context.Context) (*sql.DB, error) {
	if f.db != nil {
		return f.db, nil
	}
	db, err := postgres.Open(ctx, f.cfg.Table)
	if err != nil {
		return nil, err
	}
	if f.cfg.Table.EnsureSchema {
		if err := table.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	f.closers = append(f.closers, db)
	f.db = db
	return db, nil
}
