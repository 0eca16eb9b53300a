package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
)

// BadgerBucket stores objects in an embedded badger database. Conditional puts run
// inside a read-write transaction: the stored token is read, compared and replaced
// in one commit, and badger's conflict detection rejects the commit if another writer
// touched the key in between.
type BadgerBucket struct {
	db *badger.DB
}

var _ Bucket = (*BadgerBucket)(nil)

type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens a badger bucket at dir, or an in-memory one when inMemory is set.
func OpenBadger(dir string, inMemory bool, logger *slog.Logger) (*BadgerBucket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger.With("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerBucket{db: db}, nil
}

func (b *BadgerBucket) Get(_ context.Context, key string) (Object, error) {
	var obj Object
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		obj, err = unseal(raw)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Object{}, ErrObjectNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("badger get %s: %w", key, err)
	}
	return obj, nil
}

func (b *BadgerBucket) Put(_ context.Context, key string, body []byte, ifMatch models.ETag) (models.ETag, error) {
	sealed, etag := seal(body)
	err := b.db.Update(func(txn *badger.Txn) error {
		var (
			stored models.ETag
			exists bool
		)
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			obj, err := unseal(raw)
			if err != nil {
				return err
			}
			stored, exists = obj.ETag, true
		}
		if !ports.PreconditionHolds(ifMatch, stored, exists) {
			return ErrPreconditionFailed
		}
		return txn.Set([]byte(key), sealed)
	})
	if errors.Is(err, ErrPreconditionFailed) || errors.Is(err, badger.ErrConflict) {
		return "", ErrPreconditionFailed
	}
	if err != nil {
		return "", fmt.Errorf("badger put %s: %w", key, err)
	}
	return etag, nil
}

func (b *BadgerBucket) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

func (b *BadgerBucket) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list %s: %w", prefix, err)
	}
	return keys, nil
}

func (b *BadgerBucket) Close() error {
	return b.db.Close()
}
