package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
)

const (
	defaultRedisPrefix = "trailhead:"

	fieldBody = "body"
	fieldETag = "etag"
)

// RedisBucket stores each object as a hash holding the body and its token.
// Conditional puts use WATCH/MULTI: the transaction aborts with TxFailedErr when the
// key changes between the token check and the write.
type RedisBucket struct {
	client redis.UniversalClient
	prefix string
}

var _ Bucket = (*RedisBucket)(nil)

type RedisOption func(*RedisBucket)

// WithKeyPrefix namespaces every key, so several deployments can share one server.
func WithKeyPrefix(prefix string) RedisOption {
	return func(b *RedisBucket) {
		b.prefix = prefix
	}
}

// NewRedisBucket wraps client. The client's lifecycle is managed by the caller.
func NewRedisBucket(client redis.UniversalClient, opts ...RedisOption) *RedisBucket {
	b := &RedisBucket{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *RedisBucket) Get(ctx context.Context, key string) (Object, error) {
	vals, err := b.client.HMGet(ctx, b.prefix+key, fieldBody, fieldETag).Result()
	if err != nil {
		return Object{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	body, ok := vals[0].(string)
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	etag, _ := vals[1].(string)
	return Object{Body: []byte(body), ETag: models.ETag(etag)}, nil
}

func (b *RedisBucket) Put(ctx context.Context, key string, body []byte, ifMatch models.ETag) (models.ETag, error) {
	full := b.prefix + key
	etag := models.ETag(uuid.NewString())
	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, full, fieldETag).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if !ports.PreconditionHolds(ifMatch, models.ETag(stored), exists) {
			return ErrPreconditionFailed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, full, fieldBody, body, fieldETag, string(etag))
			return nil
		})
		return err
	}, full)
	if errors.Is(err, ErrPreconditionFailed) || errors.Is(err, redis.TxFailedErr) {
		return "", ErrPreconditionFailed
	}
	if err != nil {
		return "", fmt.Errorf("redis put %s: %w", key, err)
	}
	return etag, nil
}

func (b *RedisBucket) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (b *RedisBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, b.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(b.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis list %s: %w", prefix, err)
	}
	return keys, nil
}

// Close is a no-op; the client lifecycle is managed externally.
func (b *RedisBucket) Close() error {
	return nil
}
