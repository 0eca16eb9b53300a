package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailhead/internal/platform/config"
	"trailhead/pkg/platform/sentinel"
)

func TestOptions(t *testing.T) {
	opts, err := Options(config.RedisConfig{
		URL:         "redis://localhost:6390/2",
		PoolSize:    8,
		DialTimeout: config.Duration(250 * time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6390", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 8, opts.PoolSize)
	assert.Equal(t, 250*time.Millisecond, opts.DialTimeout)
	assert.Equal(t, "trailhead", opts.ClientName)

	_, err = Options(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestNewWithoutURL(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := New(ctx, config.RedisConfig{
		URL:         "redis://127.0.0.1:1",
		DialTimeout: config.Duration(100 * time.Millisecond),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}
