// Package media implements ports.MediaPort. Only the returned pointer is ever
// persisted by the registry.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"trailhead/internal/registry/adapters/blob"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
)

const (
	defaultMaxBytes = 20 << 20
	objectPrefix    = "media/"
	backendName     = "media"
)

// BucketMedia keeps uploaded bytes in a blob.Bucket and serves them under baseURL.
type BucketMedia struct {
	bucket   blob.Bucket
	baseURL  string
	maxBytes int64
	now      func() time.Time
}

var _ ports.MediaPort = (*BucketMedia)(nil)

type Option func(*BucketMedia)

// WithMaxBytes caps the size of a single upload.
func WithMaxBytes(n int64) Option {
	return func(m *BucketMedia) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *BucketMedia) {
		m.now = now
	}
}

func NewBucketMedia(bucket blob.Bucket, baseURL string, opts ...Option) *BucketMedia {
	m := &BucketMedia{
		bucket:   bucket,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: defaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *BucketMedia) UploadImage(ctx context.Context, r io.Reader, opts ports.UploadOptions) (*models.MediaPointer, error) {
	publicID := PublicID(opts)
	body, err := m.readBody(r, publicID)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, schema.InvalidField(schema.DocTypeMedia, publicID, "body", opts.Filename, "image")
	}
	if err := m.store(ctx, models.MediaTypeImage, publicID, body); err != nil {
		return nil, err
	}
	url := m.url(models.MediaTypeImage, publicID)
	return &models.MediaPointer{
		MediaType:    models.MediaTypeImage,
		PublicID:     publicID,
		URL:          url,
		ThumbnailURL: url + "?w=320",
		Width:        cfg.Width,
		Height:       cfg.Height,
		CreatedAt:    m.now().UTC(),
	}, nil
}

func (m *BucketMedia) UploadVideo(ctx context.Context, r io.Reader, opts ports.UploadOptions) (*models.MediaPointer, error) {
	publicID := PublicID(opts)
	body, err := m.readBody(r, publicID)
	if err != nil {
		return nil, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, schema.InvalidField(schema.DocTypeMedia, publicID, "contentType", contentType, "video")
	}
	if opts.Duration < 0 {
		return nil, schema.InvalidField(schema.DocTypeMedia, publicID, "duration", opts.Duration, "gte")
	}
	if err := m.store(ctx, models.MediaTypeVideo, publicID, body); err != nil {
		return nil, err
	}
	url := m.url(models.MediaTypeVideo, publicID)
	return &models.MediaPointer{
		MediaType: models.MediaTypeVideo,
		PublicID:  publicID,
		URL:       url,
		PosterURL: url + "?poster=1",
		Duration:  opts.Duration,
		CreatedAt: m.now().UTC(),
	}, nil
}

// DeleteMedia removes the stored bytes. Deleting a missing object succeeds.
func (m *BucketMedia) DeleteMedia(ctx context.Context, publicID string, resourceType models.MediaType) error {
	err := m.bucket.Delete(ctx, objectKey(resourceType, publicID))
	if err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
		return ports.Unavailable(backendName, "delete", true, err)
	}
	return nil
}

func (m *BucketMedia) readBody(r io.Reader, publicID string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", publicID, err)
	}
	if int64(len(body)) > m.maxBytes {
		return nil, schema.InvalidField(schema.DocTypeMedia, publicID, "body", len(body), "max")
	}
	if len(body) == 0 {
		return nil, schema.InvalidField(schema.DocTypeMedia, publicID, "body", 0, "required")
	}
	return body, nil
}

func (m *BucketMedia) store(ctx context.Context, kind models.MediaType, publicID string, body []byte) error {
	_, err := m.bucket.Put(ctx, objectKey(kind, publicID), body, models.ETagAbsent)
	if errors.Is(err, blob.ErrPreconditionFailed) {
		return &ports.ConcurrencyError{Kind: ports.KindMedia, Key: publicID, Expected: models.ETagAbsent}
	}
	if err != nil {
		return ports.Unavailable(backendName, "upload", true, err)
	}
	return nil
}

func (m *BucketMedia) url(kind models.MediaType, publicID string) string {
	return m.baseURL + "/" + objectKey(kind, publicID)
}

func objectKey(kind models.MediaType, publicID string) string {
	return objectPrefix + string(kind) + "/" + publicID
}

// PublicID returns the identifier an upload is stored under: the caller's PublicID
// or a fresh UUID, prefixed with the folder.
func PublicID(opts ports.UploadOptions) string {
	id := opts.PublicID
	if id == "" {
		id = uuid.NewString()
	}
	if opts.Folder == "" {
		return id
	}
	return path.Join(strings.Trim(opts.Folder, "/"), id)
}
