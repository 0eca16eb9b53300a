package media

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
)

// MemoryMedia is the mock provider. It discards bytes and remembers pointers.
type MemoryMedia struct {
	mu      sync.Mutex
	baseURL string
	items   map[string]models.MediaPointer
	now     func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

var _ ports.MediaPort = (*MemoryMedia)(nil)

func NewMemoryMedia(baseURL string) *MemoryMedia {
	if baseURL == "" {
		baseURL = "https://media.invalid"
	}
	return &MemoryMedia{
		baseURL: baseURL,
		items:   make(map[string]models.MediaPointer),
		now:     time.Now,
	}
}

func (m *MemoryMedia) UploadImage(ctx context.Context, r io.Reader, opts ports.UploadOptions) (*models.MediaPointer, error) {
	return m.upload(r, models.MediaTypeImage, opts)
}

func (m *MemoryMedia) UploadVideo(ctx context.Context, r io.Reader, opts ports.UploadOptions) (*models.MediaPointer, error) {
	return m.upload(r, models.MediaTypeVideo, opts)
}

func (m *MemoryMedia) DeleteMedia(_ context.Context, publicID string, _ models.MediaType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.items, publicID)
	return nil
}

// Has reports whether publicID is currently stored.
func (m *MemoryMedia) Has(publicID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[publicID]
	return ok
}

func (m *MemoryMedia) upload(r io.Reader, kind models.MediaType, opts ports.UploadOptions) (*models.MediaPointer, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	publicID := PublicID(opts)
	p := models.MediaPointer{
		MediaType: kind,
		PublicID:  publicID,
		URL:       m.baseURL + "/" + objectKey(kind, publicID),
		Duration:  opts.Duration,
		CreatedAt: m.now().UTC(),
	}
	m.items[publicID] = p
	return &p, nil
}
