package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"trailhead/internal/registry/adapters/blob"
	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/pkg/platform/sentinel"
)

type BucketMediaSuite struct {
	suite.Suite
	ctx    context.Context
	bucket *blob.BadgerBucket
	media  *BucketMedia
}

func TestBucketMediaSuite(t *testing.T) {
	suite.Run(t, new(BucketMediaSuite))
}

func (s *BucketMediaSuite) SetupTest() {
	s.ctx = context.Background()
	bucket, err := blob.OpenBadger("", true, nil)
	s.Require().NoError(err)
	s.bucket = bucket
	stamp := time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)
	s.media = NewBucketMedia(bucket, "https://cdn.example.test/",
		WithMaxBytes(64<<10),
		WithClock(func() time.Time { return stamp }),
	)
}

func (s *BucketMediaSuite) TearDownTest() {
	s.Require().NoError(s.bucket.Close())
}

func pngBytes(t require.TestingT, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (s *BucketMediaSuite) TestUploadImage() {
	ptr, err := s.media.UploadImage(s.ctx, bytes.NewReader(pngBytes(s.T(), 40, 30)), ports.UploadOptions{
		Folder:   "acme/hunts/h1",
		PublicID: "stop-1",
		Filename: "stop-1.png",
	})
	s.Require().NoError(err)

	s.Equal(models.MediaTypeImage, ptr.MediaType)
	s.Equal("acme/hunts/h1/stop-1", ptr.PublicID)
	s.Equal("https://cdn.example.test/media/image/acme/hunts/h1/stop-1", ptr.URL)
	s.Equal(40, ptr.Width)
	s.Equal(30, ptr.Height)
	s.NotEmpty(ptr.ThumbnailURL)

	obj, err := s.bucket.Get(s.ctx, "media/image/acme/hunts/h1/stop-1")
	s.Require().NoError(err)
	s.NotEmpty(obj.Body)

	s.Run("same public id conflicts", func() {
		_, err := s.media.UploadImage(s.ctx, bytes.NewReader(pngBytes(s.T(), 1, 1)), ports.UploadOptions{
			Folder:   "acme/hunts/h1",
			PublicID: "stop-1",
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *BucketMediaSuite) TestUploadRejectsBadInput() {
	s.Run("not an image", func() {
		_, err := s.media.UploadImage(s.ctx, strings.NewReader("plain text"), ports.UploadOptions{})
		s.ErrorIs(err, sentinel.ErrInvalid)
	})
	s.Run("empty body", func() {
		_, err := s.media.UploadImage(s.ctx, strings.NewReader(""), ports.UploadOptions{})
		s.ErrorIs(err, sentinel.ErrInvalid)
	})
	s.Run("too large", func() {
		_, err := s.media.UploadImage(s.ctx, bytes.NewReader(make([]byte, 65<<10)), ports.UploadOptions{})
		s.ErrorIs(err, sentinel.ErrInvalid)
	})
	s.Run("video with image content type", func() {
		_, err := s.media.UploadVideo(s.ctx, strings.NewReader("data"), ports.UploadOptions{ContentType: "image/png"})
		s.ErrorIs(err, sentinel.ErrInvalid)
	})
}

func (s *BucketMediaSuite) TestVideoAndDelete() {
	ptr, err := s.media.UploadVideo(s.ctx, strings.NewReader("fake-mp4-bytes"), ports.UploadOptions{
		ContentType: "video/mp4",
		Duration:    12.5,
	})
	s.Require().NoError(err)
	s.Equal(models.MediaTypeVideo, ptr.MediaType)
	s.Equal(12.5, ptr.Duration)
	s.NotEmpty(ptr.PosterURL)

	s.Require().NoError(s.media.DeleteMedia(s.ctx, ptr.PublicID, models.MediaTypeVideo))
	_, err = s.bucket.Get(s.ctx, objectKey(models.MediaTypeVideo, ptr.PublicID))
	s.ErrorIs(err, blob.ErrObjectNotFound)

	s.NoError(s.media.DeleteMedia(s.ctx, ptr.PublicID, models.MediaTypeVideo), "delete is idempotent")
}

func TestPublicID(t *testing.T) {
	assert.Equal(t, "a/b/x", PublicID(ports.UploadOptions{Folder: "/a/b/", PublicID: "x"}))
	assert.Equal(t, "x", PublicID(ports.UploadOptions{PublicID: "x"}))
	assert.Len(t, PublicID(ports.UploadOptions{}), 36)
}

func TestMemoryMedia(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedia("")

	ptr, err := m.UploadImage(ctx, strings.NewReader("x"), ports.UploadOptions{PublicID: "p1"})
	require.NoError(t, err)
	assert.True(t, m.Has("p1"))
	assert.Equal(t, "https://media.invalid/media/image/p1", ptr.URL)

	require.NoError(t, m.DeleteMedia(ctx, "p1", models.MediaTypeImage))
	assert.False(t, m.Has("p1"))

	m.Err = sentinel.ErrUnavailable
	_, err = m.UploadVideo(ctx, strings.NewReader("x"), ports.UploadOptions{})
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}
