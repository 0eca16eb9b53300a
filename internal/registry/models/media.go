package models

import "time"

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaPointer is the only part of an uploaded asset the registry persists.
// Bytes live with the media provider.
type MediaPointer struct {
	MediaType    MediaType `json:"mediaType" validate:"required,oneof=image video"`
	PublicID     string    `json:"publicId" validate:"required"`
	URL          string    `json:"url" validate:"required,url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty" validate:"omitempty,url"`
	PosterURL    string    `json:"posterUrl,omitempty" validate:"omitempty,url"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
