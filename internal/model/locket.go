// Package model defines the core locket data types.
package model

import "time"

// MediaTypeImage is the only media type a locket carries today.
const MediaTypeImage = "image"

// Locket is the shareable bundle of a generated image, its letter and an
// optional voice note. MediaURL and Letter are always present in a valid
// payload.
type Locket struct {
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
	Letter    string `json:"letter"`
	AudioURL  string `json:"audioUrl,omitempty"`
}

// SavedLocket is a locket persisted server-side behind a short link.
type SavedLocket struct {
	ID             string     `json:"id"`
	ImageKey       string     `json:"image_key"`
	ImageType      string     `json:"image_type"`
	Letter         string     `json:"letter"`
	AudioKey       string     `json:"audio_key,omitempty"`
	AudioType      string     `json:"audio_type,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// Slot identifies one of the two source photos of a generation attempt.
type Slot string

const (
	SlotA Slot = "a"
	SlotB Slot = "b"
)

// ValidSlots are the accepted photo slots.
var ValidSlots = map[Slot]bool{
	SlotA: true,
	SlotB: true,
}
