package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image sources
const (
	SourceUpload = "upload"
	SourceFeed   = "feed"
)

// PreparedImage is the metadata of a panel-ready PNG. The bytes live in the
// storage backend under StorageKey.
type PreparedImage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Variant     string    `gorm:"size:32;not null;index" json:"display"`
	Palette     string    `gorm:"size:32;not null" json:"palette"`
	Method      string    `gorm:"size:32;not null" json:"method"`
	Width       int       `gorm:"not null" json:"width"`
	Height      int       `gorm:"not null" json:"height"`
	ContentHash string    `gorm:"size:64;not null;uniqueIndex" json:"content_hash"`
	Size        int64     `gorm:"not null" json:"size"`
	StorageKey  string    `gorm:"not null" json:"-"`
	Source      string    `gorm:"size:16;not null;default:'upload'" json:"source"`
	SourceURL   string    `json:"source_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeforeCreate sets UUID if not already set
func (p *PreparedImage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// FeedState remembers what a feed last produced so a restart does not
// re-display unchanged content.
type FeedState struct {
	Name          string     `gorm:"primaryKey;size:64" json:"name"`
	URL           string     `gorm:"not null" json:"url"`
	LastHash      string     `gorm:"size:64" json:"last_hash"`
	LastImageID   *uuid.UUID `gorm:"type:uuid" json:"last_image_id,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// GetAllModels returns all models for auto-migration
func GetAllModels() []interface{} {
	return []interface{}{
		&PreparedImage{},
		&FeedState{},
	}
}
