package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedStateService tracks the last content seen by each image feed.
type FeedStateService struct {
	db *gorm.DB
}

func NewFeedStateService(db *gorm.DB) *FeedStateService {
	return &FeedStateService{db: db}
}

// Get returns the state of a feed, or a zero state if it never ran.
func (s *FeedStateService) Get(ctx context.Context, name string) (*FeedState, error) {
	var state FeedState
	err := s.db.WithContext(ctx).First(&state, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &FeedState{Name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// RecordCheck stores the outcome of one poll. imageID is nil when the
// content did not change; checkErr is nil on success.
func (s *FeedStateService) RecordCheck(ctx context.Context, name, url, hash string, imageID *uuid.UUID, checkErr error) error {
	state, err := s.Get(ctx, name)
	if err != nil {
		return err
	}

	now := time.Now()
	state.URL = url
	state.LastCheckedAt = &now
	state.LastError = ""
	if checkErr != nil {
		state.LastError = checkErr.Error()
	} else if hash != "" && hash != state.LastHash {
		state.LastHash = hash
		state.LastImageID = imageID
		state.LastChangedAt = &now
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error
}
