package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/storage"
)

// ErrImageNotFound is returned for unknown image ids.
var ErrImageNotFound = errors.New("image not found")

// ImageService persists prepared images: metadata in the database, PNG
// bytes in a storage backend.
type ImageService struct {
	db      *gorm.DB
	backend storage.Backend
}

func NewImageService(db *gorm.DB, backend storage.Backend) *ImageService {
	return &ImageService{db: db, backend: backend}
}

// SaveOptions records where a prepared image came from.
type SaveOptions struct {
	Source    string
	SourceURL string
}

// Save stores out unless an image with identical bytes already exists, in
// which case the existing record is returned with created == false.
func (s *ImageService) Save(ctx context.Context, out imageprocessing.Output, opts SaveOptions) (*PreparedImage, bool, error) {
	hash := out.Hash()

	existing, err := s.GetByHash(ctx, hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrImageNotFound) {
		return nil, false, err
	}

	source := opts.Source
	if source == "" {
		source = SourceUpload
	}
	image := &PreparedImage{
		ID:          uuid.New(),
		Variant:     string(out.Profile.Variant),
		Palette:     string(out.Profile.Palette.Name()),
		Method:      string(out.Method),
		Width:       out.Width,
		Height:      out.Height,
		ContentHash: hash,
		Size:        int64(len(out.PNG)),
		StorageKey:  imageKey(hash),
		Source:      source,
		SourceURL:   opts.SourceURL,
	}

	if err := s.backend.Put(ctx, image.StorageKey, bytes.NewReader(out.PNG)); err != nil {
		return nil, false, fmt.Errorf("failed to store image data: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		// Lost a race with an identical save
		if existing, getErr := s.GetByHash(ctx, hash); getErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create image record: %w", err)
	}

	logging.InfoWithComponent(logging.ComponentStore, "Stored prepared image",
		"id", image.ID, "display", image.Variant, "size", humanize.Bytes(uint64(image.Size)), "source", image.Source)
	return image, true, nil
}

func (s *ImageService) Get(ctx context.Context, id uuid.UUID) (*PreparedImage, error) {
	var image PreparedImage
	err := s.db.WithContext(ctx).First(&image, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (s *ImageService) GetByHash(ctx context.Context, hash string) (*PreparedImage, error) {
	var image PreparedImage
	err := s.db.WithContext(ctx).Where("content_hash = ?", hash).First(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: hash %s", ErrImageNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// Data returns the PNG bytes of an image.
func (s *ImageService) Data(ctx context.Context, id uuid.UUID) (*PreparedImage, []byte, error) {
	image, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := storage.ReadAll(ctx, s.backend, image.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return image, data, nil
}

// ListOptions filters and pages List.
type ListOptions struct {
	Variant string
	Source  string
	Limit   int
	Offset  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// List returns images newest first and the total matching count.
func (s *ImageService) List(ctx context.Context, opts ListOptions) ([]PreparedImage, int64, error) {
	query := s.db.WithContext(ctx).Model(&PreparedImage{})
	if opts.Variant != "" {
		query = query.Where("variant = ?", opts.Variant)
	}
	if opts.Source != "" {
		query = query.Where("source = ?", opts.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	var images []PreparedImage
	err := query.Order("created_at DESC").Limit(limit).Offset(max(opts.Offset, 0)).Find(&images).Error
	if err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// Delete removes the record and its bytes.
func (s *ImageService) Delete(ctx context.Context, id uuid.UUID) error {
	image, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&PreparedImage{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete image record: %w", err)
	}
	if err := s.backend.Delete(ctx, image.StorageKey); err != nil {
		logging.WarnWithComponent(logging.ComponentStore, "Image record deleted but data remains", "id", id, "error", err)
	}
	return nil
}

// imageKey shards images by the first byte of their hash.
func imageKey(hash string) string {
	return fmt.Sprintf("images/%s/%s.png", hash[:2], hash)
}
