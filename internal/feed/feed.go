package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	appconfig "github.com/rmitchellscott/inkprep/internal/config"
	"github.com/rmitchellscott/inkprep/internal/database"
	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/pollers"
	"github.com/rmitchellscott/inkprep/internal/utils"
)

// Config describes one image feed. A MaxBytes of zero or less selects
// config.DefaultMaxUploadBytes.
type Config struct {
	Name     string
	URL      string
	Interval time.Duration
	Profile  display.Profile
	Method   imageprocessing.Method
	MaxBytes int64
}

// Feed polls a URL, prepares whatever it serves for one panel and stores
// the result when it differs from the last prepared image. Preparation is
// deterministic, so comparing prepared hashes also ignores source changes
// that are invisible on the panel.
type Feed struct {
	config    Config
	client    *http.Client
	images    *database.ImageService
	states    *database.FeedStateService
	validator utils.URLValidationConfig
	onChange  func(*database.PreparedImage)
}

// Option configures a Feed.
type Option func(*Feed)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Feed) { f.client = c }
}

// WithURLValidation sets the policy the feed URL is checked against on
// every poll.
func WithURLValidation(cfg utils.URLValidationConfig) Option {
	return func(f *Feed) { f.validator = cfg }
}

// OnChange registers a callback for newly stored images.
func OnChange(fn func(*database.PreparedImage)) Option {
	return func(f *Feed) { f.onChange = fn }
}

func New(config Config, images *database.ImageService, states *database.FeedStateService, opts ...Option) (*Feed, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("feed %q has no URL", config.Name)
	}
	if config.Name == "" {
		config.Name = "image-feed"
	}
	if config.Interval <= 0 {
		config.Interval = 2 * time.Minute
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = appconfig.DefaultMaxUploadBytes
	}
	f := &Feed{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
		images: images,
		states: states,
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := utils.ValidateURLWithConfig(config.URL, f.validator); err != nil {
		return nil, fmt.Errorf("feed %q: %w", config.Name, err)
	}
	return f, nil
}

// Check performs one poll and reports whether a new image was stored.
func (f *Feed) Check(ctx context.Context) (bool, error) {
	changed, err := f.check(ctx)
	if recErr := f.record(ctx, changed, err); recErr != nil {
		logging.WarnWithComponent(logging.ComponentFeed, "Failed to record feed state", "feed", f.config.Name, "error", recErr)
	}
	return changed != nil, err
}

func (f *Feed) check(ctx context.Context) (*database.PreparedImage, error) {
	if err := utils.ValidateURLWithConfig(f.config.URL, f.validator); err != nil {
		return nil, err
	}

	data, err := FetchImage(ctx, f.client, f.config.URL, f.config.MaxBytes)
	if err != nil {
		return nil, err
	}

	out, err := imageprocessing.Prepare(ctx, imageprocessing.Request{
		Source:  data,
		Profile: f.config.Profile,
		Method:  f.config.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare feed image: %w", err)
	}

	state, err := f.states.Get(ctx, f.config.Name)
	if err != nil {
		return nil, err
	}
	if state.LastHash == out.Hash() {
		logging.DebugWithComponent(logging.ComponentFeed, "Feed content unchanged", "feed", f.config.Name)
		return nil, nil
	}

	image, _, err := f.images.Save(ctx, out, database.SaveOptions{Source: database.SourceFeed, SourceURL: f.config.URL})
	if err != nil {
		return nil, err
	}
	logging.InfoWithComponent(logging.ComponentFeed, "Feed content changed", "feed", f.config.Name, "image_id", image.ID)
	if f.onChange != nil {
		f.onChange(image)
	}
	return image, nil
}

func (f *Feed) record(ctx context.Context, changed *database.PreparedImage, checkErr error) error {
	if changed == nil {
		return f.states.RecordCheck(ctx, f.config.Name, f.config.URL, "", nil, checkErr)
	}
	id := changed.ID
	return f.states.RecordCheck(ctx, f.config.Name, f.config.URL, changed.ContentHash, &id, nil)
}

// Poller wraps the feed in a BasePoller for the poller manager.
func (f *Feed) Poller() *pollers.BasePoller {
	config := pollers.DefaultConfig(f.config.Name, f.config.Interval)
	config.RetryDelay = min(config.RetryDelay, f.config.Interval/2)
	return pollers.NewBasePoller(config, func(ctx context.Context) error {
		_, err := f.Check(ctx)
		return err
	})
}
