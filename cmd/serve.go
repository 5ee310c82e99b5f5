package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/rmitchellscott/inkprep/internal/config"
	"github.com/rmitchellscott/inkprep/internal/database"
	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/feed"
	"github.com/rmitchellscott/inkprep/internal/handlers"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/middleware"
	"github.com/rmitchellscott/inkprep/internal/offload"
	"github.com/rmitchellscott/inkprep/internal/pollers"
	"github.com/rmitchellscott/inkprep/internal/sse"
	"github.com/rmitchellscott/inkprep/internal/storage"
	"github.com/rmitchellscott/inkprep/internal/utils"
	"github.com/rmitchellscott/inkprep/internal/version"
)

const feedName = "image-feed"

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API used by the dashboard. Configuration comes from the
environment (and .env); see PORT, DATA_DIR, DB_TYPE, FEED_URL and friends.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "Listen port (default $PORT or 8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if servePort != "" {
		cfg.Port = servePort
	}
	logging.InfoWithComponent(logging.ComponentStartup, "Starting inkprep", "version", version.String())

	db, err := database.Initialize(cfg.Database, cfg.GinMode)
	if err != nil {
		return err
	}
	defer closeDB(db)

	images := database.NewImageService(db, storage.NewFilesystemBackend(cfg.DataDir))
	feedStates := database.NewFeedStateService(db)
	events := sse.NewService()
	sessions := offload.NewSessions(imageprocessing.Prepare, cfg.SessionIdleTimeout, events)

	pollerManager := pollers.NewManager()
	if janitor := sessions.Janitor(); janitor != nil {
		pollerManager.Register(janitor)
	}

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute, 5)
	limiterCleanup := pollers.DefaultConfig("rate-limiter-cleanup", 10*time.Minute)
	limiterCleanup.RunAtStart = false
	limiterCleanup.MaxRetries = 1
	pollerManager.Register(pollers.NewBasePoller(limiterCleanup, func(ctx context.Context) error {
		if n := limiter.Cleanup(30 * time.Minute); n > 0 {
			logging.DebugWithComponent(logging.ComponentAPI, "Forgot idle rate limit clients", "count", n)
		}
		return nil
	}))

	var activeFeed string
	if cfg.Feed.URL != "" {
		f, err := newFeed(cfg.Feed, images, feedStates, events)
		if err != nil {
			return err
		}
		pollerManager.Register(f.Poller())
		activeFeed = feedName
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pollerManager.Start(ctx); err != nil {
		return err
	}
	go events.KeepAlive(ctx, 30*time.Second)

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "If-None-Match"}
	corsConfig.ExposeHeaders = []string{"X-Job-ID", "X-Image-ID", "X-Image-Created", "X-Content-Hash", "ETag"}
	router.Use(cors.New(corsConfig))

	h := handlers.New(handlers.Deps{
		Sessions:       sessions,
		Events:         events,
		DB:             db,
		Images:         images,
		FeedStates:     feedStates,
		FeedName:       activeFeed,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	h.RegisterRoutes(router.Group("/api"), limiter)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.InfoWithComponent(logging.ComponentStartup, "Listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start server", "error", err)
		_ = pollerManager.Stop()
		sessions.Close()
		return err
	}

	logging.InfoWithComponent(logging.ComponentStartup, "Shutting down server and pollers")

	if err := pollerManager.Stop(); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Error stopping pollers", "error", err)
	}
	// Release long-polls and event streams so Shutdown does not wait on them.
	sessions.Close()
	events.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Server forced to shutdown", "error", err)
		return err
	}

	logging.InfoWithComponent(logging.ComponentStartup, "Server and pollers stopped")
	return nil
}

func newFeed(cfg config.FeedConfig, images *database.ImageService, states *database.FeedStateService, events *sse.Service) (*feed.Feed, error) {
	profile, err := display.Resolve(cfg.Display, cfg.Palette)
	if err != nil {
		return nil, err
	}
	method, err := imageprocessing.ParseMethod(cfg.Method)
	if err != nil {
		return nil, err
	}

	return feed.New(feed.Config{
		Name:     feedName,
		URL:      cfg.URL,
		Interval: cfg.Interval,
		Profile:  profile,
		Method:   method,
		MaxBytes: cfg.MaxBytes,
	}, images, states,
		feed.WithURLValidation(utils.GetURLValidationConfig()),
		feed.OnChange(func(image *database.PreparedImage) {
			events.BroadcastToSession(sse.FeedSession, sse.Event{Type: sse.EventFeedUpdated, Data: image})
		}),
	)
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logging.ErrorWithComponent(logging.ComponentDatabase, "Failed to close database", "error", err)
	}
}
