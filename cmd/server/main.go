package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackclub/mediafield/internal/config"
	"github.com/hackclub/mediafield/internal/forms"
	httphandler "github.com/hackclub/mediafield/internal/http"
	"github.com/hackclub/mediafield/internal/imageproc"
	"github.com/hackclub/mediafield/internal/media"
	"github.com/hackclub/mediafield/internal/metrics"
	"github.com/hackclub/mediafield/internal/session"
	"github.com/hackclub/mediafield/internal/storage"
	"github.com/hackclub/mediafield/internal/widget"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx := context.Background()

	// Load configuration
	cfg := config.Load()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	logger.Info().Msg("starting mediafield server")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Info().
		Str("cloud_name", cfg.CloudinaryCloudName).
		Str("media_host", cfg.MediaHost).
		Str("app_base_url", cfg.AppBaseURL).
		Msg("configuration loaded")

	// Initialize session manager
	sessionManager := session.NewManager(cfg.SessionSecret, cfg.SecureCookies())

	// Initialize media host
	host, err := newHost(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("media_host", cfg.MediaHost).Msg("failed to initialize media host")
	}

	// Initialize metrics and the form registry
	m := metrics.New(prometheus.DefaultRegisterer)
	registry := forms.NewRegistry(cfg.Widget(), host, logger,
		forms.WithMetrics(m),
		forms.WithIdleTTL(session.MaxAge),
	)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go registry.Run(sweepCtx)

	// Initialize HTTP server
	server := httphandler.NewServer(
		cfg,
		logger,
		sessionManager,
		registry,
		promhttp.Handler(),
	)

	// Create HTTP server. No WriteTimeout: waited uploads and websockets
	// are long lived.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	stopSweep()
	registry.Close()

	logger.Info().Msg("server exited")
}

// newHost picks where uploaded files end up.
func newHost(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (widget.Host, error) {
	switch cfg.MediaHost {
	case config.HostR2:
		r2Client, err := storage.NewR2Client(ctx, storage.R2Options{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
			Endpoint:        cfg.R2S3Endpoint,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		processor := imageproc.NewVipsProcessor(cfg.JPEGQuality, cfg.JPEGProgressive, cfg.PNGStrip, logger)
		return media.NewStoreHost(processor, r2Client, cfg.MediaFolder, logger), nil

	case config.HostLocal:
		fileStore, err := storage.NewFileStore(cfg.LocalMediaDir, cfg.LocalMediaBaseURL)
		if err != nil {
			return nil, err
		}
		processor := imageproc.NewSimpleProcessor(cfg.JPEGQuality)
		return media.NewStoreHost(processor, fileStore, cfg.MediaFolder, logger), nil

	default:
		return media.NewCloudinaryHost(
			cfg.CloudinaryCloudName,
			cfg.CloudinaryAPIKey,
			cfg.CloudinaryAPISecret,
			cfg.MediaFolder,
			logger,
		)
	}
}
