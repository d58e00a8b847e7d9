package main

import (
	"alcyxob/video-uploads/internal/api"
	"alcyxob/video-uploads/internal/auth"
	"alcyxob/video-uploads/internal/config"
	"alcyxob/video-uploads/internal/logging"
	"alcyxob/video-uploads/internal/metrics"
	"alcyxob/video-uploads/internal/service"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// @title Video Uploads API
// @version 1.0
// @description Signed-URL video uploads: issue, confirm, query and delete video objects.
// @contact.name API Support
// @contact.email support@example.com
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.WithError(err).Fatal("Could not load config")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("Could not configure logging")
	}
	logger.Info("Starting Video Uploads Server...")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped with error")
	}
	logger.Info("Server exiting.")
}

func run(cfg config.Config, logger *logrus.Logger) (err error) {
	ctx := context.Background()
	var closers closerList
	defer func() {
		if closeErr := closers.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to release resources")
			err = multierror.Append(err, closeErr).ErrorOrNil()
		}
	}()

	// --- Metadata store ---
	videoRepo, err := newVideoRepository(ctx, cfg.Database, logger, &closers)
	if err != nil {
		return err
	}

	// --- Blob store ---
	blobs, err := newBlobStore(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}

	// --- Read URL cache and events ---
	urlCache := newURLCache(ctx, cfg.Cache, logger, &closers)
	publisher, err := newPublisher(ctx, cfg.Events, logger)
	if err != nil {
		return err
	}

	// --- Services ---
	m := metrics.New()
	videoService, err := service.NewVideoService(service.Dependencies{
		Videos:    videoRepo,
		Blobs:     blobs.store,
		URLCache:  urlCache,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   m,
	}, service.Options{
		Policy:           service.Policy{MaxBytes: cfg.Upload.MaxBytes},
		UploadURLTTL:     cfg.Upload.URLTTL,
		DownloadURLTTL:   cfg.Upload.DownloadURLTTL,
		DefaultListLimit: cfg.Upload.DefaultListLimit,
		MaxListLimit:     cfg.Upload.MaxListLimit,
	})
	if err != nil {
		return err
	}

	verifier, err := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return err
	}

	// --- Initialize Gin Engine ---
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(logger, m)
	api.SetupRoutes(router, verifier, videoService, m, blobs.handler)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", api.HeaderRequestID},
		ExposedHeaders:   []string{api.HeaderRequestID},
		AllowCredentials: false,
	}).Handler(router)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("address", cfg.Server.Address).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server...")
	case err := <-serveErr:
		return err
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return err
	}
	return <-serveErr
}
