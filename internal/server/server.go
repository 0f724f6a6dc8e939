// Package server wires the service together: object storage, the detection
// catalog, validation logs, sessions, clip extraction and the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/NINAnor/tabmon-species-api/internal/api"
	"github.com/NINAnor/tabmon-species-api/internal/catalog"
	"github.com/NINAnor/tabmon-species-api/internal/clips"
	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
	"github.com/NINAnor/tabmon-species-api/internal/objectstore"
	"github.com/NINAnor/tabmon-species-api/internal/observability"
	"github.com/NINAnor/tabmon-species-api/internal/session"
	"github.com/NINAnor/tabmon-species-api/internal/species"
	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// Run starts the service and blocks until the context is cancelled or a
// termination signal arrives.
func Run(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("server")

	store, err := objectstore.NewS3Client(ctx, &settings.S3)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(ctx, settings)
	if err != nil {
		return err
	}
	defer cat.Close()

	translator, err := species.Load(settings.Species.TranslationsPath)
	if err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	sessions := session.NewManager(&settings.Session)
	defer sessions.Close()

	validations := validation.NewStore(store, settings.Cache.ValidatedTTL)
	locator := clips.NewLocator(store)
	extractor := clips.NewExtractor(store, locator, settings.Clip, settings.Cache)
	spectrograms := clips.NewSpectrogramGenerator(settings.Cache.ClipTTL)

	accessLogger := logger
	if settings.Log.File != "" {
		fileLogger, closeLog, err := logging.NewFileLogger(
			settings.Log.File, "access", logging.ParseLevel(settings.Log.Level))
		if err != nil {
			return errors.New(err).
				Component("server").
				Category(errors.CategoryConfiguration).
				Context("file", settings.Log.File).
				Build()
		}
		defer func() {
			if cerr := closeLog(); cerr != nil {
				logger.Warn("closing access log failed", "error", cerr)
			}
		}()
		accessLogger = fileLogger
	}

	e := echo.New()
	e.HideBanner = true
	e.Debug = settings.Server.Debug
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true, LogURI: true, LogMethod: true, LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			accessLogger.Info("request",
				"method", v.Method, "uri", v.URI,
				"status", v.Status, "latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))
	api.New(e, settings, cat, validations, sessions, extractor, spectrograms, translator, metrics)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-serverErr:
		return errors.New(err).
			Component("server").
			Category(errors.CategoryGeneric).
			Build()
	case sig := <-signals:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component("server").
			Category(errors.CategoryGeneric).
			Build()
	}
	logger.Info("server stopped")
	return nil
}
