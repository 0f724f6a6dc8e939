// Package api exposes the validation dashboard backend as a JSON API under
// /api/v1: three annotation modes (normal, pro, expert) over a shared data
// plane of detection datasets, validation logs and raw recordings.
package api

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/NINAnor/tabmon-species-api/internal/catalog"
	"github.com/NINAnor/tabmon-species-api/internal/clips"
	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
	"github.com/NINAnor/tabmon-species-api/internal/observability"
	"github.com/NINAnor/tabmon-species-api/internal/selector"
	"github.com/NINAnor/tabmon-species-api/internal/session"
	"github.com/NINAnor/tabmon-species-api/internal/species"
	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

// Catalog is the detection dataset surface the handlers use. *catalog.Store
// implements it; tests substitute an in-memory fake.
type Catalog interface {
	Countries(ctx context.Context) ([]string, error)
	DevicesForCountry(ctx context.Context, country string) ([]string, error)
	SpeciesForDevice(ctx context.Context, country, deviceID string) ([]string, error)
	Detections(ctx context.Context, sel catalog.Selection) ([]catalog.Detection, error)
	AssignedClips(ctx context.Context, userID string) ([]catalog.AssignedClip, error)
	UserHasAssignments(ctx context.Context, userID string) bool
	TopSpecies(ctx context.Context, n int) ([]catalog.SpeciesCount, error)
	SiteNames(ctx context.Context) (map[string]string, error)
	InvalidateUser(userID string)
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	settings     *conf.Settings
	catalog      Catalog
	validations  *validation.Store
	sessions     *session.Manager
	extractor    *clips.Extractor
	spectrograms *clips.SpectrogramGenerator
	translator   *species.Translator
	metrics      *observability.Metrics
	picker       *selector.Picker

	logger    *slog.Logger
	startTime time.Time
}

// New wires a controller and registers all routes on e.
func New(e *echo.Echo, settings *conf.Settings, cat Catalog, validations *validation.Store,
	sessions *session.Manager, extractor *clips.Extractor, spectrograms *clips.SpectrogramGenerator,
	translator *species.Translator, metrics *observability.Metrics) *Controller {

	c := &Controller{
		Echo:         e,
		settings:     settings,
		catalog:      cat,
		validations:  validations,
		sessions:     sessions,
		extractor:    extractor,
		spectrograms: spectrograms,
		translator:   translator,
		metrics:      metrics,
		picker:       selector.NewPicker(time.Now().UnixNano()),
		logger:       logging.ForService("api"),
		startTime:    time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Gzip())
	e.Use(middleware.CORS())

	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	normal := c.Group.Group("/normal")
	normal.GET("/countries", c.NormalCountries)
	normal.GET("/sites", c.NormalSites)
	normal.GET("/species", c.NormalSpecies)
	normal.GET("/next", c.NormalNext)
	normal.GET("/remaining", c.NormalRemaining)
	normal.POST("/validations", c.NormalSubmit)

	pro := c.Group.Group("/pro")
	pro.GET("/login", c.ProLogin)
	pro.GET("/next", c.ProNext)
	pro.GET("/remaining", c.ProRemaining)
	pro.POST("/validations", c.ProSubmit)

	expert := c.Group.Group("/expert")
	expert.GET("/login", c.ExpertLogin)
	expert.GET("/checklist", c.ExpertChecklist)
	expert.GET("/next", c.ExpertNext)
	expert.GET("/remaining", c.ExpertRemaining)
	expert.POST("/validations", c.ExpertSubmit)

	clipGroup := c.Group.Group("/clips")
	clipGroup.GET("/audio", c.ClipAudio)
	clipGroup.GET("/spectrogram", c.ClipSpectrogram)

	c.Echo.GET("/healthz", c.Health)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": time.Since(c.startTime).Seconds(),
	})
}

// attach resolves the request's session state.
func (c *Controller) attach(ctx echo.Context) (*session.State, error) {
	return c.sessions.Attach(ctx.Response(), ctx.Request())
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError logs err with a correlation id and returns the JSON envelope.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Error = message
	}

	c.logger.Error("API error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	)
	return ctx.JSON(code, resp)
}

// generateCorrelationID creates a short identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// recordSelection reports a selection outcome to metrics when enabled.
func (c *Controller) recordSelection(mode, status string, started time.Time) {
	if c.metrics != nil {
		c.metrics.RecordSelection(mode, status, time.Since(started).Seconds())
	}
}

func (c *Controller) recordSubmission(mode, status string, started time.Time) {
	if c.metrics != nil {
		c.metrics.RecordSubmission(mode, status, time.Since(started).Seconds())
	}
}

func (c *Controller) recordClip(kind, status string, started time.Time) {
	if c.metrics != nil {
		c.metrics.RecordClip(kind, status, time.Since(started).Seconds())
	}
}
