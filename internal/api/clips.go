package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// clipParams holds the query parameters identifying a clip window.
type clipParams struct {
	Filename  string
	Country   string
	DeviceID  string
	StartTime float64
}

func parseClipParams(ctx echo.Context) (clipParams, error) {
	p := clipParams{
		Filename: ctx.QueryParam("filename"),
		Country:  ctx.QueryParam("country"),
		DeviceID: ctx.QueryParam("device"),
	}
	if p.Filename == "" || p.Country == "" {
		return p, fmt.Errorf("filename and country are required")
	}
	start, err := strconv.ParseFloat(ctx.QueryParam("start_time"), 64)
	if err != nil || start < 0 {
		return p, fmt.Errorf("start_time must be a non-negative number")
	}
	p.StartTime = start
	return p, nil
}

// ClipAudio serves the WAV review window around a detection.
func (c *Controller) ClipAudio(ctx echo.Context) error {
	started := time.Now()

	p, err := parseClipParams(ctx)
	if err != nil {
		c.recordClip("audio", "error", started)
		return c.HandleError(ctx, err, "Invalid clip parameters", http.StatusBadRequest)
	}

	clip, err := c.extractor.Clip(ctx.Request().Context(), p.Filename, p.Country, p.DeviceID, p.StartTime)
	if err != nil {
		c.recordClip("audio", "error", started)
		return c.HandleError(ctx, err, "Failed to extract clip", http.StatusNotFound)
	}

	c.recordClip("audio", "success", started)
	ctx.Response().Header().Set("Cache-Control", "private, max-age=600")
	return ctx.Blob(http.StatusOK, "audio/wav", clip)
}

// ClipSpectrogram serves the spectrogram PNG of the review window.
func (c *Controller) ClipSpectrogram(ctx echo.Context) error {
	started := time.Now()

	p, err := parseClipParams(ctx)
	if err != nil {
		c.recordClip("spectrogram", "error", started)
		return c.HandleError(ctx, err, "Invalid clip parameters", http.StatusBadRequest)
	}

	clip, err := c.extractor.Clip(ctx.Request().Context(), p.Filename, p.Country, p.DeviceID, p.StartTime)
	if err != nil {
		c.recordClip("spectrogram", "error", started)
		return c.HandleError(ctx, err, "Failed to extract clip", http.StatusNotFound)
	}

	cacheKey := fmt.Sprintf("spectrogram:%s|%s|%.3f", p.Country, p.Filename, p.StartTime)
	png, err := c.spectrograms.Render(ctx.Request().Context(), cacheKey, clip)
	if err != nil {
		c.recordClip("spectrogram", "error", started)
		return c.HandleError(ctx, err, "Failed to render spectrogram", http.StatusInternalServerError)
	}

	c.recordClip("spectrogram", "success", started)
	ctx.Response().Header().Set("Cache-Control", "private, max-age=600")
	return ctx.Blob(http.StatusOK, "image/png", png)
}
