package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/NINAnor/tabmon-species-api/internal/catalog"
	"github.com/NINAnor/tabmon-species-api/internal/selector"
	"github.com/NINAnor/tabmon-species-api/internal/session"
	"github.com/NINAnor/tabmon-species-api/internal/species"
	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

// nextResponse is the shared next-clip envelope. When every candidate is
// validated the selection reports completion instead of failing.
type nextResponse struct {
	Completed bool `json:"completed"`
	Total     int  `json:"total"`
	Remaining int  `json:"remaining"`
	Clip      any  `json:"clip,omitempty"`
}

// normalClipView is a normal-mode candidate enriched for display.
type normalClipView struct {
	catalog.Detection
	Site        string `json:"site"`
	DisplayName string `json:"display_name"`
}

func detectionKey(d catalog.Detection) validation.ClipKey {
	return validation.ClipKey{Filename: d.Filename, StartTime: d.StartTime}
}

// NormalCountries lists the countries with detections.
func (c *Controller) NormalCountries(ctx echo.Context) error {
	countries, err := c.catalog.Countries(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list countries", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"countries": countries})
}

// NormalSites lists the devices of a country with their site names.
func (c *Controller) NormalSites(ctx echo.Context) error {
	country := ctx.QueryParam("country")
	if country == "" {
		return c.HandleError(ctx, nil, "Missing country parameter", http.StatusBadRequest)
	}
	rctx := ctx.Request().Context()

	devices, err := c.catalog.DevicesForCountry(rctx, country)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sites", http.StatusInternalServerError)
	}
	siteNames, err := c.catalog.SiteNames(rctx)
	if err != nil {
		// Device ids still identify the sites, just less readably.
		c.logger.Warn("site names unavailable", "error", err)
		siteNames = nil
	}

	type site struct {
		DeviceID string `json:"device_id"`
		Site     string `json:"site"`
	}
	sites := make([]site, 0, len(devices))
	for _, device := range devices {
		name := siteNames[device]
		if name == "" {
			name = device
		}
		sites = append(sites, site{DeviceID: device, Site: name})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"sites": sites})
}

// NormalSpecies lists the species detected by a device, localized, together
// with the common-species defaults for the selector.
func (c *Controller) NormalSpecies(ctx echo.Context) error {
	country := ctx.QueryParam("country")
	device := ctx.QueryParam("device")
	if country == "" || device == "" {
		return c.HandleError(ctx, nil, "Missing country or device parameter", http.StatusBadRequest)
	}

	detected, err := c.catalog.SpeciesForDevice(ctx.Request().Context(), country, device)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list species", http.StatusInternalServerError)
	}

	column := species.Column(ctx.QueryParam("language"))
	return ctx.JSON(http.StatusOK, map[string]any{
		"species":  c.translator.DisplayNames(detected, column),
		"defaults": species.DefaultSpecies(detected),
	})
}

// normalSelection parses the selection parameters of a normal-mode request.
// An absent species defaults to the first common species the device has
// detections for, then to the first detected species.
func (c *Controller) normalSelection(ctx echo.Context) (catalog.Selection, error) {
	sel := catalog.Selection{
		Country:  ctx.QueryParam("country"),
		DeviceID: ctx.QueryParam("device"),
		Species:  ctx.QueryParam("species"),
	}
	if sel.Country == "" || sel.DeviceID == "" {
		return sel, echo.NewHTTPError(http.StatusBadRequest, "country and device are required")
	}

	if raw := ctx.QueryParam("min_confidence"); raw != "" {
		minConfidence, err := strconv.ParseFloat(raw, 64)
		if err != nil || minConfidence < 0 || minConfidence > 1 {
			return sel, echo.NewHTTPError(http.StatusBadRequest, "min_confidence must be between 0 and 1")
		}
		sel.MinConfidence = minConfidence
	}

	if sel.Species == "" {
		detected, err := c.catalog.SpeciesForDevice(ctx.Request().Context(), sel.Country, sel.DeviceID)
		if err != nil {
			return sel, err
		}
		if len(detected) == 0 {
			return sel, echo.NewHTTPError(http.StatusNotFound, "device has no detections")
		}
		if defaults := species.DefaultSpecies(detected); len(defaults) > 0 {
			sel.Species = defaults[0]
		} else {
			sel.Species = detected[0]
		}
	}
	return sel, nil
}

func selectionFingerprint(sel catalog.Selection) string {
	return fmt.Sprintf("%s|%s|%s|%.2f", sel.Country, sel.DeviceID, sel.Species, sel.MinConfidence)
}

// NormalNext returns the reviewer's current clip, selecting a new random
// unvalidated one when needed.
func (c *Controller) NormalNext(ctx echo.Context) error {
	started := time.Now()
	rctx := ctx.Request().Context()

	sel, err := c.normalSelection(ctx)
	if err != nil {
		c.recordSelection("normal", "error", started)
		if httpErr, ok := err.(*echo.HTTPError); ok {
			return c.HandleError(ctx, nil, fmt.Sprint(httpErr.Message), httpErr.Code)
		}
		return c.HandleError(ctx, err, "Failed to resolve selection", http.StatusInternalServerError)
	}

	st, err := c.attach(ctx)
	if err != nil {
		c.recordSelection("normal", "error", started)
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}

	candidates, err := c.catalog.Detections(rctx, sel)
	if err != nil {
		c.recordSelection("normal", "error", started)
		return c.HandleError(ctx, err, "Failed to query detections", http.StatusInternalServerError)
	}
	stored := c.validations.ValidatedClips(rctx, c.settings.Validations.NormalPrefix, validation.Filter{
		Country:  sel.Country,
		DeviceID: sel.DeviceID,
		Species:  sel.Species,
	})
	siteNames, err := c.catalog.SiteNames(rctx)
	if err != nil {
		c.logger.Warn("site names unavailable", "error", err)
		siteNames = nil
	}
	column := species.Column(ctx.QueryParam("language"))

	var resp nextResponse
	st.Do(session.ModeNormal, func(ms *session.ModeState) {
		ms.SetParams(selectionFingerprint(sel))
		validated := stored.Union(ms.Validated)
		resp.Total = len(candidates)
		resp.Remaining = selector.Remaining(candidates, validated, detectionKey)
		ms.Remaining = resp.Remaining

		pick, ok := ms.Current.(catalog.Detection)
		if !ok {
			pick, ok = selector.PickRandom(c.picker, candidates, validated, detectionKey)
			if !ok {
				resp.Completed = true
				return
			}
			ms.Current = pick
		}
		resp.Clip = normalClipView{
			Detection:   pick,
			Site:        siteNames[pick.DeviceID],
			DisplayName: c.translator.DisplayName(pick.ScientificName, column),
		}
	})

	status := "picked"
	if resp.Completed {
		status = "completed"
	}
	c.recordSelection("normal", status, started)
	return ctx.JSON(http.StatusOK, resp)
}

// NormalRemaining reports how many candidates of the selection are still
// unvalidated, without selecting a clip.
func (c *Controller) NormalRemaining(ctx echo.Context) error {
	rctx := ctx.Request().Context()

	sel, err := c.normalSelection(ctx)
	if err != nil {
		if httpErr, ok := err.(*echo.HTTPError); ok {
			return c.HandleError(ctx, nil, fmt.Sprint(httpErr.Message), httpErr.Code)
		}
		return c.HandleError(ctx, err, "Failed to resolve selection", http.StatusInternalServerError)
	}
	st, err := c.attach(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}

	candidates, err := c.catalog.Detections(rctx, sel)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query detections", http.StatusInternalServerError)
	}
	stored := c.validations.ValidatedClips(rctx, c.settings.Validations.NormalPrefix, validation.Filter{
		Country:  sel.Country,
		DeviceID: sel.DeviceID,
		Species:  sel.Species,
	})

	var remaining int
	st.Do(session.ModeNormal, func(ms *session.ModeState) {
		ms.SetParams(selectionFingerprint(sel))
		remaining = selector.Remaining(candidates, stored.Union(ms.Validated), detectionKey)
		ms.Remaining = remaining
	})

	return ctx.JSON(http.StatusOK, map[string]any{
		"total":     len(candidates),
		"remaining": remaining,
	})
}

// normalSubmission is the POST body of a normal-mode validation.
type normalSubmission struct {
	Filename       string  `json:"filename"`
	Country        string  `json:"country"`
	Site           string  `json:"site"`
	DeviceID       string  `json:"device_id"`
	Species        string  `json:"species"`
	StartTime      float64 `json:"start_time"`
	Confidence     float64 `json:"confidence"`
	Response       string  `json:"validation_response"`
	HeardInstead   string  `json:"user_validation"`
	UserConfidence string  `json:"user_confidence"`
}

// NormalSubmit appends a Yes/No/Unsure validation to the session file and
// excludes the clip from further selection in this session.
func (c *Controller) NormalSubmit(ctx echo.Context) error {
	started := time.Now()

	var sub normalSubmission
	if err := ctx.Bind(&sub); err != nil {
		c.recordSubmission("normal", "error", started)
		return c.HandleError(ctx, err, "Invalid submission body", http.StatusBadRequest)
	}
	if sub.Filename == "" || sub.Species == "" {
		c.recordSubmission("normal", "error", started)
		return c.HandleError(ctx, nil, "Missing filename or species", http.StatusBadRequest)
	}
	switch sub.Response {
	case "Yes", "No", "Unsure":
	default:
		c.recordSubmission("normal", "error", started)
		return c.HandleError(ctx, nil, "validation_response must be Yes, No or Unsure", http.StatusBadRequest)
	}

	st, err := c.attach(ctx)
	if err != nil {
		c.recordSubmission("normal", "error", started)
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}

	rec := &validation.NormalRecord{
		Filename:       sub.Filename,
		Country:        sub.Country,
		Site:           sub.Site,
		DeviceID:       sub.DeviceID,
		Species:        sub.Species,
		StartTime:      sub.StartTime,
		Confidence:     sub.Confidence,
		Response:       sub.Response,
		HeardInstead:   sub.HeardInstead,
		UserConfidence: sub.UserConfidence,
		Timestamp:      time.Now().UTC(),
	}
	if err := c.validations.Append(ctx.Request().Context(), c.settings.Validations.NormalPrefix, st.ID, rec); err != nil {
		c.recordSubmission("normal", "error", started)
		return c.HandleError(ctx, err, "Failed to store validation", http.StatusInternalServerError)
	}

	var remaining int
	st.Do(session.ModeNormal, func(ms *session.ModeState) {
		ms.MarkValidated(rec.Key())
		remaining = ms.Remaining
	})

	c.recordSubmission("normal", "success", started)
	return ctx.JSON(http.StatusOK, map[string]any{
		"stored":    true,
		"remaining": remaining,
	})
}
