package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/NINAnor/tabmon-species-api/internal/catalog"
	"github.com/NINAnor/tabmon-species-api/internal/selector"
	"github.com/NINAnor/tabmon-species-api/internal/session"
	"github.com/NINAnor/tabmon-species-api/internal/species"
	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

// Pro and expert mode share the assignments dataset and the expert record
// format; they differ in the validation prefix and in how the next clip is
// chosen (random for pro, dataset order for expert).

// assignedClipView is an assigned clip enriched with localized species names.
type assignedClipView struct {
	catalog.AssignedClip
	DisplayNames []species.Name `json:"display_names"`
}

func assignedKey(a catalog.AssignedClip) validation.ClipKey {
	return validation.ClipKey{Filename: a.Filename, StartTime: a.StartTime}
}

// modePrefix returns the validation file prefix of an assigned mode.
func (c *Controller) modePrefix(mode session.Mode) string {
	if mode == session.ModeExpert {
		return c.settings.Validations.ExpertPrefix
	}
	return c.settings.Validations.ProPrefix
}

// login checks the user id against the assignments dataset and stores the
// authenticated user in the mode's session state. The gate is an existence
// check, not an identity proof; the datasets hold no credentials.
func (c *Controller) login(ctx echo.Context, mode session.Mode) error {
	userID := ctx.QueryParam("user_id")
	if userID == "" {
		return c.HandleError(ctx, nil, "Missing user_id parameter", http.StatusBadRequest)
	}

	st, err := c.attach(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}

	if !c.catalog.UserHasAssignments(ctx.Request().Context(), userID) {
		return c.HandleError(ctx, nil, "No assignments found for this user", http.StatusUnauthorized)
	}

	st.Do(mode, func(ms *session.ModeState) {
		if ms.UserID != userID {
			ms.Reset()
		}
		ms.UserID = userID
		ms.Authenticated = true
	})
	return ctx.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       userID,
	})
}

// authenticatedUser returns the mode's logged-in user id, or "" when the
// session has not passed the login gate.
func (c *Controller) authenticatedUser(st *session.State, mode session.Mode) string {
	var userID string
	st.Do(mode, func(ms *session.ModeState) {
		if ms.Authenticated {
			userID = ms.UserID
		}
	})
	return userID
}

// assignedNext selects the next clip of an assigned mode. random selects
// uniformly; otherwise the first unvalidated clip in (filename, start_time)
// order is returned, giving every session the same walk.
func (c *Controller) assignedNext(ctx echo.Context, mode session.Mode, random bool) error {
	started := time.Now()
	rctx := ctx.Request().Context()
	modeName := string(mode)

	st, err := c.attach(ctx)
	if err != nil {
		c.recordSelection(modeName, "error", started)
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}
	userID := c.authenticatedUser(st, mode)
	if userID == "" {
		c.recordSelection(modeName, "error", started)
		return c.HandleError(ctx, nil, "Login required", http.StatusUnauthorized)
	}

	candidates, err := c.catalog.AssignedClips(rctx, userID)
	if err != nil {
		c.recordSelection(modeName, "error", started)
		return c.HandleError(ctx, err, "Failed to query assignments", http.StatusInternalServerError)
	}
	stored := c.validations.ValidatedClips(rctx, c.modePrefix(mode), validation.Filter{UserID: userID})
	column := species.Column(ctx.QueryParam("language"))

	var resp nextResponse
	st.Do(mode, func(ms *session.ModeState) {
		ms.SetParams(userID)
		ms.UserID = userID
		ms.Authenticated = true
		validated := stored.Union(ms.Validated)
		resp.Total = len(candidates)
		resp.Remaining = selector.Remaining(candidates, validated, assignedKey)
		ms.Remaining = resp.Remaining

		pick, ok := ms.Current.(catalog.AssignedClip)
		if !ok {
			if random {
				pick, ok = selector.PickRandom(c.picker, candidates, validated, assignedKey)
			} else {
				pick, ok = selector.PickFirst(candidates, validated, assignedKey)
			}
			if !ok {
				resp.Completed = true
				return
			}
			ms.Current = pick
		}
		resp.Clip = assignedClipView{
			AssignedClip: pick,
			DisplayNames: c.translator.DisplayNames(pick.Species, column),
		}
	})

	status := "picked"
	if resp.Completed {
		status = "completed"
	}
	c.recordSelection(modeName, status, started)
	return ctx.JSON(http.StatusOK, resp)
}

// assignedRemaining reports the unvalidated assignment count of a mode.
func (c *Controller) assignedRemaining(ctx echo.Context, mode session.Mode) error {
	rctx := ctx.Request().Context()

	st, err := c.attach(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}
	userID := c.authenticatedUser(st, mode)
	if userID == "" {
		return c.HandleError(ctx, nil, "Login required", http.StatusUnauthorized)
	}

	candidates, err := c.catalog.AssignedClips(rctx, userID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query assignments", http.StatusInternalServerError)
	}
	stored := c.validations.ValidatedClips(rctx, c.modePrefix(mode), validation.Filter{UserID: userID})

	var remaining int
	st.Do(mode, func(ms *session.ModeState) {
		remaining = selector.Remaining(candidates, stored.Union(ms.Validated), assignedKey)
		ms.Remaining = remaining
	})

	return ctx.JSON(http.StatusOK, map[string]any{
		"total":     len(candidates),
		"remaining": remaining,
	})
}

// expertSubmission is the POST body of pro and expert validations.
type expertSubmission struct {
	Filename          string    `json:"filename"`
	DeploymentID      string    `json:"deployment_id"`
	StartTime         float64   `json:"start_time"`
	DetectedSpecies   []string  `json:"birdnet_species_detected"`
	Confidences       []float64 `json:"birdnet_confidences"`
	Uncertainties     []float64 `json:"birdnet_uncertainties"`
	IdentifiedSpecies []string  `json:"identified_species"`
	UserConfidence    string    `json:"user_confidence"`
	Notes             string    `json:"user_notes"`
}

// assignedSubmit appends a checklist validation. An empty identified-species
// list is stored as the explicit none-detected marker.
func (c *Controller) assignedSubmit(ctx echo.Context, mode session.Mode) error {
	started := time.Now()
	modeName := string(mode)

	var sub expertSubmission
	if err := ctx.Bind(&sub); err != nil {
		c.recordSubmission(modeName, "error", started)
		return c.HandleError(ctx, err, "Invalid submission body", http.StatusBadRequest)
	}
	if sub.Filename == "" {
		c.recordSubmission(modeName, "error", started)
		return c.HandleError(ctx, nil, "Missing filename", http.StatusBadRequest)
	}

	st, err := c.attach(ctx)
	if err != nil {
		c.recordSubmission(modeName, "error", started)
		return c.HandleError(ctx, err, "Failed to attach session", http.StatusInternalServerError)
	}
	userID := c.authenticatedUser(st, mode)
	if userID == "" {
		c.recordSubmission(modeName, "error", started)
		return c.HandleError(ctx, nil, "Login required", http.StatusUnauthorized)
	}

	identified := sub.IdentifiedSpecies
	if len(identified) == 0 {
		identified = []string{validation.NoneDetected}
	}
	rec := &validation.ExpertRecord{
		Filename:          sub.Filename,
		UserID:            userID,
		DeploymentID:      sub.DeploymentID,
		DetectedSpecies:   sub.DetectedSpecies,
		Confidences:       sub.Confidences,
		Uncertainties:     sub.Uncertainties,
		StartTime:         sub.StartTime,
		IdentifiedSpecies: identified,
		UserConfidence:    sub.UserConfidence,
		Notes:             sub.Notes,
		Timestamp:         time.Now().UTC(),
	}
	if err := c.validations.Append(ctx.Request().Context(), c.modePrefix(mode), st.ID, rec); err != nil {
		c.recordSubmission(modeName, "error", started)
		return c.HandleError(ctx, err, "Failed to store validation", http.StatusInternalServerError)
	}

	var remaining int
	st.Do(mode, func(ms *session.ModeState) {
		ms.MarkValidated(rec.Key())
		remaining = ms.Remaining
	})
	c.catalog.InvalidateUser(userID)

	c.recordSubmission(modeName, "success", started)
	return ctx.JSON(http.StatusOK, map[string]any{
		"stored":    true,
		"remaining": remaining,
	})
}
