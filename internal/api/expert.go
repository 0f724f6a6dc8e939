package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/NINAnor/tabmon-species-api/internal/session"
	"github.com/NINAnor/tabmon-species-api/internal/species"
)

// ExpertLogin gates expert mode on the user having assigned clips.
func (c *Controller) ExpertLogin(ctx echo.Context) error {
	return c.login(ctx, session.ModeExpert)
}

// ExpertNext returns the first unvalidated clip of the user's assignments in
// dataset order, so experts walk their assignment deterministically.
func (c *Controller) ExpertNext(ctx echo.Context) error {
	return c.assignedNext(ctx, session.ModeExpert, false)
}

// ExpertRemaining reports the user's unvalidated assignment count.
func (c *Controller) ExpertRemaining(ctx echo.Context) error {
	return c.assignedRemaining(ctx, session.ModeExpert)
}

// ExpertSubmit stores an expert checklist validation.
func (c *Controller) ExpertSubmit(ctx echo.Context) error {
	return c.assignedSubmit(ctx, session.ModeExpert)
}

// ExpertChecklist returns the most-detected species of the assignments
// dataset, localized, for the expert annotation checklist.
func (c *Controller) ExpertChecklist(ctx echo.Context) error {
	counts, err := c.catalog.TopSpecies(ctx.Request().Context(), c.settings.Species.TopCount)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to build checklist", http.StatusInternalServerError)
	}

	column := species.Column(ctx.QueryParam("language"))
	type entry struct {
		ScientificName string `json:"scientific_name"`
		DisplayName    string `json:"display_name"`
		Count          int64  `json:"count"`
	}
	checklist := make([]entry, 0, len(counts))
	for _, sc := range counts {
		checklist = append(checklist, entry{
			ScientificName: sc.ScientificName,
			DisplayName:    c.translator.DisplayName(sc.ScientificName, column),
			Count:          sc.Count,
		})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"checklist": checklist})
}
