package api

import (
	"github.com/labstack/echo/v4"

	"github.com/NINAnor/tabmon-species-api/internal/session"
)

// ProLogin gates pro mode on the user having assigned clips.
func (c *Controller) ProLogin(ctx echo.Context) error {
	return c.login(ctx, session.ModePro)
}

// ProNext returns a random unvalidated clip from the user's assignments.
func (c *Controller) ProNext(ctx echo.Context) error {
	return c.assignedNext(ctx, session.ModePro, true)
}

// ProRemaining reports the user's unvalidated assignment count.
func (c *Controller) ProRemaining(ctx echo.Context) error {
	return c.assignedRemaining(ctx, session.ModePro)
}

// ProSubmit stores a pro-mode checklist validation.
func (c *Controller) ProSubmit(ctx echo.Context) error {
	return c.assignedSubmit(ctx, session.ModePro)
}
