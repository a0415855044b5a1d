package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/eda-agent/backend/internal/profile"
)

type ProfileHandler struct {
	profiles *profile.Store
}

func NewProfileHandler(profiles *profile.Store) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// HandleGenerate returns the dataset profile, computing it on first request.
// Concurrent requests for the same dataset share one aggregation pass.
func (h *ProfileHandler) HandleGenerate(c *fiber.Ctx) error {
	prof, err := h.profiles.GetOrCompute(c.Context(), c.Params("dataset"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(prof)
}

// HandleShow returns the profile only if it already exists; it never starts
// an aggregation pass.
func (h *ProfileHandler) HandleShow(c *fiber.Ctx) error {
	prof, err := h.profiles.MustShow(c.Context(), c.Params("dataset"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(prof)
}

// HandleInvalidate drops the stored profile so the next request recomputes.
func (h *ProfileHandler) HandleInvalidate(c *fiber.Ctx) error {
	if err := h.profiles.Invalidate(c.Context(), c.Params("dataset")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "invalidated"})
}
