package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/logger"
)

// respondError maps the error taxonomy onto HTTP statuses. Internal errors
// are logged with their cause but leave the service as a generic message.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)

	status := fiber.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound, apperr.KindProfileMissing:
		status = fiber.StatusNotFound
	case apperr.KindMalformedInput, apperr.KindRender:
		status = fiber.StatusUnprocessableEntity
	case apperr.KindInvalidRequest:
		status = fiber.StatusBadRequest
	}

	message := "Internal server error"
	var e *apperr.Error
	if errors.As(err, &e) && kind != apperr.KindInternal {
		message = e.Message
	}

	if status == fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"kind":  kind.String(),
	})
}
