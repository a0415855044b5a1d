package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/query"
	"github.com/eda-agent/backend/internal/storage/models"
	"github.com/eda-agent/backend/pkg/logger"
)

type AskHandler struct {
	dispatcher *query.Dispatcher
}

func NewAskHandler(dispatcher *query.Dispatcher) *AskHandler {
	return &AskHandler{dispatcher: dispatcher}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req query.AskRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Dataset == "" || req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both 'dataset' and 'question' are required",
		})
	}

	resp, err := h.dispatcher.ProcessAsk(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(resp)
}

// HandleHistory returns the recent questions asked about a dataset.
func (h *AskHandler) HandleHistory(c *fiber.Ctx) error {
	dataset := c.Params("dataset")

	records, err := h.dispatcher.History(dataset, c.QueryInt("limit"))
	if err != nil {
		return respondError(c, err)
	}
	if records == nil {
		records = []models.AskRecord{}
	}

	return c.JSON(fiber.Map{
		"dataset": dataset,
		"history": records,
	})
}
