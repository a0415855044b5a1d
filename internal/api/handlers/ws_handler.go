package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/profile"
	"github.com/eda-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	profiles *profile.Store
}

func NewWebSocketHandler(profiles *profile.Store) *WebSocketHandler {
	return &WebSocketHandler{profiles: profiles}
}

// HandleConnection serves profile-generation progress over one socket. The
// client sends {"type":"profile","dataset":...} and receives progress events
// as aggregation batches complete, then a final complete message.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Dataset string `json:"dataset"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "profile" || msg.Dataset == "" {
			h.sendError(c, "Expected {\"type\":\"profile\",\"dataset\":...}")
			continue
		}

		if err := h.streamProfile(c, msg.Dataset); err != nil {
			logger.Error("Failed to stream profile progress",
				zap.String("dataset", msg.Dataset),
				zap.Error(err),
			)
			h.sendError(c, err.Error())
		}
	}
}

func (h *WebSocketHandler) streamProfile(c *websocket.Conn, dataset string) error {
	updates, cancel := h.profiles.Subscribe(dataset)
	defer cancel()

	type result struct {
		prof *profile.DatasetProfile
		err  error
	}
	done := make(chan result, 1)
	go func() {
		prof, err := h.profiles.GetOrCompute(context.Background(), dataset)
		done <- result{prof: prof, err: err}
	}()

	for {
		select {
		case p := <-updates:
			if err := c.WriteJSON(map[string]interface{}{
				"type":           "progress",
				"dataset":        p.Dataset,
				"rows_processed": p.RowsProcessed,
				"batches":        p.Batches,
				"done":           p.Done,
			}); err != nil {
				return err
			}

		case res := <-done:
			if res.err != nil {
				return res.err
			}
			return c.WriteJSON(map[string]interface{}{
				"type":      "complete",
				"dataset":   res.prof.Dataset,
				"row_count": res.prof.RowCount,
				"columns":   len(res.prof.ColumnOrder),
				"version":   res.prof.Version,
				"warnings":  res.prof.Warnings,
			})
		}
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
