package handlers

import (
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/metrics"
	"github.com/eda-agent/backend/internal/profile"
	"github.com/eda-agent/backend/internal/storage/fs"
	"github.com/eda-agent/backend/internal/storage/models"
	"github.com/eda-agent/backend/internal/storage/sqlite"
	"github.com/eda-agent/backend/pkg/apperr"
	"github.com/eda-agent/backend/pkg/logger"
)

type DatasetHandler struct {
	store    *fs.Store
	db       *sqlite.Client
	profiles *profile.Store
}

func NewDatasetHandler(store *fs.Store, db *sqlite.Client, profiles *profile.Store) *DatasetHandler {
	return &DatasetHandler{
		store:    store,
		db:       db,
		profiles: profiles,
	}
}

// HandleUpload stores an uploaded CSV under its canonical name. A re-upload
// replaces the file and invalidates any profile of the previous bytes.
func (h *DatasetHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Multipart field 'file' is required",
		})
	}

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		return respondError(c, apperr.InvalidRequest("only .csv uploads are accepted, got %q", fileHeader.Filename))
	}

	src, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer src.Close()

	id, size, err := h.store.SaveDataset(fileHeader.Filename, src)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.profiles.Invalidate(c.Context(), id); err != nil {
		logger.Warn("Failed to invalidate previous profile", zap.String("dataset", id), zap.Error(err))
	}

	if h.db != nil {
		record := &models.Dataset{
			ID:       id,
			Filename: fileHeader.Filename,
			ByteSize: size,
		}
		if err := h.db.UpsertDataset(record); err != nil {
			logger.Warn("Failed to register dataset", zap.String("dataset", id), zap.Error(err))
		}
	}

	metrics.UploadsTotal.Inc()
	metrics.UploadBytes.Add(float64(size))

	logger.Info("Dataset uploaded",
		zap.String("dataset", id),
		zap.String("filename", fileHeader.Filename),
		zap.Int64("bytes", size),
	)

	return c.JSON(fiber.Map{
		"filename": id,
		"dataset":  id,
		"bytes":    size,
	})
}

// HandleGet returns the registry record for one dataset.
func (h *DatasetHandler) HandleGet(c *fiber.Ctx) error {
	id := c.Params("dataset")

	if h.db != nil {
		if record, err := h.db.GetDataset(fs.CanonicalID(id)); err == nil && record != nil {
			return c.JSON(record)
		}
	}

	_, size, err := h.store.Resolve(id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"dataset": fs.CanonicalID(id),
		"bytes":   size,
	})
}
