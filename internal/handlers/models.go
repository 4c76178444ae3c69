package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/registry"
	"github.com/autotab/api/internal/training"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModelHandler exposes the caller's registered models.
type ModelHandler struct {
	store     registry.Store
	orch      *training.Orchestrator
	files     *artifact.Store
	maxUpload int64
	logger    *zap.Logger
}

func NewModelHandler(store registry.Store, orch *training.Orchestrator, files *artifact.Store, maxUpload int64, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{store: store, orch: orch, files: files, maxUpload: maxUpload, logger: logger}
}

// List returns the caller's models, newest first.
// @Summary List models
// @Tags models
// @Security Bearer
// @Produce json
// @Success 200 {array} models.ModelRecord
// @Router /models [get]
func (h *ModelHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.Unauthorized(c, "unauthorized")
		return
	}
	list, err := h.store.ListModels(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list models", zap.Error(err))
		middleware.RespondError(c, http.StatusInternalServerError, middleware.ErrCodeDatabaseError, "failed to list models")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get returns one model.
// @Summary Get a model
// @Tags models
// @Security Bearer
// @Produce json
// @Param id path string true "Model ID"
// @Success 200 {object} models.ModelRecord
// @Failure 404 {object} middleware.APIError
// @Router /models/{id} [get]
func (h *ModelHandler) Get(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Download sends a model's files. The "file" query selects model (default),
// manifest, predictions or importance.
// @Summary Download a model or one of its reports
// @Tags models
// @Security Bearer
// @Param id path string true "Model ID"
// @Param file query string false "model, manifest, predictions or importance"
// @Success 200 {file} file
// @Failure 404 {object} middleware.APIError
// @Router /models/{id}/download [get]
func (h *ModelHandler) Download(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	var path string
	switch strings.ToLower(c.DefaultQuery("file", "model")) {
	case "model":
		path = rec.ArtifactPath
	case "manifest":
		path = rec.ManifestPath
	case "predictions":
		path = rec.PredictionsPath
	case "importance":
		path = rec.ImportancePath
	default:
		middleware.BadRequest(c, "file must be one of model, manifest, predictions, importance")
		return
	}
	serveFile(c, h.files, path, "file not available for this model")
}

// Predict scores an uploaded CSV with a stored model.
// @Summary Score a CSV with a stored model
// @Tags models
// @Security Bearer
// @Accept multipart/form-data
// @Produce text/csv
// @Param id path string true "Model ID"
// @Param file formData file true "CSV with the model's feature columns"
// @Success 200 {file} file
// @Failure 400 {object} middleware.APIError
// @Failure 404 {object} middleware.APIError
// @Router /models/{id}/predict [post]
func (h *ModelHandler) Predict(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	ds, _, ok := readUpload(c, h.maxUpload)
	if !ok {
		return
	}

	scored, err := h.orch.Score(c.Request.Context(), rec, ds)
	if err != nil {
		switch {
		case errors.Is(err, training.ErrInvalidInput):
			middleware.RespondErrorWithDetails(c, http.StatusBadRequest, middleware.ErrCodeBadRequest,
				"dataset does not match the model", err.Error())
		case errors.Is(err, artifact.ErrNotFound):
			middleware.NotFound(c, "model file not available")
		default:
			h.logger.Error("scoring failed", zap.String("model_id", rec.ID.String()), zap.Error(err))
			middleware.InternalError(c, "scoring failed")
		}
		return
	}

	var buf bytes.Buffer
	if err := scored.WriteCSV(&buf); err != nil {
		h.logger.Error("failed to encode predictions", zap.Error(err))
		middleware.InternalError(c, "scoring failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="predictions.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (h *ModelHandler) lookup(c *gin.Context) (*models.ModelRecord, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.Unauthorized(c, "unauthorized")
		return nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.BadRequest(c, "invalid model ID")
		return nil, false
	}
	rec, err := h.store.ModelByID(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			middleware.NotFound(c, "model not found")
			return nil, false
		}
		h.logger.Error("failed to load model", zap.Error(err))
		middleware.RespondError(c, http.StatusInternalServerError, middleware.ErrCodeDatabaseError, "failed to load model")
		return nil, false
	}
	return rec, true
}
