package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/automl"
	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/training"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DatasetHandler trains models on uploaded datasets and serves the latest
// reports.
type DatasetHandler struct {
	orch      *training.Orchestrator
	files     *artifact.Store
	maxUpload int64
	logger    *zap.Logger
}

func NewDatasetHandler(orch *training.Orchestrator, files *artifact.Store, maxUpload int64, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{orch: orch, files: files, maxUpload: maxUpload, logger: logger}
}

// UploadResponse is returned after a successful training run.
type UploadResponse struct {
	Message             string                    `json:"message"`
	Model               *models.ModelRecord       `json:"model"`
	ImportanceAvailable bool                      `json:"importance_available"`
	Leaderboard         []automl.LeaderboardEntry `json:"leaderboard"`
}

// Upload trains a model on the uploaded CSV. The last column is the target.
// @Summary Upload a dataset and train a model
// @Tags datasets
// @Security Bearer
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file, target in the last column"
// @Param problem_type formData string false "classification or regression; detected when empty"
// @Success 201 {object} UploadResponse
// @Failure 400 {object} middleware.APIError
// @Failure 413 {object} middleware.APIError
// @Router /datasets [post]
func (h *DatasetHandler) Upload(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.Unauthorized(c, "unauthorized")
		return
	}

	ds, name, ok := readUpload(c, h.maxUpload)
	if !ok {
		return
	}

	var pt automl.ProblemType
	if raw := c.PostForm("problem_type"); raw != "" {
		parsed, err := automl.ParseProblemType(raw)
		if err != nil {
			middleware.BadRequest(c, err.Error())
			return
		}
		pt = parsed
	}

	out, err := h.orch.Train(c.Request.Context(), training.Request{
		Owner:   userID,
		Name:    name,
		Dataset: ds,
		Problem: pt,
	})
	if err != nil {
		switch {
		case errors.Is(err, training.ErrInvalidInput):
			middleware.RespondErrorWithDetails(c, http.StatusBadRequest, middleware.ErrCodeBadRequest,
				"dataset cannot be used for training", err.Error())
		case errors.Is(err, context.Canceled):
			h.logger.Info("training cancelled by client", zap.String("dataset", name))
		case errors.Is(err, context.DeadlineExceeded):
			h.logger.Warn("training timed out", zap.String("dataset", name))
			middleware.ServiceUnavailable(c, "training took too long, try a smaller dataset", 60_000)
		default:
			h.logger.Error("training failed", zap.String("dataset", name), zap.Error(err))
			middleware.InternalError(c, "training failed")
		}
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{
		Message:             "Model trained successfully",
		Model:               out.Record,
		ImportanceAvailable: out.Record.HasImportance,
		Leaderboard:         out.Leaderboard,
	})
}

// LatestPredictions downloads the prediction report of the last run.
// @Summary Download the latest predictions
// @Tags reports
// @Security Bearer
// @Produce text/csv
// @Success 200 {file} file
// @Failure 404 {object} middleware.APIError
// @Router /predictions/latest [get]
func (h *DatasetHandler) LatestPredictions(c *gin.Context) {
	h.serveLatest(c, func(l artifact.Latest) string { return l.Predictions },
		"no predictions available, upload a dataset first")
}

// LatestImportance downloads the feature importance report of the last run.
// @Summary Download the latest feature importance
// @Tags reports
// @Security Bearer
// @Produce text/csv
// @Success 200 {file} file
// @Failure 404 {object} middleware.APIError
// @Router /feature-importance/latest [get]
func (h *DatasetHandler) LatestImportance(c *gin.Context) {
	h.serveLatest(c, func(l artifact.Latest) string { return l.Importance },
		"no feature importance available for the latest model")
}

func (h *DatasetHandler) serveLatest(c *gin.Context, pick func(artifact.Latest) string, missing string) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.Unauthorized(c, "unauthorized")
		return
	}
	latest, err := h.orch.Latest(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			middleware.NotFound(c, missing)
			return
		}
		h.logger.Error("failed to load latest reports", zap.Error(err))
		middleware.InternalError(c, "internal server error")
		return
	}
	serveFile(c, h.files, pick(latest), missing)
}
