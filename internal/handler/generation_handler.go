package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/univtimetable/optimizer-api/internal/dto"
	"github.com/univtimetable/optimizer-api/internal/models"
	"github.com/univtimetable/optimizer-api/internal/optimizer"
	"github.com/univtimetable/optimizer-api/internal/service"
	"github.com/univtimetable/optimizer-api/pkg/config"
	appErrors "github.com/univtimetable/optimizer-api/pkg/errors"
	"github.com/univtimetable/optimizer-api/pkg/response"
)

// GenerationHandler exposes the optimization job endpoints.
type GenerationHandler struct {
	service  *service.GenerationService
	defaults config.OptimizerConfig
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(svc *service.GenerationService, defaults config.OptimizerConfig) *GenerationHandler {
	return &GenerationHandler{service: svc, defaults: defaults}
}

// Start accepts a job submission and returns its id.
func (h *GenerationHandler) Start(c *gin.Context) {
	var req dto.StartOptimizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	cfg, improver := h.resolveConfig(req.Config)
	jobID, err := h.service.StartOptimization(c.Request.Context(), service.StartRequest{
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		Config:       cfg,
		Improver:     improver,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, dto.StartOptimizationResponse{JobID: jobID}, nil)
}

// Status returns the persisted record of one job.
func (h *GenerationHandler) Status(c *gin.Context) {
	gen, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gen, nil)
}

// Cancel requests cooperative cancellation of a running job.
func (h *GenerationHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CancelResponse{OK: true}, nil)
}

// List returns job records with optional status and stage filters.
func (h *GenerationHandler) List(c *gin.Context) {
	var filter models.GenerationFilter
	filter.Status = c.Query("status")
	if stage := c.Query("stage"); stage != "" {
		if val, err := strconv.Atoi(stage); err == nil {
			filter.Stage = &val
		}
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	gens, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gens, nil)
}

// Actions returns the recorded action trace of one job.
func (h *GenerationHandler) Actions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	actions, err := h.service.Actions(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

// ActionStats returns per-action-type aggregates of one job.
func (h *GenerationHandler) ActionStats(c *gin.Context) {
	stats, err := h.service.ActionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// resolveConfig merges per-job overrides over the configured defaults.
func (h *GenerationHandler) resolveConfig(override *dto.OptimizationConfig) (optimizer.Config, string) {
	cfg := optimizer.Config{
		PopulationSize:      h.defaults.PopulationSize,
		MaxIterations:       h.defaults.MaxIterations,
		Patience:            h.defaults.Patience,
		MinImprovement:      h.defaults.MinImprovement,
		EliteSize:           h.defaults.EliteSize,
		TournamentSize:      h.defaults.TournamentSize,
		CrossoverRate:       h.defaults.CrossoverRate,
		MutationRate:        h.defaults.MutationRate,
		ImproverCadence:     h.defaults.ImproverCadence,
		ImproverTopN:        h.defaults.ImproverTopN,
		EvalWorkers:         h.defaults.EvalWorkers,
		UseUniformCrossover: h.defaults.UseUniformCrossover,
	}
	improver := h.defaults.Improver

	if override == nil {
		return cfg, improver
	}

	if override.PopulationSize != nil {
		cfg.PopulationSize = *override.PopulationSize
	}
	if override.MaxIterations != nil {
		cfg.MaxIterations = *override.MaxIterations
	}
	if override.Patience != nil {
		cfg.Patience = *override.Patience
	}
	if override.MinImprovement != nil {
		cfg.MinImprovement = *override.MinImprovement
	}
	if override.EliteSize != nil {
		cfg.EliteSize = *override.EliteSize
	}
	if override.TournamentSize != nil {
		cfg.TournamentSize = *override.TournamentSize
	}
	if override.CrossoverRate != nil {
		cfg.CrossoverRate = *override.CrossoverRate
	}
	if override.MutationRate != nil {
		cfg.MutationRate = *override.MutationRate
	}
	if override.ImproverCadence != nil {
		cfg.ImproverCadence = *override.ImproverCadence
	}
	if override.ImproverTopN != nil {
		cfg.ImproverTopN = *override.ImproverTopN
	}
	if override.Seed != nil {
		cfg.Seed = *override.Seed
	}
	if override.Improver != "" {
		improver = override.Improver
	}

	return cfg, improver
}
