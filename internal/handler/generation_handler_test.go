package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/models"
	"github.com/univtimetable/optimizer-api/internal/optimizer"
	"github.com/univtimetable/optimizer-api/internal/service"
	"github.com/univtimetable/optimizer-api/pkg/config"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

type stubGenRepo struct {
	generations map[string]*models.Generation
	created     []*models.Generation
}

func (s *stubGenRepo) Create(_ context.Context, gen *models.Generation) error {
	s.created = append(s.created, gen)
	return nil
}

func (s *stubGenRepo) UpdateProgress(context.Context, string, int, float64, float64, string) error {
	return nil
}

func (s *stubGenRepo) Finalize(context.Context, string, models.GenerationStatus, *string, *float64, models.GenerationMetrics) error {
	return nil
}

func (s *stubGenRepo) GetByJobID(_ context.Context, jobID string) (*models.Generation, error) {
	gen, ok := s.generations[jobID]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}
	return gen, nil
}

func (s *stubGenRepo) List(context.Context, models.GenerationFilter) ([]models.Generation, error) {
	return nil, nil
}

func (s *stubGenRepo) InsertAction(context.Context, *models.AgentAction) error { return nil }

func (s *stubGenRepo) ListActions(context.Context, string, int, int) ([]models.AgentAction, error) {
	return nil, nil
}

func (s *stubGenRepo) ActionTypeStats(context.Context, string) ([]models.ActionTypeStat, error) {
	return nil, nil
}

type stubScheduleWriter struct{}

func (stubScheduleWriter) Replace(context.Context, []models.ScheduleRow) error { return nil }

type stubLoader struct{}

func (stubLoader) Load(context.Context, int, string) (*optimizer.Problem, error) {
	return optimizer.NewProblem(1, "2025/2026", nil, nil, nil), nil
}

func optimizerDefaults() config.OptimizerConfig {
	return config.OptimizerConfig{
		PopulationSize:      20,
		MaxIterations:       10,
		Patience:            5,
		MinImprovement:      0.01,
		EliteSize:           4,
		TournamentSize:      3,
		CrossoverRate:       0.8,
		MutationRate:        0.1,
		Improver:            "none",
		ImproverCadence:     5,
		ImproverTopN:        2,
		EvalWorkers:         2,
		UseUniformCrossover: true,
	}
}

func newGenerationRouter(t *testing.T, repo *stubGenRepo) (*gin.Engine, *service.GenerationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gin.EnableJsonDecoderDisallowUnknownFields()

	svc := service.NewGenerationService(repo, stubScheduleWriter{}, stubLoader{}, nil, nil, nil, optimizerDefaults(), nil, nil)
	h := NewGenerationHandler(svc, optimizerDefaults())

	r := gin.New()
	r.POST("/optimizer/jobs", h.Start)
	r.GET("/optimizer/jobs/:id", h.Status)
	r.POST("/optimizer/jobs/:id/cancel", h.Cancel)
	return r, svc
}

func TestGenerationHandlerStartRejectsBadPayload(t *testing.T) {
	r, _ := newGenerationRouter(t, &stubGenRepo{generations: map[string]*models.Generation{}})

	req := httptest.NewRequest(http.MethodPost, "/optimizer/jobs", bytes.NewBufferString(`{"semester":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error *apperrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, apperrors.ErrValidation.Code, body.Error.Code)
}

func TestGenerationHandlerStartRejectsUnknownFields(t *testing.T) {
	r, _ := newGenerationRouter(t, &stubGenRepo{generations: map[string]*models.Generation{}})

	payload := `{"semester":1,"academic_year":"2025/2026","config":{"max_iters":5}}`
	req := httptest.NewRequest(http.MethodPost, "/optimizer/jobs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error *apperrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, apperrors.ErrValidation.Code, body.Error.Code)
}

func TestGenerationHandlerStartRejectsMissingSemester(t *testing.T) {
	r, _ := newGenerationRouter(t, &stubGenRepo{generations: map[string]*models.Generation{}})

	req := httptest.NewRequest(http.MethodPost, "/optimizer/jobs", bytes.NewBufferString(`{"academic_year":"2025/2026"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerationHandlerStartAcceptsSubmission(t *testing.T) {
	repo := &stubGenRepo{generations: map[string]*models.Generation{}}
	r, svc := newGenerationRouter(t, repo)
	svc.Start()
	defer svc.Stop()

	payload := `{"semester":1,"academic_year":"2025/2026","config":{"max_iterations":1,"population_size":6,"elite_size":2}}`
	req := httptest.NewRequest(http.MethodPost, "/optimizer/jobs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var body struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.JobID)

	require.Len(t, repo.created, 1)
	assert.Equal(t, 1, repo.created[0].MaxIterations)
}

func TestGenerationHandlerStatusNotFound(t *testing.T) {
	r, _ := newGenerationRouter(t, &stubGenRepo{generations: map[string]*models.Generation{}})

	req := httptest.NewRequest(http.MethodGet, "/optimizer/jobs/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandlerCancelNotRunning(t *testing.T) {
	repo := &stubGenRepo{generations: map[string]*models.Generation{
		"job-done": {JobID: "job-done", Status: models.GenerationCompleted},
	}}
	r, _ := newGenerationRouter(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/optimizer/jobs/job-done/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
