package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/models"
	"github.com/univtimetable/optimizer-api/internal/optimizer"
	"github.com/univtimetable/optimizer-api/pkg/config"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
	"github.com/univtimetable/optimizer-api/pkg/jobs"
)

const (
	stageGenetic     = 1
	stageGeneticName = "genetic_optimization"

	progressKeyPrefix = "optimizer:progress:"
	progressChannel   = "optimizer:progress"
)

// Improver kinds accepted at submission.
const (
	ImproverPrompt = "prompt"
	ImproverAgent  = "agent"
	ImproverNone   = "none"
)

type generationRepo interface {
	Create(ctx context.Context, gen *models.Generation) error
	UpdateProgress(ctx context.Context, jobID string, iteration int, currentScore, bestScore float64, reasoning string) error
	Finalize(ctx context.Context, jobID string, status models.GenerationStatus, errorMessage *string, initialScore *float64, metrics models.GenerationMetrics) error
	GetByJobID(ctx context.Context, jobID string) (*models.Generation, error)
	List(ctx context.Context, filter models.GenerationFilter) ([]models.Generation, error)
	InsertAction(ctx context.Context, action *models.AgentAction) error
	ListActions(ctx context.Context, jobID string, limit, offset int) ([]models.AgentAction, error)
	ActionTypeStats(ctx context.Context, jobID string) ([]models.ActionTypeStat, error)
}

type scheduleWriter interface {
	Replace(ctx context.Context, rows []models.ScheduleRow) error
}

type problemLoader interface {
	Load(ctx context.Context, semester int, academicYear string) (*optimizer.Problem, error)
}

type progressCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Publish(ctx context.Context, channel string, value interface{}) error
}

// JobProgress is the snapshot cached and published per iteration.
type JobProgress struct {
	JobID        string  `json:"job_id"`
	Iteration    int     `json:"iteration"`
	CurrentScore float64 `json:"current_score"`
	BestScore    float64 `json:"best_score"`
	Reasoning    string  `json:"reasoning"`
}

// GenerationService owns the optimization job lifecycle: submission,
// background execution, progress persistence, cancellation, and the final
// transactional schedule write.
type GenerationService struct {
	repo      generationRepo
	schedules scheduleWriter
	loader    problemLoader
	cache     progressCache
	chat      optimizer.ChatClient
	metrics   *MetricsService
	defaults  config.OptimizerConfig
	validate  *validator.Validate
	logger    *zap.Logger

	queue      *jobs.Queue
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// StartRequest carries one validated submission.
type StartRequest struct {
	Semester     int    `validate:"required,min=1,max=12"`
	AcademicYear string `validate:"required"`
	Config       optimizer.Config
	Improver     string
	CreatedBy    string
}

type runRequest struct {
	jobID  string
	start  StartRequest
	jobCtx context.Context
}

// NewGenerationService wires the job lifecycle service. chat may be nil;
// improver submissions then degrade to none with a warning.
func NewGenerationService(
	repo generationRepo,
	schedules scheduleWriter,
	loader problemLoader,
	cache progressCache,
	chat optimizer.ChatClient,
	metrics *MetricsService,
	defaults config.OptimizerConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &GenerationService{
		repo:      repo,
		schedules: schedules,
		loader:    loader,
		cache:     cache,
		chat:      chat,
		metrics:   metrics,
		defaults:  defaults,
		validate:  validate,
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.queue = jobs.NewQueue("optimizer", s.handleJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 8,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the background job queue.
func (s *GenerationService) Start() {
	s.queue.Start(s.baseCtx)
}

// Stop cancels every running job and drains the queue.
func (s *GenerationService) Stop() {
	s.baseCancel()
	s.queue.Stop()
}

// StartOptimization validates the submission, records the job, and enqueues
// the run. It returns the job id immediately; data loading failures surface
// through the job status.
func (s *GenerationService) StartOptimization(ctx context.Context, req StartRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInvalidArgument.Code, apperrors.ErrInvalidArgument.Status, "invalid submission")
	}
	if err := req.Config.Validate(); err != nil {
		return "", err
	}

	switch req.Improver {
	case ImproverPrompt, ImproverAgent, ImproverNone, "":
	default:
		return "", apperrors.Clone(apperrors.ErrInvalidArgument,
			fmt.Sprintf("unknown improver %q", req.Improver))
	}
	if req.Improver == "" {
		req.Improver = ImproverNone
	}
	if req.Improver != ImproverNone && s.chat == nil {
		s.logger.Warn("improver requested without an LLM client, running without one",
			zap.String("improver", req.Improver))
		req.Improver = ImproverNone
	}

	jobID := uuid.NewString()
	gen := &models.Generation{
		JobID:         jobID,
		Stage:         stageGenetic,
		StageName:     stageGeneticName,
		Status:        models.GenerationRunning,
		MaxIterations: req.Config.MaxIterations,
	}
	if req.CreatedBy != "" {
		gen.CreatedBy = &req.CreatedBy
	}
	if err := s.repo.Create(ctx, gen); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.running[jobID] = cancel
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    "optimize",
		Payload: runRequest{jobID: jobID, start: req, jobCtx: jobCtx},
	}); err != nil {
		s.dropRunning(jobID)
		message := err.Error()
		_ = s.repo.Finalize(ctx, jobID, models.GenerationFailed, &message, nil, nil)
		return "", apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "enqueue optimization job")
	}

	s.metrics.JobStarted()
	s.logger.Info("optimization job started",
		zap.String("job_id", jobID),
		zap.Int("semester", req.Semester),
		zap.String("academic_year", req.AcademicYear),
		zap.String("improver", req.Improver))

	return jobID, nil
}

func (s *GenerationService) handleJob(_ context.Context, job jobs.Job) error {
	req, ok := job.Payload.(runRequest)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	s.run(req)
	return nil
}

// run executes one optimization end to end. Persistence writes use the
// service's base context so a cancelled job can still finalize its record.
func (s *GenerationService) run(req runRequest) {
	defer s.dropRunning(req.jobID)

	problem, err := s.loader.Load(req.jobCtx, req.start.Semester, req.start.AcademicYear)
	if err != nil {
		// A cancellation landing during data loading is still a cancellation,
		// not a failure.
		if errors.Is(err, context.Canceled) {
			s.finishJob(req.jobID, models.GenerationStopped, nil, nil)
			return
		}
		s.finishJob(req.jobID, models.GenerationFailed, err, nil)
		return
	}

	engine := optimizer.NewEngine(problem, req.start.Config, s.buildImprover(req.start.Improver, problem), s.logger)
	engine.SetProgressFunc(func(p optimizer.Progress) {
		s.persistProgress(req.jobID, p)
	})
	engine.SetActionFunc(func(a models.AgentAction) {
		a.GenerationID = req.jobID
		if err := s.repo.InsertAction(s.baseCtx, &a); err != nil {
			s.logger.Warn("failed to persist action record",
				zap.String("job_id", req.jobID),
				zap.Error(err))
		}
		if a.ActionType != models.ActionEvaluate {
			s.metrics.ObserveLLMCall(a.Success)
		}
	})

	result, runErr := engine.Run(req.jobCtx)
	s.metrics.ObserveEvaluations(result.Evaluations)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			s.finishJob(req.jobID, models.GenerationStopped, nil, result)
			return
		}
		s.finishJob(req.jobID, models.GenerationFailed, runErr, result)
		return
	}

	rows := scheduleRows(req.jobID, problem, result.Best)
	if err := s.schedules.Replace(s.baseCtx, rows); err != nil {
		s.finishJob(req.jobID, models.GenerationFailed, err, result)
		return
	}

	s.finishJob(req.jobID, models.GenerationCompleted, nil, result)
}

func (s *GenerationService) buildImprover(kind string, problem *optimizer.Problem) optimizer.Improver {
	switch kind {
	case ImproverPrompt:
		return optimizer.NewPromptImprover(s.chat, problem, s.logger)
	case ImproverAgent:
		return optimizer.NewAgentImprover(s.chat, problem, 0, s.logger)
	default:
		return optimizer.NoopImprover{}
	}
}

func (s *GenerationService) persistProgress(jobID string, p optimizer.Progress) {
	if err := s.repo.UpdateProgress(s.baseCtx, jobID, p.Iteration, p.CurrentScore, p.BestScore, p.Reasoning); err != nil {
		s.logger.Warn("failed to persist progress",
			zap.String("job_id", jobID),
			zap.Int("iteration", p.Iteration),
			zap.Error(err))
	}

	s.metrics.ObserveIteration(jobID, p.BestScore)

	if s.cache == nil {
		return
	}
	snapshot := JobProgress{
		JobID:        jobID,
		Iteration:    p.Iteration,
		CurrentScore: p.CurrentScore,
		BestScore:    p.BestScore,
		Reasoning:    p.Reasoning,
	}
	if err := s.cache.Set(s.baseCtx, progressKeyPrefix+jobID, snapshot, s.defaults.ProgressTTL); err != nil {
		s.logger.Warn("failed to cache progress", zap.String("job_id", jobID), zap.Error(err))
	}
	if err := s.cache.Publish(s.baseCtx, progressChannel, snapshot); err != nil {
		s.logger.Warn("failed to publish progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *GenerationService) finishJob(jobID string, status models.GenerationStatus, cause error, result *optimizer.Result) {
	var message *string
	if cause != nil {
		text := cause.Error()
		message = &text
	}
	var initialScore *float64
	if result != nil {
		score := result.InitialScore
		initialScore = &score
	}
	if err := s.repo.Finalize(s.baseCtx, jobID, status, message, initialScore, runMetrics(result)); err != nil {
		s.logger.Error("failed to finalize job",
			zap.String("job_id", jobID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	s.metrics.JobFinished(status)

	field := zap.Skip()
	if cause != nil {
		field = zap.Error(cause)
	}
	s.logger.Info("optimization job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
		field)
}

func (s *GenerationService) dropRunning(jobID string) {
	s.mu.Lock()
	if cancel, ok := s.running[jobID]; ok {
		cancel()
		delete(s.running, jobID)
	}
	s.mu.Unlock()
}

// GetStatus returns the persisted job record.
func (s *GenerationService) GetStatus(ctx context.Context, jobID string) (*models.Generation, error) {
	return s.repo.GetByJobID(ctx, jobID)
}

// List returns persisted job records, newest first.
func (s *GenerationService) List(ctx context.Context, filter models.GenerationFilter) ([]models.Generation, error) {
	return s.repo.List(ctx, filter)
}

// Actions returns the recorded action trace of one job.
func (s *GenerationService) Actions(ctx context.Context, jobID string, limit, offset int) ([]models.AgentAction, error) {
	if _, err := s.repo.GetByJobID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListActions(ctx, jobID, limit, offset)
}

// ActionStats aggregates the recorded actions of one job per type.
func (s *GenerationService) ActionStats(ctx context.Context, jobID string) ([]models.ActionTypeStat, error) {
	if _, err := s.repo.GetByJobID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.ActionTypeStats(ctx, jobID)
}

// Cancel requests cooperative cancellation of a running job.
func (s *GenerationService) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		if _, err := s.repo.GetByJobID(ctx, jobID); err != nil {
			return err
		}
		return apperrors.ErrJobNotRunning
	}
	cancel()
	s.logger.Info("cancellation requested", zap.String("job_id", jobID))
	return nil
}

// runMetrics summarizes a finished run for the job record.
func runMetrics(result *optimizer.Result) models.GenerationMetrics {
	if result == nil {
		return nil
	}
	metrics := models.GenerationMetrics{
		"iterations":    result.Iterations,
		"evaluations":   result.Evaluations,
		"initial_score": result.InitialScore,
		"best_score":    result.BestScore,
	}
	if result.Best != nil && result.Best.Fitness != nil {
		metrics["hard_violations"] = result.Best.Fitness.HardViolations
		metrics["gaps_count"] = result.Best.Fitness.GapsCount
		metrics["early_lessons"] = result.Best.Fitness.EarlyLessons
		metrics["late_lessons"] = result.Best.Fitness.LateLessons
	}
	return metrics
}

// scheduleRows converts the best chromosome into persistable lesson rows.
func scheduleRows(jobID string, problem *optimizer.Problem, best *optimizer.Chromosome) []models.ScheduleRow {
	rows := make([]models.ScheduleRow, 0, len(best.Lessons))
	for _, l := range best.Lessons {
		row := models.ScheduleRow{
			CourseLoadID:   l.CourseLoadID,
			DayOfWeek:      l.Day,
			TimeSlot:       l.Slot,
			TeacherID:      l.TeacherID,
			TeacherName:    l.TeacherName,
			GroupID:        l.GroupID,
			GroupName:      l.GroupName,
			DisciplineName: l.DisciplineName,
			LessonType:     l.LessonType,
			GenerationID:   jobID,
			IsActive:       true,
			Semester:       problem.Semester,
			AcademicYear:   problem.AcademicYear,
		}
		if l.ClassroomID != "" {
			classroomID := l.ClassroomID
			row.ClassroomID = &classroomID
		}
		rows = append(rows, row)
	}
	return rows
}
