package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/models"
)

type scheduleReader interface {
	ListActive(ctx context.Context) ([]models.ScheduleRow, error)
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleRow, error)
	ListActiveByGroup(ctx context.Context, groupID string) ([]models.ScheduleRow, error)
	CheckConflicts(ctx context.Context, generationID string) ([]models.ScheduleConflict, error)
}

// ScheduleService serves read views over the activated timetable.
type ScheduleService struct {
	repo   scheduleReader
	logger *zap.Logger
}

// NewScheduleService wires the read side.
func NewScheduleService(repo scheduleReader, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, logger: logger}
}

// Active returns the currently activated timetable.
func (s *ScheduleService) Active(ctx context.Context) ([]models.ScheduleRow, error) {
	return s.repo.ListActive(ctx)
}

// ByTeacher returns one teacher's active timetable.
func (s *ScheduleService) ByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleRow, error) {
	return s.repo.ListActiveByTeacher(ctx, teacherID)
}

// ByGroup returns one group's active timetable.
func (s *ScheduleService) ByGroup(ctx context.Context, groupID string) ([]models.ScheduleRow, error) {
	return s.repo.ListActiveByGroup(ctx, groupID)
}

// Conflicts verifies one generation's rows directly in the database.
func (s *ScheduleService) Conflicts(ctx context.Context, generationID string) ([]models.ScheduleConflict, error) {
	return s.repo.CheckConflicts(ctx, generationID)
}
