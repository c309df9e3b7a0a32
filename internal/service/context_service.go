package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/models"
	"github.com/univtimetable/optimizer-api/internal/optimizer"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

const (
	loadMaxAttempts  = 3
	loadRetryBackoff = 200 * time.Millisecond
)

type courseLoadReader interface {
	ListBySemester(ctx context.Context, semester int, academicYear string) ([]models.CourseLoad, error)
}

type preferenceReader interface {
	ListCells(ctx context.Context, semester int, academicYear string) ([]models.PreferenceCell, error)
}

type classroomReader interface {
	ListActive(ctx context.Context) ([]models.Classroom, error)
}

// ContextService assembles the immutable problem instance of one job from
// the data store.
type ContextService struct {
	loads  courseLoadReader
	prefs  preferenceReader
	rooms  classroomReader
	logger *zap.Logger
}

// NewContextService wires the loader.
func NewContextService(loads courseLoadReader, prefs preferenceReader, rooms classroomReader, logger *zap.Logger) *ContextService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextService{loads: loads, prefs: prefs, rooms: rooms, logger: logger}
}

// Load reads course loads, preferences, and active rooms for the semester
// and indexes them into a problem instance. Transient read errors are
// retried with backoff; an empty course-load catalog fails with MissingData.
func (s *ContextService) Load(ctx context.Context, semester int, academicYear string) (*optimizer.Problem, error) {
	var loads []models.CourseLoad
	if err := s.retry(ctx, "course_loads", func() error {
		var err error
		loads, err = s.loads.ListBySemester(ctx, semester, academicYear)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load course loads: %w", err)
	}
	if len(loads) == 0 {
		return nil, apperrors.Clone(apperrors.ErrMissingData,
			fmt.Sprintf("no course loads for semester %d %s", semester, academicYear))
	}

	var cells []models.PreferenceCell
	if err := s.retry(ctx, "preferences", func() error {
		var err error
		cells, err = s.prefs.ListCells(ctx, semester, academicYear)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	var rooms []models.Classroom
	if err := s.retry(ctx, "classrooms", func() error {
		var err error
		rooms, err = s.rooms.ListActive(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load classrooms: %w", err)
	}

	prefSets := buildPreferenceSets(loads, cells)

	s.logger.Info("problem instance loaded",
		zap.Int("semester", semester),
		zap.String("academic_year", academicYear),
		zap.Int("course_loads", len(loads)),
		zap.Int("preference_cells", len(cells)),
		zap.Int("classrooms", len(rooms)))

	return optimizer.NewProblem(semester, academicYear, loads, prefSets, rooms), nil
}

// buildPreferenceSets groups cells per teacher and resolves identity and
// priority from the course loads. Every teacher referenced by a load gets a
// set, even an empty one; cells of teachers without loads are dropped.
func buildPreferenceSets(loads []models.CourseLoad, cells []models.PreferenceCell) []models.TeacherPreferences {
	byTeacher := make(map[string]*models.TeacherPreferences)
	var order []string

	for _, load := range loads {
		if _, seen := byTeacher[load.TeacherID]; seen {
			continue
		}
		byTeacher[load.TeacherID] = &models.TeacherPreferences{
			TeacherID:   load.TeacherID,
			TeacherName: load.TeacherName,
			Priority:    load.TeacherPriority,
		}
		order = append(order, load.TeacherID)
	}

	for _, cell := range cells {
		set, ok := byTeacher[cell.TeacherID]
		if !ok {
			continue
		}
		set.Cells = append(set.Cells, cell)
	}

	out := make([]models.TeacherPreferences, 0, len(order))
	for _, id := range order {
		out = append(out, *byTeacher[id])
	}
	return out
}

// retry runs fn up to loadMaxAttempts times with exponential backoff.
func (s *ContextService) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= loadMaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		s.logger.Warn("context load attempt failed",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == loadMaxAttempts {
			break
		}
		backoff := loadRetryBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
