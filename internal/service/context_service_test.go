package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/models"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

type fakeLoadReader struct {
	loads []models.CourseLoad
	errs  []error
	calls int
}

func (f *fakeLoadReader) ListBySemester(_ context.Context, _ int, _ string) ([]models.CourseLoad, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.loads, nil
}

type fakePrefReader struct {
	cells []models.PreferenceCell
}

func (f *fakePrefReader) ListCells(_ context.Context, _ int, _ string) ([]models.PreferenceCell, error) {
	return f.cells, nil
}

type fakeRoomReader struct {
	rooms []models.Classroom
}

func (f *fakeRoomReader) ListActive(_ context.Context) ([]models.Classroom, error) {
	return f.rooms, nil
}

func sampleLoads() []models.CourseLoad {
	return []models.CourseLoad{
		{ID: "l1", DisciplineName: "Algorithms", LessonType: models.LessonLecture, TeacherID: "t1",
			TeacherName: "Ada", TeacherPriority: 1, GroupID: "g1", GroupName: "CS-101",
			LessonsPerWeek: 2, Semester: 1, AcademicYear: "2025/2026"},
		{ID: "l2", DisciplineName: "Databases", LessonType: models.LessonPractice, TeacherID: "t2",
			TeacherName: "Bob", TeacherPriority: 4, GroupID: "g1", GroupName: "CS-101",
			LessonsPerWeek: 1, Semester: 1, AcademicYear: "2025/2026"},
	}
}

func TestContextServiceLoadBuildsProblem(t *testing.T) {
	loads := &fakeLoadReader{loads: sampleLoads()}
	prefs := &fakePrefReader{cells: []models.PreferenceCell{
		{TeacherID: "t1", Day: 2, Slot: 3, IsPreferred: true, Strength: models.StrengthStrong},
		{TeacherID: "t9", Day: 1, Slot: 1, IsPreferred: false, Strength: models.StrengthWeak},
	}}
	rooms := &fakeRoomReader{rooms: []models.Classroom{{ID: "r1", Number: "101", IsActive: true}}}

	svc := NewContextService(loads, prefs, rooms, nil)
	problem, err := svc.Load(context.Background(), 1, "2025/2026")
	require.NoError(t, err)

	assert.Equal(t, 1, problem.Semester)
	assert.Equal(t, "2025/2026", problem.AcademicYear)
	assert.Equal(t, 3, problem.TotalLessons())
	assert.Len(t, problem.Classrooms, 1)

	// Cells of teachers that carry loads are indexed.
	cell, ok := problem.Cell("t1", 2, 3)
	require.True(t, ok)
	assert.True(t, cell.IsPreferred)
	assert.Equal(t, 1, problem.TeacherPriority("t1"))

	// Cells of teachers without loads are dropped.
	_, ok = problem.Cell("t9", 1, 1)
	assert.False(t, ok)
}

func TestContextServiceLoadNoCourseLoads(t *testing.T) {
	svc := NewContextService(&fakeLoadReader{}, &fakePrefReader{}, &fakeRoomReader{}, nil)

	_, err := svc.Load(context.Background(), 3, "2025/2026")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrMissingData.Code, apperrors.FromError(err).Code)
}

func TestContextServiceLoadRetriesTransientFailures(t *testing.T) {
	loads := &fakeLoadReader{
		loads: sampleLoads(),
		errs:  []error{errors.New("connection reset"), errors.New("connection reset")},
	}
	svc := NewContextService(loads, &fakePrefReader{}, &fakeRoomReader{}, nil)

	problem, err := svc.Load(context.Background(), 1, "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, 3, loads.calls)
	assert.Equal(t, 3, problem.TotalLessons())
}

func TestContextServiceLoadGivesUpAfterMaxAttempts(t *testing.T) {
	loads := &fakeLoadReader{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	svc := NewContextService(loads, &fakePrefReader{}, &fakeRoomReader{}, nil)

	_, err := svc.Load(context.Background(), 1, "2025/2026")
	require.Error(t, err)
	assert.Equal(t, 3, loads.calls)
}

func TestBuildPreferenceSetsEveryLoadTeacherGetsASet(t *testing.T) {
	sets := buildPreferenceSets(sampleLoads(), []models.PreferenceCell{
		{TeacherID: "t2", Day: 4, Slot: 5, IsPreferred: false, Strength: models.StrengthMedium},
	})
	require.Len(t, sets, 2)

	assert.Equal(t, "t1", sets[0].TeacherID)
	assert.Equal(t, 1, sets[0].Priority)
	assert.Empty(t, sets[0].Cells)

	assert.Equal(t, "t2", sets[1].TeacherID)
	require.Len(t, sets[1].Cells, 1)
	assert.Equal(t, models.StrengthMedium, sets[1].Cells[0].Strength)
}
