package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/models"
)

func newTeacherPrefMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func TestTeacherPreferenceRepositoryListCells(t *testing.T) {
	db, mock, cleanup := newTeacherPrefMock(t)
	defer cleanup()

	cols := []string{"teacher_id", "day_of_week", "time_slot", "is_preferred", "strength"}
	mock.ExpectQuery(`SELECT teacher_id, day_of_week, time_slot, is_preferred, COALESCE\(strength, ''\) AS strength\s+FROM teacher_preferences`).
		WithArgs(1, "2025/2026").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", 1, 2, false, "strong").
			AddRow("t1", 3, 3, true, "").
			AddRow("t2", 5, 6, false, "weak"))

	repo := NewTeacherPreferenceRepository(db)
	cells, err := repo.ListCells(context.Background(), 1, "2025/2026")
	require.NoError(t, err)
	require.Len(t, cells, 3)

	assert.Equal(t, models.StrengthStrong, cells[0].Strength)
	assert.False(t, cells[0].IsPreferred)
	assert.Equal(t, models.StrengthUnspecified, cells[1].Strength)
	assert.True(t, cells[1].IsPreferred)
	assert.Equal(t, models.StrengthWeak, cells[2].Strength)
}

func TestTeacherPreferenceRepositoryListCellsByTeachers(t *testing.T) {
	db, mock, cleanup := newTeacherPrefMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT teacher_id, day_of_week, time_slot, is_preferred, COALESCE\(strength, ''\) AS strength\s+FROM teacher_preferences\s+WHERE semester = \$1 AND academic_year = \$2 AND teacher_id IN \(\$3, \$4\)`).
		WithArgs(1, "2025/2026", "t1", "t2").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "day_of_week", "time_slot", "is_preferred", "strength"}).
			AddRow("t1", 1, 2, false, "medium"))

	repo := NewTeacherPreferenceRepository(db)
	cells, err := repo.ListCellsByTeachers(context.Background(), 1, "2025/2026", []string{"t1", "t2"})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, models.StrengthMedium, cells[0].Strength)
}

func TestTeacherPreferenceRepositoryListCellsByTeachersEmpty(t *testing.T) {
	db, mock, cleanup := newTeacherPrefMock(t)
	defer cleanup()

	repo := NewTeacherPreferenceRepository(db)
	cells, err := repo.ListCellsByTeachers(context.Background(), 1, "2025/2026", nil)
	require.NoError(t, err)
	assert.Nil(t, cells)
	assert.NoError(t, mock.ExpectationsWereMet())
}
