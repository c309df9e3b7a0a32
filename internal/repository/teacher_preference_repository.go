package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/univtimetable/optimizer-api/internal/models"
)

// TeacherPreferenceRepository reads per-teacher time preference cells.
type TeacherPreferenceRepository struct {
	db *sqlx.DB
}

// NewTeacherPreferenceRepository constructs the repository.
func NewTeacherPreferenceRepository(db *sqlx.DB) *TeacherPreferenceRepository {
	return &TeacherPreferenceRepository{db: db}
}

// ListCells returns all preference cells of one semester. Teacher identity
// and priority are resolved by the caller from the course loads.
func (r *TeacherPreferenceRepository) ListCells(ctx context.Context, semester int, academicYear string) ([]models.PreferenceCell, error) {
	const query = `SELECT teacher_id, day_of_week, time_slot, is_preferred, COALESCE(strength, '') AS strength
		FROM teacher_preferences
		WHERE semester = $1 AND academic_year = $2
		ORDER BY teacher_id, day_of_week, time_slot`

	var cells []models.PreferenceCell
	if err := r.db.SelectContext(ctx, &cells, query, semester, academicYear); err != nil {
		return nil, fmt.Errorf("list preference cells: %w", err)
	}
	return cells, nil
}

// ListCellsByTeachers narrows the cell listing to the given teachers.
func (r *TeacherPreferenceRepository) ListCellsByTeachers(ctx context.Context, semester int, academicYear string, teacherIDs []string) ([]models.PreferenceCell, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT teacher_id, day_of_week, time_slot, is_preferred, COALESCE(strength, '') AS strength
		FROM teacher_preferences
		WHERE semester = ? AND academic_year = ? AND teacher_id IN (?)
		ORDER BY teacher_id, day_of_week, time_slot`, semester, academicYear, teacherIDs)
	if err != nil {
		return nil, fmt.Errorf("build preference cell query: %w", err)
	}
	query = r.db.Rebind(query)

	var cells []models.PreferenceCell
	if err := r.db.SelectContext(ctx, &cells, query, args...); err != nil {
		return nil, fmt.Errorf("list preference cells by teachers: %w", err)
	}
	return cells, nil
}
