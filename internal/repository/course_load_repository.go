package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/univtimetable/optimizer-api/internal/models"
)

// CourseLoadRepository reads teaching assignments.
type CourseLoadRepository struct {
	db *sqlx.DB
}

// NewCourseLoadRepository constructs the repository.
func NewCourseLoadRepository(db *sqlx.DB) *CourseLoadRepository {
	return &CourseLoadRepository{db: db}
}

// ListBySemester returns the course loads of one semester with teacher
// priority derived from employment type, most constrained teachers first.
func (r *CourseLoadRepository) ListBySemester(ctx context.Context, semester int, academicYear string) ([]models.CourseLoad, error) {
	const query = `SELECT cl.id, cl.discipline_name, cl.lesson_type, cl.teacher_id,
			t.full_name AS teacher_name, t.employment_type,
			cl.group_id, g.name AS group_name, g.size AS group_size,
			cl.lessons_per_week, cl.semester, cl.academic_year
		FROM course_loads cl
		JOIN teachers t ON t.id = cl.teacher_id
		JOIN groups g ON g.id = cl.group_id
		WHERE cl.semester = $1 AND cl.academic_year = $2
		ORDER BY teacher_name ASC, cl.discipline_name ASC`

	var loads []models.CourseLoad
	if err := r.db.SelectContext(ctx, &loads, query, semester, academicYear); err != nil {
		return nil, fmt.Errorf("list course loads: %w", err)
	}

	for i := range loads {
		loads[i].TeacherPriority = loads[i].EmploymentType.Priority()
	}
	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].TeacherPriority < loads[j].TeacherPriority
	})
	return loads, nil
}
