package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univtimetable/optimizer-api/internal/models"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

// ScheduleRepository persists activated timetables.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Replace deactivates every active schedule row and bulk-inserts the new
// timetable in one transaction. On any failure the transaction rolls back
// and the previously active rows stay active.
func (r *ScheduleRepository) Replace(ctx context.Context, rows []models.ScheduleRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE schedules SET is_active = false WHERE is_active = true`); err != nil {
		return apperrors.Wrap(err, apperrors.ErrWriteConflict.Code, apperrors.ErrWriteConflict.Status, "deactivate schedules")
	}

	const insert = `INSERT INTO schedules
			(id, course_load_id, day_of_week, time_slot, classroom_id, teacher_id, teacher_name,
			 group_id, group_name, discipline_name, lesson_type, generation_id, is_active,
			 semester, academic_year, created_at)
		VALUES (:id, :course_load_id, :day_of_week, :time_slot, :classroom_id, :teacher_id, :teacher_name,
			 :group_id, :group_name, :discipline_name, :lesson_type, :generation_id, :is_active,
			 :semester, :academic_year, :created_at)`

	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		rows[i].IsActive = true
		rows[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, rows[i]); err != nil {
			return apperrors.Wrap(err, apperrors.ErrWriteConflict.Code, apperrors.ErrWriteConflict.Status, "insert schedule row")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrWriteConflict.Code, apperrors.ErrWriteConflict.Status, "commit schedule replace")
	}
	return nil
}

// ListActive returns the currently activated timetable.
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]models.ScheduleRow, error) {
	const query = `SELECT id, course_load_id, day_of_week, time_slot, classroom_id, teacher_id, teacher_name,
			group_id, group_name, discipline_name, lesson_type, generation_id, is_active,
			semester, academic_year, created_at
		FROM schedules
		WHERE is_active = true
		ORDER BY day_of_week, time_slot, group_name`

	var rows []models.ScheduleRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	return rows, nil
}

// ListActiveByTeacher returns the active timetable of one teacher.
func (r *ScheduleRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleRow, error) {
	const query = `SELECT id, course_load_id, day_of_week, time_slot, classroom_id, teacher_id, teacher_name,
			group_id, group_name, discipline_name, lesson_type, generation_id, is_active,
			semester, academic_year, created_at
		FROM schedules
		WHERE is_active = true AND teacher_id = $1
		ORDER BY day_of_week, time_slot`

	var rows []models.ScheduleRow
	if err := r.db.SelectContext(ctx, &rows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list schedules by teacher: %w", err)
	}
	return rows, nil
}

// ListActiveByGroup returns the active timetable of one group.
func (r *ScheduleRepository) ListActiveByGroup(ctx context.Context, groupID string) ([]models.ScheduleRow, error) {
	const query = `SELECT id, course_load_id, day_of_week, time_slot, classroom_id, teacher_id, teacher_name,
			group_id, group_name, discipline_name, lesson_type, generation_id, is_active,
			semester, academic_year, created_at
		FROM schedules
		WHERE is_active = true AND group_id = $1
		ORDER BY day_of_week, time_slot`

	var rows []models.ScheduleRow
	if err := r.db.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, fmt.Errorf("list schedules by group: %w", err)
	}
	return rows, nil
}

// CountByGeneration reports how many rows one generation produced.
func (r *ScheduleRepository) CountByGeneration(ctx context.Context, generationID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM schedules WHERE generation_id = $1`, generationID); err != nil {
		return 0, fmt.Errorf("count schedules by generation: %w", err)
	}
	return count, nil
}

// CheckConflicts reports double-booked cells of one generation directly from
// the database, as an independent verification of the produced timetable.
func (r *ScheduleRepository) CheckConflicts(ctx context.Context, generationID string) ([]models.ScheduleConflict, error) {
	const query = `SELECT 'teacher' AS conflict_type, teacher_id AS entity_id, day_of_week, time_slot, COUNT(*) AS lesson_count
			FROM schedules
			WHERE generation_id = $1
			GROUP BY teacher_id, day_of_week, time_slot
			HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'group' AS conflict_type, group_id AS entity_id, day_of_week, time_slot, COUNT(*) AS lesson_count
			FROM schedules
			WHERE generation_id = $1
			GROUP BY group_id, day_of_week, time_slot
			HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'classroom' AS conflict_type, classroom_id AS entity_id, day_of_week, time_slot, COUNT(*) AS lesson_count
			FROM schedules
			WHERE generation_id = $1 AND classroom_id IS NOT NULL
			GROUP BY classroom_id, day_of_week, time_slot
			HAVING COUNT(*) > 1
		ORDER BY conflict_type, day_of_week, time_slot`

	var conflicts []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, generationID); err != nil {
		return nil, fmt.Errorf("check schedule conflicts: %w", err)
	}
	return conflicts, nil
}
