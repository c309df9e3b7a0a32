package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/univtimetable/optimizer-api/internal/models"
)

// ClassroomRepository reads physical rooms.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// ListActive returns the rooms available for assignment.
func (r *ClassroomRepository) ListActive(ctx context.Context) ([]models.Classroom, error) {
	const query = `SELECT id, number, capacity, room_type, is_active
		FROM classrooms
		WHERE is_active = true
		ORDER BY number`

	var rooms []models.Classroom
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list active classrooms: %w", err)
	}
	return rooms, nil
}
