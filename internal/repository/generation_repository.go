package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/univtimetable/optimizer-api/internal/models"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

// GenerationRepository persists optimization job records and their actions.
type GenerationRepository struct {
	db *sqlx.DB
}

// NewGenerationRepository constructs the repository.
func NewGenerationRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Create inserts a new running generation record.
func (r *GenerationRepository) Create(ctx context.Context, gen *models.Generation) error {
	if gen.StartedAt.IsZero() {
		gen.StartedAt = time.Now().UTC()
	}
	if gen.Status == "" {
		gen.Status = models.GenerationRunning
	}
	if gen.Metrics == nil {
		gen.Metrics = models.GenerationMetrics{}
	}

	const query = `INSERT INTO generation_history
			(job_id, stage, stage_name, status, max_iterations, initial_score, current_iteration,
			 current_score, best_score, total_actions, metrics, started_at, created_by)
		VALUES (:job_id, :stage, :stage_name, :status, :max_iterations, :initial_score, :current_iteration,
			 :current_score, :best_score, :total_actions, :metrics, :started_at, :created_by)
		RETURNING id`

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, gen)
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&gen.ID); err != nil {
			return fmt.Errorf("scan generation id: %w", err)
		}
	}
	return rows.Err()
}

// UpdateProgress advances the iteration counters. best_score only moves up.
func (r *GenerationRepository) UpdateProgress(ctx context.Context, jobID string, iteration int, currentScore, bestScore float64, reasoning string) error {
	const query = `UPDATE generation_history
		SET current_iteration = $2,
		    current_score = $3,
		    best_score = CASE WHEN best_score IS NULL OR $4 > best_score THEN $4 ELSE best_score END,
		    last_reasoning = $5
		WHERE job_id = $1`

	result, err := r.db.ExecContext(ctx, query, jobID, iteration, currentScore, bestScore, reasoning)
	if err != nil {
		return fmt.Errorf("update generation progress: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.ErrJobNotFound
	}
	return nil
}

// Finalize closes the job record with a terminal status. initialScore is
// written once the run produced one; a nil value leaves the column untouched.
func (r *GenerationRepository) Finalize(ctx context.Context, jobID string, status models.GenerationStatus, errorMessage *string, initialScore *float64, metrics models.GenerationMetrics) error {
	if metrics == nil {
		metrics = models.GenerationMetrics{}
	}

	const query = `UPDATE generation_history
		SET status = $2,
		    completed_at = NOW(),
		    duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at)),
		    error_message = $3,
		    initial_score = COALESCE($4, initial_score),
		    metrics = $5
		WHERE job_id = $1`

	result, err := r.db.ExecContext(ctx, query, jobID, status, errorMessage, initialScore, metrics)
	if err != nil {
		return fmt.Errorf("finalize generation: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.ErrJobNotFound
	}
	return nil
}

// GetByJobID returns one job record.
func (r *GenerationRepository) GetByJobID(ctx context.Context, jobID string) (*models.Generation, error) {
	const query = `SELECT id, job_id, stage, stage_name, status, max_iterations, initial_score,
			current_iteration, current_score, best_score, last_reasoning, total_actions, metrics,
			started_at, completed_at, duration_seconds, error_message, created_by
		FROM generation_history
		WHERE job_id = $1`

	var gen models.Generation
	if err := r.db.GetContext(ctx, &gen, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrJobNotFound
		}
		return nil, fmt.Errorf("get generation: %w", err)
	}
	return &gen, nil
}

// List returns job records newest first.
func (r *GenerationRepository) List(ctx context.Context, filter models.GenerationFilter) ([]models.Generation, error) {
	query := `SELECT id, job_id, stage, stage_name, status, max_iterations, initial_score,
			current_iteration, current_score, best_score, last_reasoning, total_actions, metrics,
			started_at, completed_at, duration_seconds, error_message, created_by
		FROM generation_history
		WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Stage != nil {
		args = append(args, *filter.Stage)
		query += fmt.Sprintf(" AND stage = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var gens []models.Generation
	if err := r.db.SelectContext(ctx, &gens, query, args...); err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return gens, nil
}

// InsertAction appends one action record and bumps the job's action counter.
func (r *GenerationRepository) InsertAction(ctx context.Context, action *models.AgentAction) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	if action.ActionParams == nil {
		action.ActionParams = models.ActionParams{}
	}

	const query = `INSERT INTO agent_actions
			(generation_id, iteration, action_type, action_params, success,
			 score_before, score_after, score_delta, reasoning, execution_time_ms, created_at)
		VALUES (:generation_id, :iteration, :action_type, :action_params, :success,
			 :score_before, :score_after, :score_delta, :reasoning, :execution_time_ms, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, action); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}

	const bump = `UPDATE generation_history SET total_actions = total_actions + 1 WHERE job_id = $1`
	if _, err := r.db.ExecContext(ctx, bump, action.GenerationID); err != nil {
		return fmt.Errorf("bump action counter: %w", err)
	}
	return nil
}

// ListActions returns the recorded actions of one job in iteration order.
func (r *GenerationRepository) ListActions(ctx context.Context, jobID string, limit, offset int) ([]models.AgentAction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const query = `SELECT id, generation_id, iteration, action_type, action_params, success,
			score_before, score_after, score_delta, reasoning, execution_time_ms, created_at
		FROM agent_actions
		WHERE generation_id = $1
		ORDER BY iteration ASC, id ASC
		LIMIT $2 OFFSET $3`

	var actions []models.AgentAction
	if err := r.db.SelectContext(ctx, &actions, query, jobID, limit, offset); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

// ActionTypeStats aggregates the recorded actions of one job per type.
func (r *GenerationRepository) ActionTypeStats(ctx context.Context, jobID string) ([]models.ActionTypeStat, error) {
	const query = `SELECT action_type,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE success) AS succeeded,
			AVG(score_delta) AS avg_delta
		FROM agent_actions
		WHERE generation_id = $1
		GROUP BY action_type
		ORDER BY action_type`

	var stats []models.ActionTypeStat
	if err := r.db.SelectContext(ctx, &stats, query, jobID); err != nil {
		return nil, fmt.Errorf("action type stats: %w", err)
	}
	return stats, nil
}
