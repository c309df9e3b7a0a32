package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GenerationStatus captures optimization job lifecycle states.
type GenerationStatus string

const (
	GenerationRunning   GenerationStatus = "running"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
	GenerationStopped   GenerationStatus = "stopped"
)

// Generation is the persisted record of one optimization job.
type Generation struct {
	ID               int64             `db:"id" json:"-"`
	JobID            string            `db:"job_id" json:"job_id"`
	Stage            int               `db:"stage" json:"stage"`
	StageName        string            `db:"stage_name" json:"stage_name"`
	Status           GenerationStatus  `db:"status" json:"status"`
	MaxIterations    int               `db:"max_iterations" json:"max_iterations"`
	InitialScore     *float64          `db:"initial_score" json:"initial_score,omitempty"`
	CurrentIteration int               `db:"current_iteration" json:"current_iteration"`
	CurrentScore     *float64          `db:"current_score" json:"current_score,omitempty"`
	BestScore        *float64          `db:"best_score" json:"best_score,omitempty"`
	LastReasoning    *string           `db:"last_reasoning" json:"last_reasoning,omitempty"`
	TotalActions     int               `db:"total_actions" json:"total_actions"`
	Metrics          GenerationMetrics `db:"metrics" json:"metrics,omitempty"`
	StartedAt        time.Time         `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	DurationSeconds  *float64          `db:"duration_seconds" json:"duration_seconds,omitempty"`
	ErrorMessage     *string           `db:"error_message" json:"error_message,omitempty"`
	CreatedBy        *string           `db:"created_by" json:"created_by,omitempty"`
}

// GenerationFilter narrows the job history listing.
type GenerationFilter struct {
	Status string
	Stage  *int
	Limit  int
	Offset int
}

// GenerationMetrics stores free-form run metrics persisted as JSONB.
type GenerationMetrics map[string]interface{}

// Value marshals metrics to JSON for persistence.
func (m GenerationMetrics) Value() (driver.Value, error) {
	if m == nil {
		m = GenerationMetrics{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal generation metrics: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the metrics map.
func (m *GenerationMetrics) Scan(value interface{}) error {
	if value == nil {
		*m = GenerationMetrics{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for GenerationMetrics", value)
	}
	if len(data) == 0 {
		*m = GenerationMetrics{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal generation metrics: %w", err)
	}
	return nil
}
