package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Action types recorded during a run.
const (
	ActionEvaluate     = "evaluate"
	ActionMoveLesson   = "move_lesson"
	ActionSwapLessons  = "swap_lessons"
	ActionReassignRoom = "reassign_room"
	ActionStop         = "stop"
	ActionImprove      = "improve"
)

// AgentAction is one recorded step of a run: an evaluation checkpoint or a
// tool call attempted by an improver. Used for analytics only.
type AgentAction struct {
	ID              int64        `db:"id" json:"-"`
	GenerationID    string       `db:"generation_id" json:"generation_id"`
	Iteration       int          `db:"iteration" json:"iteration"`
	ActionType      string       `db:"action_type" json:"action_type"`
	ActionParams    ActionParams `db:"action_params" json:"action_params,omitempty"`
	Success         bool         `db:"success" json:"success"`
	ScoreBefore     *float64     `db:"score_before" json:"score_before,omitempty"`
	ScoreAfter      *float64     `db:"score_after" json:"score_after,omitempty"`
	ScoreDelta      *float64     `db:"score_delta" json:"score_delta,omitempty"`
	Reasoning       *string      `db:"reasoning" json:"reasoning,omitempty"`
	ExecutionTimeMs *int64       `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// ActionParams stores tool parameters persisted as JSONB.
type ActionParams map[string]interface{}

// Value marshals params to JSON for persistence.
func (p ActionParams) Value() (driver.Value, error) {
	if p == nil {
		p = ActionParams{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal action params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params map.
func (p *ActionParams) Scan(value interface{}) error {
	if value == nil {
		*p = ActionParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ActionParams", value)
	}
	if len(data) == 0 {
		*p = ActionParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal action params: %w", err)
	}
	return nil
}

// ActionTypeStat aggregates recorded actions per type for a job.
type ActionTypeStat struct {
	ActionType string   `db:"action_type" json:"action_type"`
	Total      int      `db:"total" json:"total"`
	Succeeded  int      `db:"succeeded" json:"succeeded"`
	AvgDelta   *float64 `db:"avg_delta" json:"avg_delta,omitempty"`
}
