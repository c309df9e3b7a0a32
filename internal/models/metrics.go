package models

import "time"

// SystemMetrics is a lightweight aggregate snapshot for API consumption.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	JobsStarted              uint64    `json:"jobs_started"`
	JobsCompleted            uint64    `json:"jobs_completed"`
	JobsFailed               uint64    `json:"jobs_failed"`
	EvaluationsTotal         uint64    `json:"evaluations_total"`
	LLMCallsTotal            uint64    `json:"llm_calls_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
