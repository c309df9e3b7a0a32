package dto

// StartOptimizationRequest is the job submission payload.
type StartOptimizationRequest struct {
	Semester     int                 `json:"semester" binding:"required,min=1,max=12"`
	AcademicYear string              `json:"academic_year" binding:"required"`
	Config       *OptimizationConfig `json:"config"`
	CreatedBy    string              `json:"created_by"`
}

// OptimizationConfig overrides the configured loop defaults per job. Every
// field is optional; omitted fields keep the server defaults.
type OptimizationConfig struct {
	PopulationSize  *int     `json:"population_size" binding:"omitempty,min=4"`
	MaxIterations   *int     `json:"max_iterations" binding:"omitempty,min=1"`
	Patience        *int     `json:"patience" binding:"omitempty,min=1"`
	MinImprovement  *float64 `json:"min_improvement" binding:"omitempty,gte=0"`
	EliteSize       *int     `json:"elite_size" binding:"omitempty,min=1"`
	TournamentSize  *int     `json:"tournament_size" binding:"omitempty,min=2"`
	CrossoverRate   *float64 `json:"crossover_rate" binding:"omitempty,gte=0,lte=1"`
	MutationRate    *float64 `json:"mutation_rate" binding:"omitempty,gte=0,lte=1"`
	Improver        string   `json:"improver" binding:"omitempty,oneof=prompt agent none"`
	ImproverCadence *int     `json:"improver_cadence" binding:"omitempty,min=1"`
	ImproverTopN    *int     `json:"improver_top_n" binding:"omitempty,min=1"`
	Seed            *int64   `json:"seed"`
}

// StartOptimizationResponse returns the id of the accepted job.
type StartOptimizationResponse struct {
	JobID string `json:"job_id"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	OK bool `json:"ok"`
}
