package optimizer

import (
	"context"

	"github.com/univtimetable/optimizer-api/internal/models"
)

// Improver refines an elite chromosome out of band. Implementations must
// never return a chromosome scoring worse than the input and must preserve
// the lesson multiset; on any failure they return the input unchanged.
// Returned actions describe the attempts made, for analytics.
type Improver interface {
	Improve(ctx context.Context, c *Chromosome) (*Chromosome, []models.AgentAction, error)
}

// NoopImprover leaves chromosomes untouched.
type NoopImprover struct{}

// Improve returns the input unchanged.
func (NoopImprover) Improve(_ context.Context, c *Chromosome) (*Chromosome, []models.AgentAction, error) {
	return c, nil, nil
}
