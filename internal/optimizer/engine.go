package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/models"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

// seedNoiseRate diversifies the replicated seed chromosomes.
const seedNoiseRate = 0.3

// Config is the validated parameter record of one evolution run.
type Config struct {
	PopulationSize      int     `json:"population_size"`
	MaxIterations       int     `json:"max_iterations"`
	Patience            int     `json:"patience"`
	MinImprovement      float64 `json:"min_improvement"`
	EliteSize           int     `json:"elite_size"`
	TournamentSize      int     `json:"tournament_size"`
	CrossoverRate       float64 `json:"crossover_rate"`
	MutationRate        float64 `json:"mutation_rate"`
	ImproverCadence     int     `json:"improver_cadence"`
	ImproverTopN        int     `json:"improver_top_n"`
	EvalWorkers         int     `json:"eval_workers"`
	UseUniformCrossover bool    `json:"use_uniform_crossover"`
	Seed                int64   `json:"seed,omitempty"`
}

// Validate rejects parameter combinations the loop cannot run with.
func (c Config) Validate() error {
	if c.PopulationSize < c.EliteSize+2 {
		return apperrors.Clone(apperrors.ErrInvalidArgument,
			fmt.Sprintf("population size %d must be at least elite size %d + 2", c.PopulationSize, c.EliteSize))
	}
	if c.MaxIterations < 1 {
		return apperrors.Clone(apperrors.ErrInvalidArgument, "max iterations must be positive")
	}
	if c.Patience < 1 {
		return apperrors.Clone(apperrors.ErrInvalidArgument, "patience must be positive")
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return apperrors.Clone(apperrors.ErrInvalidArgument, "crossover rate must be within [0, 1]")
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return apperrors.Clone(apperrors.ErrInvalidArgument, "mutation rate must be within [0, 1]")
	}
	if c.TournamentSize < 2 {
		return apperrors.Clone(apperrors.ErrInvalidArgument, "tournament size must be at least 2")
	}
	if c.MinImprovement < 0 {
		return apperrors.Clone(apperrors.ErrInvalidArgument, "min improvement must not be negative")
	}
	return nil
}

// Progress is the per-iteration snapshot reported to the progress callback.
type Progress struct {
	Iteration    int
	CurrentScore float64
	BestScore    float64
	Reasoning    string
}

// ProgressFunc receives iteration snapshots.
type ProgressFunc func(Progress)

// ActionFunc receives action records as they happen, in iteration order.
type ActionFunc func(models.AgentAction)

// Result summarizes a finished run.
type Result struct {
	Best         *Chromosome
	Iterations   int
	InitialScore float64
	BestScore    float64
	Evaluations  int
}

// Engine runs the generational loop over one problem instance.
type Engine struct {
	problem  *Problem
	cfg      Config
	eval     *Evaluator
	improver Improver
	rng      *rand.Rand
	logger   *zap.Logger

	onProgress ProgressFunc
	onAction   ActionFunc
}

// NewEngine wires an engine for one job. A nil improver disables the
// improvement cadence; a nil logger is replaced with a no-op.
func NewEngine(problem *Problem, cfg Config, improver Improver, logger *zap.Logger) *Engine {
	if improver == nil {
		improver = NoopImprover{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		problem:  problem,
		cfg:      cfg,
		eval:     NewEvaluator(problem),
		improver: improver,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger,
	}
}

// SetProgressFunc registers the per-iteration progress callback.
func (e *Engine) SetProgressFunc(f ProgressFunc) { e.onProgress = f }

// SetActionFunc registers the action record callback.
func (e *Engine) SetActionFunc(f ActionFunc) { e.onAction = f }

// Run executes the loop until max iterations, exhausted patience, or context
// cancellation. A cancelled run returns the context error along with the best
// result found so far.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	pop := e.seedPopulation()
	res := &Result{}

	res.Evaluations += e.evaluatePopulation(pop)
	SortByFitness(pop)

	best := pop[0]
	res.InitialScore = best.Score()
	stale := 0

	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return e.finish(res, best, iter-1), err
		}

		pop = e.breed(pop)
		res.Evaluations += e.evaluatePopulation(pop)
		SortByFitness(pop)

		current := pop[0]
		if Better(current, best) {
			if e.improvedEnough(current.Score(), best.Score()) {
				stale = 0
			} else {
				stale++
			}
			best = current
		} else {
			stale++
		}

		e.recordIteration(iter, current, best)

		if e.cfg.ImproverCadence > 0 && iter%e.cfg.ImproverCadence == 0 {
			if err := ctx.Err(); err != nil {
				return e.finish(res, best, iter), err
			}
			improved := e.improveElites(ctx, pop, iter)
			res.Evaluations += improved
			SortByFitness(pop)
			if Better(pop[0], best) {
				if e.improvedEnough(pop[0].Score(), best.Score()) {
					stale = 0
				}
				best = pop[0]
			}
		}

		if stale >= e.cfg.Patience {
			e.logger.Info("early stopping",
				zap.Int("iteration", iter),
				zap.Int("stale_generations", stale),
				zap.Float64("best_score", best.Score()))
			return e.finish(res, best, iter), nil
		}
	}

	return e.finish(res, best, e.cfg.MaxIterations), nil
}

func (e *Engine) finish(res *Result, best *Chromosome, iterations int) *Result {
	res.Best = best
	res.BestScore = best.Score()
	res.Iterations = iterations
	return res
}

// improvementThreshold is relative to the current best score magnitude.
func (e *Engine) improvementThreshold(bestScore float64) float64 {
	return math.Abs(bestScore) * e.cfg.MinImprovement
}

// improvedEnough reports whether a score gain of at least the relative
// threshold occurred, resetting the patience counter.
func (e *Engine) improvedEnough(newScore, oldScore float64) bool {
	return newScore-oldScore >= e.improvementThreshold(oldScore)
}

func (e *Engine) seedPopulation() []*Chromosome {
	seed := BuildSeed(e.problem, e.rng)
	pop := make([]*Chromosome, 0, e.cfg.PopulationSize)
	pop = append(pop, seed)
	for len(pop) < e.cfg.PopulationSize {
		pop = append(pop, RandomMutation(seed, seedNoiseRate, e.problem.Classrooms, e.rng))
	}
	return pop
}

// breed builds the next generation: elites carried verbatim, the remainder
// bred by tournament selection, crossover, and one of the two mutations.
func (e *Engine) breed(pop []*Chromosome) []*Chromosome {
	next := make([]*Chromosome, 0, e.cfg.PopulationSize+1)
	next = append(next, Elites(pop, e.cfg.EliteSize)...)

	for len(next) < e.cfg.PopulationSize {
		p1 := TournamentSelect(pop, e.cfg.TournamentSize, e.rng)
		p2 := TournamentSelect(pop, e.cfg.TournamentSize, e.rng)

		var c1, c2 *Chromosome
		if e.rng.Float64() < e.cfg.CrossoverRate {
			if e.cfg.UseUniformCrossover {
				c1, c2 = UniformCrossover(p1, p2, 0.5, e.rng)
			} else {
				c1, c2 = SinglePointCrossover(p1, p2, e.rng)
			}
		} else {
			c1, c2 = p1.Clone(), p2.Clone()
		}

		next = append(next, e.mutate(c1), e.mutate(c2))
	}

	return next[:e.cfg.PopulationSize]
}

func (e *Engine) mutate(c *Chromosome) *Chromosome {
	if e.rng.Intn(2) == 0 {
		return RandomMutation(c, e.cfg.MutationRate, e.problem.Classrooms, e.rng)
	}
	return SmartMutation(c, e.cfg.MutationRate, e.problem, e.problem.Classrooms, e.rng)
}

// evaluatePopulation scores every chromosome without a cached fitness using
// a bounded worker pool. Each pending chromosome is owned by exactly one
// worker, so no locking is needed on the chromosomes themselves.
func (e *Engine) evaluatePopulation(pop []*Chromosome) int {
	pending := make([]int, 0, len(pop))
	for i, c := range pop {
		if !c.Evaluated() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	workers := e.cfg.EvalWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				e.safeEvaluate(pop[i])
			}
		}()
	}
	for _, i := range pending {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return len(pending)
}

// safeEvaluate guards against evaluator bugs: a panicking evaluation scores
// the chromosome at negative infinity and the loop continues.
func (e *Engine) safeEvaluate(c *Chromosome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("fitness evaluation panicked", zap.Any("panic", r))
			c.Fitness = &Fitness{
				TotalScore:           math.Inf(-1),
				PreferenceViolations: map[int]int{},
			}
		}
	}()
	e.eval.Evaluate(c)
}

// improveElites runs the improver over copies of the top-N chromosomes and
// merges accepted results back over the bottom of the population. Improver
// calls are strictly sequential.
func (e *Engine) improveElites(ctx context.Context, pop []*Chromosome, iteration int) int {
	topN := e.cfg.ImproverTopN
	if topN <= 0 || topN > len(pop) {
		topN = min(3, len(pop))
	}

	evaluations := 0
	for i := 0; i < topN; i++ {
		if ctx.Err() != nil {
			return evaluations
		}

		elite := pop[i]
		improved, actions, err := e.improver.Improve(ctx, elite.Clone())
		for _, a := range actions {
			a.Iteration = iteration
			e.emitAction(a)
		}
		if err != nil {
			e.logger.Warn("improver failed, keeping elite",
				zap.Int("iteration", iteration),
				zap.Error(err))
			continue
		}
		if improved == nil {
			continue
		}
		if !improved.Evaluated() {
			e.safeEvaluate(improved)
			evaluations++
		}
		if Better(improved, elite) {
			pop[len(pop)-1-i] = improved
		}
	}

	return evaluations
}

func (e *Engine) recordIteration(iteration int, current, best *Chromosome) {
	currentScore := current.Score()
	bestScore := best.Score()

	reasoning := fmt.Sprintf("generation %d: score %.1f, hard violations %d, gaps %d",
		iteration, currentScore, current.Fitness.HardViolations, current.Fitness.GapsCount)

	e.logger.Debug("generation evaluated",
		zap.Int("iteration", iteration),
		zap.Float64("current_score", currentScore),
		zap.Float64("best_score", bestScore),
		zap.Int("hard_violations", current.Fitness.HardViolations))

	e.emitAction(models.AgentAction{
		Iteration:   iteration,
		ActionType:  models.ActionEvaluate,
		Success:     true,
		ScoreBefore: &bestScore,
		ScoreAfter:  &currentScore,
		Reasoning:   &reasoning,
	})

	if e.onProgress != nil {
		e.onProgress(Progress{
			Iteration:    iteration,
			CurrentScore: currentScore,
			BestScore:    bestScore,
			Reasoning:    reasoning,
		})
	}
}

func (e *Engine) emitAction(a models.AgentAction) {
	if e.onAction != nil {
		e.onAction(a)
	}
}
