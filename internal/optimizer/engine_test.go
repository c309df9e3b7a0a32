package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/models"
)

func smallConfig() Config {
	return Config{
		PopulationSize:      6,
		MaxIterations:       5,
		Patience:            10,
		MinImprovement:      0.01,
		EliteSize:           2,
		TournamentSize:      2,
		CrossoverRate:       0.8,
		MutationRate:        0.1,
		EvalWorkers:         2,
		UseUniformCrossover: true,
		Seed:                42,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := smallConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.PopulationSize = bad.EliteSize + 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MutationRate = 1.5
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TournamentSize = 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MinImprovement = -0.1
	assert.Error(t, bad.Validate())
}

func TestEngineMinimalPopulationSingleIteration(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 4, "g1", 2)}, nil, nil)
	cfg := smallConfig()
	cfg.PopulationSize = cfg.EliteSize + 2
	cfg.MaxIterations = 1

	res, err := NewEngine(p, cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	require.NotNil(t, res.Best)
	assert.True(t, res.Best.Evaluated())
	assert.GreaterOrEqual(t, res.Evaluations, cfg.PopulationSize)
}

func TestEngineResolvesTeacherConflicts(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{
		testLoad("l1", "t1", "Ada", 4, "g1", 2),
		testLoad("l2", "t1", "Ada", 4, "g2", 2),
		testLoad("l3", "t2", "Bob", 4, "g1", 2),
	}, nil, nil)
	cfg := smallConfig()
	cfg.PopulationSize = 20
	cfg.MaxIterations = 30
	cfg.EliteSize = 4

	res, err := NewEngine(p, cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Best.IsValid(), "hard violations: %d", res.Best.Fitness.HardViolations)

	expected := &Chromosome{Lessons: []Lesson{
		testLesson("l1", "t1", "g1", 1, 1), testLesson("l1", "t1", "g1", 1, 2),
		testLesson("l2", "t1", "g2", 1, 3), testLesson("l2", "t1", "g2", 1, 4),
		testLesson("l3", "t2", "g1", 1, 5), testLesson("l3", "t2", "g1", 1, 6),
	}}
	assert.True(t, SameLessonMultiset(expected, res.Best))
}

func TestEnginePatienceStopsBeforeMaxIterations(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 4, "g1", 1)}, nil, nil)
	cfg := smallConfig()
	cfg.MaxIterations = 200
	cfg.Patience = 3

	res, err := NewEngine(p, cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, res.Iterations, cfg.MaxIterations)
}

func TestEngineSeededRunsAreReproducible(t *testing.T) {
	loads := []models.CourseLoad{
		testLoad("l1", "t1", "Ada", 2, "g1", 3),
		testLoad("l2", "t2", "Bob", 4, "g2", 3),
	}
	cfg := smallConfig()

	first, err := NewEngine(newTestProblem(loads, nil, nil), cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := NewEngine(newTestProblem(loads, nil, nil), cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.BestScore, second.BestScore)
	assert.Equal(t, first.Iterations, second.Iterations)
	assert.Equal(t, first.Best.Lessons, second.Best.Lessons)
}

func TestEngineCancelledContextReturnsEarly(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 4, "g1", 2)}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewEngine(p, smallConfig(), nil, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Iterations)
	require.NotNil(t, res.Best)
}

func TestEngineEmitsProgressAndEvaluateActions(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 4, "g1", 2)}, nil, nil)
	cfg := smallConfig()
	cfg.MaxIterations = 3
	cfg.Patience = 100

	e := NewEngine(p, cfg, nil, nil)
	var progress []Progress
	var actions []models.AgentAction
	e.SetProgressFunc(func(pr Progress) { progress = append(progress, pr) })
	e.SetActionFunc(func(a models.AgentAction) { actions = append(actions, a) })

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, progress, res.Iterations)
	for i, pr := range progress {
		assert.Equal(t, i+1, pr.Iteration)
	}
	require.Len(t, actions, res.Iterations)
	for _, a := range actions {
		assert.Equal(t, models.ActionEvaluate, a.ActionType)
		assert.True(t, a.Success)
	}
}

// boostImprover hands back one artificially high-scoring chromosome on its
// first call and leaves later calls untouched.
type boostImprover struct {
	done bool
}

func (b *boostImprover) Improve(_ context.Context, c *Chromosome) (*Chromosome, []models.AgentAction, error) {
	if b.done {
		return c, nil, nil
	}
	b.done = true
	c.Fitness = &Fitness{TotalScore: 60, PreferenceViolations: map[int]int{}}
	return c, nil, nil
}

func TestEngineImproverGainResetsPatience(t *testing.T) {
	loads := []models.CourseLoad{testLoad("l1", "t1", "Ada", 1, "g1", 1)}
	prefs := []models.TeacherPreferences{{TeacherID: "t1", TeacherName: "Ada", Priority: 1, Cells: []models.PreferenceCell{
		{TeacherID: "t1", Day: 4, Slot: 2, IsPreferred: true, Strength: models.StrengthStrong},
	}}}

	cfg := smallConfig()
	cfg.MaxIterations = 50
	cfg.Patience = 1
	cfg.ImproverCadence = 1
	cfg.ImproverTopN = 1

	res, err := NewEngine(newTestProblem(loads, prefs, nil), cfg, &boostImprover{}, nil).Run(context.Background())
	require.NoError(t, err)

	// The seed is already optimal, so the genetic loop alone would exhaust
	// patience on the first iteration. The improver's gain keeps the run
	// alive for one more.
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 60.0, res.BestScore)
}

func TestEngineImprovementAtThresholdCountsAsProgress(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 4, "g1", 1)}, nil, nil)
	cfg := smallConfig()
	cfg.MinImprovement = 0.1

	e := NewEngine(p, cfg, nil, nil)
	assert.True(t, e.improvedEnough(-90, -100))
	assert.False(t, e.improvedEnough(-90.5, -100))
}

func TestEngineImproverFailureNeverRegresses(t *testing.T) {
	loads := []models.CourseLoad{testLoad("l1", "t1", "Ada", 1, "g1", 4)}
	prefs := []models.TeacherPreferences{{TeacherID: "t1", TeacherName: "Ada", Priority: 1, Cells: []models.PreferenceCell{
		{TeacherID: "t1", Day: 1, Slot: 1, IsPreferred: false, Strength: models.StrengthStrong},
		{TeacherID: "t1", Day: 2, Slot: 1, IsPreferred: false, Strength: models.StrengthStrong},
	}}}

	cfg := smallConfig()
	cfg.ImproverCadence = 1
	cfg.ImproverTopN = 2

	baseline, err := NewEngine(newTestProblem(loads, prefs, nil), cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)

	broken := NewPromptImprover(failingChat{}, newTestProblem(loads, prefs, nil), nil)
	withImprover, err := NewEngine(newTestProblem(loads, prefs, nil), cfg, broken, nil).Run(context.Background())
	require.NoError(t, err)

	// A failing improver leaves the evolution untouched.
	assert.Equal(t, baseline.BestScore, withImprover.BestScore)
	assert.Equal(t, baseline.Iterations, withImprover.Iterations)
}
