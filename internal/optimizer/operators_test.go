package optimizer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/models"
)

func parentPair() (*Chromosome, *Chromosome) {
	p1 := &Chromosome{Lessons: []Lesson{
		testLesson("l1", "t1", "g1", 1, 1),
		testLesson("l1", "t1", "g1", 2, 2),
		testLesson("l2", "t2", "g2", 3, 3),
		testLesson("l3", "t3", "g3", 4, 4),
	}}
	p2 := &Chromosome{Lessons: []Lesson{
		testLesson("l1", "t1", "g1", 5, 5),
		testLesson("l1", "t1", "g1", 6, 6),
		testLesson("l2", "t2", "g2", 1, 2),
		testLesson("l3", "t3", "g3", 2, 1),
	}}
	return p1, p2
}

func TestUniformCrossoverRateZeroCopiesParents(t *testing.T) {
	p1, p2 := parentPair()
	rng := rand.New(rand.NewSource(1))

	c1, c2 := UniformCrossover(p1, p2, 0, rng)
	assert.Equal(t, p1.Lessons, c1.Lessons)
	assert.Equal(t, p2.Lessons, c2.Lessons)
	assert.False(t, c1.Evaluated())

	// The children are copies, not views.
	c1.Lessons[0].Day = 6
	assert.Equal(t, 1, p1.Lessons[0].Day)
}

func TestUniformCrossoverRateOneSwapsParents(t *testing.T) {
	p1, p2 := parentPair()
	rng := rand.New(rand.NewSource(1))

	c1, c2 := UniformCrossover(p1, p2, 1, rng)
	assert.Equal(t, p2.Lessons, c1.Lessons)
	assert.Equal(t, p1.Lessons, c2.Lessons)
}

func TestUniformCrossoverPreservesLessonMultiset(t *testing.T) {
	p1, p2 := parentPair()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		c1, c2 := UniformCrossover(p1, p2, 0.5, rng)
		require.True(t, SameLessonMultiset(p1, c1))
		require.True(t, SameLessonMultiset(p1, c2))
	}
}

func TestSinglePointCrossoverKeepsLengths(t *testing.T) {
	p1, p2 := parentPair()
	rng := rand.New(rand.NewSource(3))

	c1, c2 := SinglePointCrossover(p1, p2, rng)
	assert.Len(t, c1.Lessons, len(p1.Lessons))
	assert.Len(t, c2.Lessons, len(p2.Lessons))

	c1.Lessons[0].Slot = 6
	assert.Equal(t, 1, p1.Lessons[0].Slot)
}

func TestRandomMutationRateZeroIsDeepCopy(t *testing.T) {
	p1, _ := parentPair()
	rng := rand.New(rand.NewSource(5))

	out := RandomMutation(p1, 0, nil, rng)
	require.Equal(t, p1.Lessons, out.Lessons)
	assert.False(t, out.Evaluated())

	out.Lessons[0].Day = 6
	assert.Equal(t, 1, p1.Lessons[0].Day)
}

func TestRandomMutationStaysOnGrid(t *testing.T) {
	p1, _ := parentPair()
	rooms := []models.Classroom{{ID: "r1", Number: "101", Capacity: 30, IsActive: true}}
	rng := rand.New(rand.NewSource(5))

	out := RandomMutation(p1, 1, rooms, rng)
	require.True(t, SameLessonMultiset(p1, out))
	for _, l := range out.Lessons {
		assert.GreaterOrEqual(t, l.Day, 1)
		assert.LessOrEqual(t, l.Day, Days)
		assert.GreaterOrEqual(t, l.Slot, 1)
		assert.LessOrEqual(t, l.Slot, Slots)
	}
}

func TestSmartMutationMovesTowardPreferredCells(t *testing.T) {
	p := newTestProblem(
		[]models.CourseLoad{testLoad("l1", "t1", "Ada", 1, "g1", 2)},
		[]models.TeacherPreferences{{TeacherID: "t1", TeacherName: "Ada", Priority: 1, Cells: []models.PreferenceCell{
			{TeacherID: "t1", Day: 4, Slot: 2, IsPreferred: true, Strength: models.StrengthStrong},
		}}},
		nil,
	)
	c := &Chromosome{Lessons: []Lesson{
		testLesson("l1", "t1", "g1", 1, 1),
		testLesson("l1", "t1", "g1", 2, 6),
	}}
	rng := rand.New(rand.NewSource(9))

	out := SmartMutation(c, 1, p, nil, rng)
	for _, l := range out.Lessons {
		assert.Equal(t, 4, l.Day)
		assert.Equal(t, 2, l.Slot)
	}
}

func TestTournamentSelectPicksFittestWithFullTournament(t *testing.T) {
	pop := []*Chromosome{
		{Fitness: &Fitness{TotalScore: -300}},
		{Fitness: &Fitness{TotalScore: 100}},
		{Fitness: &Fitness{TotalScore: -50}},
	}
	rng := rand.New(rand.NewSource(2))

	// k covers the whole population so the best must win.
	got := TournamentSelect(pop, 10, rng)
	assert.Same(t, pop[1], got)
}

func TestElitesReturnsTopSharedReferences(t *testing.T) {
	pop := []*Chromosome{
		{Fitness: &Fitness{TotalScore: -300}},
		{Fitness: &Fitness{TotalScore: 100}},
		{Fitness: &Fitness{TotalScore: -50}},
	}

	elites := Elites(pop, 2)
	require.Len(t, elites, 2)
	assert.Same(t, pop[1], elites[0])
	assert.Same(t, pop[2], elites[1])

	// The input order is left untouched.
	assert.Equal(t, -300.0, pop[0].Fitness.TotalScore)
}
