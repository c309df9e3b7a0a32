package optimizer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univtimetable/optimizer-api/internal/models"
)

func TestBuildSeedPlacesEveryLessonOnce(t *testing.T) {
	p := newTestProblem([]models.CourseLoad{
		testLoad("l1", "t1", "Ada", 3, "g1", 3),
		testLoad("l2", "t2", "Bob", 4, "g1", 2),
	}, nil, nil)
	rng := rand.New(rand.NewSource(1))

	c := BuildSeed(p, rng)
	require.Len(t, c.Lessons, 5)

	perLoad := map[string]int{}
	for _, l := range c.Lessons {
		perLoad[l.CourseLoadID]++
		assert.Equal(t, 1, l.Week)
	}
	assert.Equal(t, 3, perLoad["l1"])
	assert.Equal(t, 2, perLoad["l2"])
}

func TestBuildSeedAvoidsConflictsWhileCellsRemain(t *testing.T) {
	// Six weekly lessons of one load must land on six distinct cells.
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 4, "g1", 6)}, nil, nil)
	rng := rand.New(rand.NewSource(4))

	c := BuildSeed(p, rng)
	require.Len(t, c.Lessons, 6)

	seen := map[[2]int]bool{}
	for _, l := range c.Lessons {
		cell := [2]int{l.Day, l.Slot}
		assert.False(t, seen[cell], "cell %v placed twice", cell)
		seen[cell] = true
	}

	f := NewEvaluator(p).Evaluate(c)
	assert.Equal(t, 0, f.HardViolations)
}

func TestBuildSeedUsesPreferredCellsForHighPriorityTeachers(t *testing.T) {
	prefs := []models.TeacherPreferences{{
		TeacherID: "t1", TeacherName: "Ada", Priority: 1,
		Cells: []models.PreferenceCell{
			{TeacherID: "t1", Day: 2, Slot: 3, IsPreferred: true, Strength: models.StrengthStrong},
			{TeacherID: "t1", Day: 3, Slot: 4, IsPreferred: true, Strength: models.StrengthMedium},
		},
	}}
	p := newTestProblem([]models.CourseLoad{testLoad("l1", "t1", "Ada", 1, "g1", 2)}, prefs, nil)
	rng := rand.New(rand.NewSource(8))

	c := BuildSeed(p, rng)
	require.Len(t, c.Lessons, 2)

	// Strongest preferred cell first, then the next one.
	assert.Equal(t, 2, c.Lessons[0].Day)
	assert.Equal(t, 3, c.Lessons[0].Slot)
	assert.Equal(t, 3, c.Lessons[1].Day)
	assert.Equal(t, 4, c.Lessons[1].Slot)
}

func TestBuildSeedEmitsConflictsWhenGridExhausted(t *testing.T) {
	// 37 weekly lessons for one teacher cannot fit a 36-cell grid.
	loads := make([]models.CourseLoad, 0, 7)
	for i := 0; i < 7; i++ {
		loads = append(loads, testLoad("l"+string(rune('a'+i)), "t1", "Ada", 4, "g"+string(rune('a'+i)), 6))
	}
	loads = append(loads, testLoad("lx", "t1", "Ada", 4, "gx", 1))

	p := newTestProblem(loads, nil, nil)
	rng := rand.New(rand.NewSource(11))

	c := BuildSeed(p, rng)
	require.Len(t, c.Lessons, 43)

	f := NewEvaluator(p).Evaluate(c)
	assert.Greater(t, f.HardViolations, 0)
}
