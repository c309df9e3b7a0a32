package optimizer

import (
	"github.com/univtimetable/optimizer-api/internal/models"
)

// Grid dimensions of the weekly timetable.
const (
	Days  = 6
	Slots = 6
)

// Lesson is one placement of a course-load occurrence on the weekly grid.
// It is a small value record; chromosomes copy lessons by value.
type Lesson struct {
	CourseLoadID   string
	DisciplineName string
	LessonType     models.LessonType
	TeacherID      string
	TeacherName    string
	GroupID        string
	GroupName      string
	Day            int
	Slot           int
	Week           int
	ClassroomID    string
}

// Fitness holds the cached evaluation breakdown of a chromosome.
type Fitness struct {
	TotalScore           float64
	HardViolations       int
	PreferenceViolations map[int]int
	GapsCount            int
	EarlyLessons         int
	LateLessons          int
}

// Chromosome is one candidate timetable. Fitness is nil until evaluated;
// once evaluated a chromosome is treated as immutable and may be shared by
// reference across the population.
type Chromosome struct {
	Lessons []Lesson
	Fitness *Fitness
}

// Clone returns a deep copy with the cached fitness cleared.
func (c *Chromosome) Clone() *Chromosome {
	lessons := make([]Lesson, len(c.Lessons))
	copy(lessons, c.Lessons)
	return &Chromosome{Lessons: lessons}
}

// Evaluated reports whether a fitness breakdown is cached.
func (c *Chromosome) Evaluated() bool {
	return c.Fitness != nil
}

// Score returns the cached total score. Unevaluated chromosomes score zero;
// callers evaluate before ranking.
func (c *Chromosome) Score() float64 {
	if c.Fitness == nil {
		return 0
	}
	return c.Fitness.TotalScore
}

// IsValid reports whether the evaluated chromosome has no hard conflicts.
func (c *Chromosome) IsValid() bool {
	return c.Fitness != nil && c.Fitness.HardViolations == 0
}

// SameLessonMultiset reports whether two chromosomes place the same multiset
// of (course_load_id, week) occurrences. Operators are required to preserve
// it; the engine asserts it in tests.
func SameLessonMultiset(a, b *Chromosome) bool {
	if len(a.Lessons) != len(b.Lessons) {
		return false
	}
	type key struct {
		loadID string
		week   int
	}
	counts := make(map[key]int, len(a.Lessons))
	for _, l := range a.Lessons {
		counts[key{l.CourseLoadID, l.Week}]++
	}
	for _, l := range b.Lessons {
		k := key{l.CourseLoadID, l.Week}
		counts[k]--
		if counts[k] == 0 {
			delete(counts, k)
		}
	}
	return len(counts) == 0
}
