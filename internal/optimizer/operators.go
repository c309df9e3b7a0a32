package optimizer

import (
	"math/rand"
	"sort"

	"github.com/univtimetable/optimizer-api/internal/models"
)

// TournamentSelect picks k individuals uniformly at random and returns the
// fittest. k is clipped to the population size.
func TournamentSelect(pop []*Chromosome, k int, rng *rand.Rand) *Chromosome {
	if len(pop) == 0 {
		return nil
	}
	if k > len(pop) {
		k = len(pop)
	}
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < k; i++ {
		candidate := pop[rng.Intn(len(pop))]
		if Better(candidate, best) {
			best = candidate
		}
	}
	return best
}

// SortByFitness orders the population best-first in place.
func SortByFitness(pop []*Chromosome) {
	sort.SliceStable(pop, func(i, j int) bool {
		return Better(pop[i], pop[j])
	})
}

// Elites returns the top-e individuals of the population by fitness. The
// returned slice shares chromosome references with the input.
func Elites(pop []*Chromosome, e int) []*Chromosome {
	if e > len(pop) {
		e = len(pop)
	}
	ranked := make([]*Chromosome, len(pop))
	copy(ranked, pop)
	SortByFitness(ranked)
	return ranked[:e]
}

// SinglePointCrossover cuts both parents at one point and exchanges tails.
// The cut can break the lesson multiset when parents were reordered by prior
// operators; selection prunes such offspring.
func SinglePointCrossover(p1, p2 *Chromosome, rng *rand.Rand) (*Chromosome, *Chromosome) {
	minLen := len(p1.Lessons)
	if len(p2.Lessons) < minLen {
		minLen = len(p2.Lessons)
	}
	if minLen < 2 {
		return p1.Clone(), p2.Clone()
	}
	cut := 1 + rng.Intn(minLen-1)

	c1 := &Chromosome{Lessons: make([]Lesson, 0, len(p1.Lessons))}
	c1.Lessons = append(c1.Lessons, p1.Lessons[:cut]...)
	c1.Lessons = append(c1.Lessons, p2.Lessons[cut:]...)

	c2 := &Chromosome{Lessons: make([]Lesson, 0, len(p2.Lessons))}
	c2.Lessons = append(c2.Lessons, p2.Lessons[:cut]...)
	c2.Lessons = append(c2.Lessons, p1.Lessons[cut:]...)

	return c1, c2
}

// UniformCrossover exchanges whole (course_load_id, week) buckets between the
// parents. With probability r a bucket comes from the other parent, so the
// lesson multiset is preserved whenever both parents carry full buckets.
func UniformCrossover(p1, p2 *Chromosome, r float64, rng *rand.Rand) (*Chromosome, *Chromosome) {
	type bucketKey struct {
		loadID string
		week   int
	}

	index := func(c *Chromosome) (map[bucketKey][]Lesson, []bucketKey) {
		buckets := make(map[bucketKey][]Lesson)
		var order []bucketKey
		for _, l := range c.Lessons {
			k := bucketKey{l.CourseLoadID, l.Week}
			if _, seen := buckets[k]; !seen {
				order = append(order, k)
			}
			buckets[k] = append(buckets[k], l)
		}
		return buckets, order
	}

	b1, order := index(p1)
	b2, order2 := index(p2)
	for _, k := range order2 {
		if _, seen := b1[k]; !seen {
			order = append(order, k)
		}
	}

	c1 := &Chromosome{Lessons: make([]Lesson, 0, len(p1.Lessons))}
	c2 := &Chromosome{Lessons: make([]Lesson, 0, len(p2.Lessons))}

	for _, k := range order {
		swap := rng.Float64() < r
		first, second := b1[k], b2[k]
		if first == nil {
			first = second
		}
		if second == nil {
			second = first
		}
		if swap {
			c1.Lessons = append(c1.Lessons, second...)
			c2.Lessons = append(c2.Lessons, first...)
		} else {
			c1.Lessons = append(c1.Lessons, first...)
			c2.Lessons = append(c2.Lessons, second...)
		}
	}

	return c1, c2
}

// RandomMutation re-rolls day and slot of each lesson with probability rate.
// A mutated lesson additionally gets a random active room 30% of the time.
func RandomMutation(c *Chromosome, rate float64, rooms []models.Classroom, rng *rand.Rand) *Chromosome {
	out := c.Clone()
	for i := range out.Lessons {
		if rng.Float64() >= rate {
			continue
		}
		out.Lessons[i].Day = rng.Intn(Days) + 1
		out.Lessons[i].Slot = rng.Intn(Slots) + 1
		if len(rooms) > 0 && rng.Float64() < 0.3 {
			out.Lessons[i].ClassroomID = rooms[rng.Intn(len(rooms))].ID
		}
	}
	return out
}

// SmartMutation moves mutated lessons into one of the teacher's preferred
// cells when any exist, falling back to a random cell otherwise.
func SmartMutation(c *Chromosome, rate float64, p *Problem, rooms []models.Classroom, rng *rand.Rand) *Chromosome {
	out := c.Clone()
	for i := range out.Lessons {
		if rng.Float64() >= rate {
			continue
		}
		preferred := p.PreferredCells(out.Lessons[i].TeacherID)
		if len(preferred) > 0 {
			cell := preferred[rng.Intn(len(preferred))]
			out.Lessons[i].Day = cell.Day
			out.Lessons[i].Slot = cell.Slot
			continue
		}
		out.Lessons[i].Day = rng.Intn(Days) + 1
		out.Lessons[i].Slot = rng.Intn(Slots) + 1
		if len(rooms) > 0 && rng.Float64() < 0.3 {
			out.Lessons[i].ClassroomID = rooms[rng.Intn(len(rooms))].ID
		}
	}
	return out
}
