package optimizer

// Scoring weights. Higher total is better; hard conflicts dominate.
const (
	hardConflictPenalty = -1000.0
	preferredBonus      = 50.0
	gapPenalty          = -10.0
	earlySlotPenalty    = -2.0
	lateSlotPenalty     = -4.0
)

// dislikePenaltyByPriority maps teacher priority to the base penalty for a
// lesson placed in a disliked cell.
var dislikePenaltyByPriority = map[int]float64{
	1: -500,
	2: -200,
	3: -100,
	4: -30,
}

// Evaluator scores chromosomes against a problem instance. Evaluation is a
// deterministic pure function; it fills the chromosome's cached fitness.
type Evaluator struct {
	problem *Problem
}

// NewEvaluator constructs an evaluator bound to a problem instance.
func NewEvaluator(p *Problem) *Evaluator {
	return &Evaluator{problem: p}
}

// Evaluate computes and caches the fitness breakdown of a chromosome.
func (e *Evaluator) Evaluate(c *Chromosome) *Fitness {
	f := &Fitness{PreferenceViolations: make(map[int]int)}

	f.TotalScore += e.scoreHardConflicts(c, f)
	f.TotalScore += e.scorePreferences(c, f)
	f.TotalScore += e.scoreErgonomics(c, f)

	c.Fitness = f
	return f
}

func (e *Evaluator) scoreHardConflicts(c *Chromosome, f *Fitness) float64 {
	teacherCells := make(map[occKey]int)
	groupCells := make(map[occKey]int)
	roomCells := make(map[occKey]int)

	for _, l := range c.Lessons {
		teacherCells[occKey{l.TeacherID, l.Day, l.Slot}]++
		groupCells[occKey{l.GroupID, l.Day, l.Slot}]++
		if l.ClassroomID != "" {
			roomCells[occKey{l.ClassroomID, l.Day, l.Slot}]++
		}
	}

	extras := 0
	for _, counts := range []map[occKey]int{teacherCells, groupCells, roomCells} {
		for _, n := range counts {
			if n > 1 {
				extras += n - 1
			}
		}
	}

	f.HardViolations = extras
	return float64(extras) * hardConflictPenalty
}

func (e *Evaluator) scorePreferences(c *Chromosome, f *Fitness) float64 {
	score := 0.0
	for _, l := range c.Lessons {
		cell, ok := e.problem.Cell(l.TeacherID, l.Day, l.Slot)
		if !ok {
			continue
		}
		if cell.IsPreferred {
			score += preferredBonus
			continue
		}
		priority := e.problem.TeacherPriority(l.TeacherID)
		score += dislikePenaltyByPriority[priority] * cell.Strength.Weight()
		f.PreferenceViolations[priority]++
	}
	return score
}

func (e *Evaluator) scoreErgonomics(c *Chromosome, f *Fitness) float64 {
	// Day occupancy per teacher and per group, gaps counted for both.
	type dayKey struct {
		entityID string
		day      int
	}
	teacherDays := make(map[dayKey][]bool)
	groupDays := make(map[dayKey][]bool)

	occupy := func(m map[dayKey][]bool, id string, day, slot int) {
		k := dayKey{id, day}
		slots := m[k]
		if slots == nil {
			slots = make([]bool, Slots+1)
			m[k] = slots
		}
		slots[slot] = true
	}

	for _, l := range c.Lessons {
		occupy(teacherDays, l.TeacherID, l.Day, l.Slot)
		occupy(groupDays, l.GroupID, l.Day, l.Slot)
		switch l.Slot {
		case 1:
			f.EarlyLessons++
		case Slots:
			f.LateLessons++
		}
	}

	gaps := 0
	for _, m := range []map[dayKey][]bool{teacherDays, groupDays} {
		for _, slots := range m {
			gaps += countGaps(slots)
		}
	}
	f.GapsCount = gaps

	return float64(gaps)*gapPenalty +
		float64(f.EarlyLessons)*earlySlotPenalty +
		float64(f.LateLessons)*lateSlotPenalty
}

// countGaps counts empty slots strictly between the first and last occupied
// slot of one day.
func countGaps(slots []bool) int {
	first, last := -1, -1
	for s := 1; s < len(slots); s++ {
		if slots[s] {
			if first == -1 {
				first = s
			}
			last = s
		}
	}
	if first == -1 {
		return 0
	}
	gaps := 0
	for s := first + 1; s < last; s++ {
		if !slots[s] {
			gaps++
		}
	}
	return gaps
}

// Better reports whether a ranks ahead of b. Ties on total score fall back to
// fewer hard conflicts, then fewer priority-1 preference violations.
func Better(a, b *Chromosome) bool {
	fa, fb := a.Fitness, b.Fitness
	if fa == nil || fb == nil {
		return fb == nil && fa != nil
	}
	if fa.TotalScore != fb.TotalScore {
		return fa.TotalScore > fb.TotalScore
	}
	if fa.HardViolations != fb.HardViolations {
		return fa.HardViolations < fb.HardViolations
	}
	return fa.PreferenceViolations[1] < fb.PreferenceViolations[1]
}
