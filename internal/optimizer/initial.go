package optimizer

import (
	"math/rand"
	"sort"
)

type slotPair struct {
	day  int
	slot int
}

// occKey tracks occupancy of one grid cell for a teacher or a group.
type occKey struct {
	entityID string
	day      int
	slot     int
}

// BuildSeed constructs one greedy seed chromosome. High-priority teachers are
// placed first into their preferred cells; everyone else gets a random free
// cell. When nothing is free the lesson is emitted into a random occupied
// cell anyway and the evolutionary loop resolves the conflict.
func BuildSeed(p *Problem, rng *rand.Rand) *Chromosome {
	loads := make([]int, len(p.Loads))
	for i := range loads {
		loads[i] = i
	}
	sort.SliceStable(loads, func(a, b int) bool {
		la, lb := p.Loads[loads[a]], p.Loads[loads[b]]
		if la.TeacherPriority != lb.TeacherPriority {
			return la.TeacherPriority < lb.TeacherPriority
		}
		if la.TeacherName != lb.TeacherName {
			return la.TeacherName < lb.TeacherName
		}
		return la.DisciplineName < lb.DisciplineName
	})

	c := &Chromosome{Lessons: make([]Lesson, 0, p.TotalLessons())}
	teacherBusy := make(map[occKey]bool)
	groupBusy := make(map[occKey]bool)

	for _, idx := range loads {
		load := p.Loads[idx]
		for n := 0; n < load.LessonsPerWeek; n++ {
			day, slot := pickCell(p, load.TeacherID, load.GroupID, load.TeacherPriority, teacherBusy, groupBusy, rng)
			teacherBusy[occKey{load.TeacherID, day, slot}] = true
			groupBusy[occKey{load.GroupID, day, slot}] = true
			c.Lessons = append(c.Lessons, Lesson{
				CourseLoadID:   load.ID,
				DisciplineName: load.DisciplineName,
				LessonType:     load.LessonType,
				TeacherID:      load.TeacherID,
				TeacherName:    load.TeacherName,
				GroupID:        load.GroupID,
				GroupName:      load.GroupName,
				Day:            day,
				Slot:           slot,
				Week:           1,
			})
		}
	}

	return c
}

func pickCell(p *Problem, teacherID, groupID string, priority int, teacherBusy, groupBusy map[occKey]bool, rng *rand.Rand) (int, int) {
	free := func(day, slot int) bool {
		return !teacherBusy[occKey{teacherID, day, slot}] && !groupBusy[occKey{groupID, day, slot}]
	}

	if priority <= 3 {
		for _, cell := range p.PreferredCells(teacherID) {
			if free(cell.Day, cell.Slot) {
				return cell.Day, cell.Slot
			}
		}
		// Priority 1 and 2 teachers fall back to any free cell only after
		// every preferred cell is exhausted, same as priority 3.
	}

	candidates := make([]slotPair, 0, Days*Slots)
	for day := 1; day <= Days; day++ {
		for slot := 1; slot <= Slots; slot++ {
			if free(day, slot) {
				candidates = append(candidates, slotPair{day, slot})
			}
		}
	}
	if len(candidates) > 0 {
		picked := candidates[rng.Intn(len(candidates))]
		return picked.day, picked.slot
	}

	// Grid exhausted for this teacher/group pair. Emit a conflicting
	// placement rather than abort.
	return rng.Intn(Days) + 1, rng.Intn(Slots) + 1
}
