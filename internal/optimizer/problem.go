package optimizer

import (
	"sort"

	"github.com/univtimetable/optimizer-api/internal/models"
)

type cellKey struct {
	teacherID string
	day       int
	slot      int
}

// Problem is the immutable problem instance a job optimizes against. It is
// built once by the context loader and shared read-only across workers.
type Problem struct {
	Semester     int
	AcademicYear string

	Loads      []models.CourseLoad
	Classrooms []models.Classroom

	preferences map[string]*models.TeacherPreferences
	cells       map[cellKey]models.PreferenceCell
	preferred   map[string][]models.PreferenceCell
}

// NewProblem indexes the loaded data for constant-time preference lookups.
func NewProblem(semester int, academicYear string, loads []models.CourseLoad, prefs []models.TeacherPreferences, classrooms []models.Classroom) *Problem {
	p := &Problem{
		Semester:     semester,
		AcademicYear: academicYear,
		Loads:        loads,
		Classrooms:   classrooms,
		preferences:  make(map[string]*models.TeacherPreferences, len(prefs)),
		cells:        make(map[cellKey]models.PreferenceCell),
		preferred:    make(map[string][]models.PreferenceCell),
	}

	for i := range prefs {
		set := prefs[i]
		p.preferences[set.TeacherID] = &set
		for _, cell := range set.Cells {
			p.cells[cellKey{set.TeacherID, cell.Day, cell.Slot}] = cell
			if cell.IsPreferred {
				p.preferred[set.TeacherID] = append(p.preferred[set.TeacherID], cell)
			}
		}
	}

	// Preferred cells are consumed strongest-first by the seed builder and
	// the smart mutation.
	for teacherID := range p.preferred {
		cells := p.preferred[teacherID]
		sort.SliceStable(cells, func(i, j int) bool {
			return cells[i].Strength.Rank() < cells[j].Strength.Rank()
		})
	}

	return p
}

// Cell returns the preference cell for (teacher, day, slot) if one exists.
func (p *Problem) Cell(teacherID string, day, slot int) (models.PreferenceCell, bool) {
	cell, ok := p.cells[cellKey{teacherID, day, slot}]
	return cell, ok
}

// PreferredCells returns the teacher's preferred cells, strongest first.
func (p *Problem) PreferredCells(teacherID string) []models.PreferenceCell {
	return p.preferred[teacherID]
}

// PreferencesFor returns the teacher's full preference set, or nil.
func (p *Problem) PreferencesFor(teacherID string) *models.TeacherPreferences {
	return p.preferences[teacherID]
}

// TeacherPriority returns the derived priority for a teacher. Teachers
// without a loaded preference set default to the least constrained tier.
func (p *Problem) TeacherPriority(teacherID string) int {
	if set, ok := p.preferences[teacherID]; ok && set.Priority > 0 {
		return set.Priority
	}
	return 4
}

// TotalLessons is the chromosome length implied by the course loads.
func (p *Problem) TotalLessons() int {
	total := 0
	for _, load := range p.Loads {
		total += load.LessonsPerWeek
	}
	return total
}
