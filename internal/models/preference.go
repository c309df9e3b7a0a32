package models

// PreferenceStrength qualifies how strongly a teacher feels about a cell.
type PreferenceStrength string

const (
	StrengthStrong      PreferenceStrength = "strong"
	StrengthMedium      PreferenceStrength = "medium"
	StrengthWeak        PreferenceStrength = "weak"
	StrengthUnspecified PreferenceStrength = ""
)

// Weight scales dislike penalties. An unspecified strength counts in full.
func (s PreferenceStrength) Weight() float64 {
	switch s {
	case StrengthStrong:
		return 1.0
	case StrengthMedium:
		return 0.6
	case StrengthWeak:
		return 0.3
	default:
		return 1.0
	}
}

// Rank orders strengths for the greedy builder, strongest first.
func (s PreferenceStrength) Rank() int {
	switch s {
	case StrengthStrong:
		return 0
	case StrengthMedium:
		return 1
	case StrengthWeak:
		return 2
	default:
		return 3
	}
}

// PreferenceCell declares one (day, slot) of the weekly grid desirable or
// undesirable for a teacher. Cells missing from a teacher's set are neutral.
type PreferenceCell struct {
	TeacherID   string             `db:"teacher_id" json:"teacher_id"`
	Day         int                `db:"day_of_week" json:"day"`
	Slot        int                `db:"time_slot" json:"slot"`
	IsPreferred bool               `db:"is_preferred" json:"is_preferred"`
	Strength    PreferenceStrength `db:"strength" json:"strength,omitempty"`
}

// TeacherPreferences groups the cells of one teacher with their identity and
// derived priority.
type TeacherPreferences struct {
	TeacherID   string           `json:"teacher_id"`
	TeacherName string           `json:"teacher_name"`
	Priority    int              `json:"priority"`
	Cells       []PreferenceCell `json:"cells"`
}
