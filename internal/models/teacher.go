package models

// EmploymentType enumerates teacher employment categories.
type EmploymentType string

const (
	EmploymentExternal EmploymentType = "external"
	EmploymentGraduate EmploymentType = "graduate"
	EmploymentInternal EmploymentType = "internal"
	EmploymentStaff    EmploymentType = "staff"
)

// Priority maps an employment type to a scheduling priority. Lower values mean
// the teacher is harder to reschedule and their preferences weigh more.
func (t EmploymentType) Priority() int {
	switch t {
	case EmploymentExternal:
		return 1
	case EmploymentGraduate:
		return 2
	case EmploymentInternal:
		return 3
	case EmploymentStaff:
		return 4
	default:
		return 4
	}
}

// Teacher is the directory record referenced by course loads.
type Teacher struct {
	ID             string         `db:"id" json:"id"`
	FullName       string         `db:"full_name" json:"full_name"`
	EmploymentType EmploymentType `db:"employment_type" json:"employment_type"`
}
