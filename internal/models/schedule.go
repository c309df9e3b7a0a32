package models

import "time"

// ScheduleRow is one persisted lesson placement of an activated timetable.
type ScheduleRow struct {
	ID             string     `db:"id" json:"id"`
	CourseLoadID   string     `db:"course_load_id" json:"course_load_id"`
	DayOfWeek      int        `db:"day_of_week" json:"day_of_week"`
	TimeSlot       int        `db:"time_slot" json:"time_slot"`
	ClassroomID    *string    `db:"classroom_id" json:"classroom_id,omitempty"`
	TeacherID      string     `db:"teacher_id" json:"teacher_id"`
	TeacherName    string     `db:"teacher_name" json:"teacher_name"`
	GroupID        string     `db:"group_id" json:"group_id"`
	GroupName      string     `db:"group_name" json:"group_name"`
	DisciplineName string     `db:"discipline_name" json:"discipline_name"`
	LessonType     LessonType `db:"lesson_type" json:"lesson_type"`
	GenerationID   string     `db:"generation_id" json:"generation_id"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	Semester       int        `db:"semester" json:"semester"`
	AcademicYear   string     `db:"academic_year" json:"academic_year"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// ScheduleConflict is one double-booked cell reported by the conflict check.
type ScheduleConflict struct {
	ConflictType string `db:"conflict_type" json:"conflict_type"`
	EntityID     string `db:"entity_id" json:"entity_id"`
	DayOfWeek    int    `db:"day_of_week" json:"day_of_week"`
	TimeSlot     int    `db:"time_slot" json:"time_slot"`
	LessonCount  int    `db:"lesson_count" json:"lesson_count"`
}
