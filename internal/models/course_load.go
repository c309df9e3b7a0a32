package models

// LessonType enumerates the kinds of lessons a course load produces.
type LessonType string

const (
	LessonLecture  LessonType = "lecture"
	LessonSeminar  LessonType = "seminar"
	LessonPractice LessonType = "practice"
	LessonLab      LessonType = "lab"
)

// CourseLoad is one discipline x teacher x group teaching assignment with a
// required weekly lesson count. TeacherPriority is derived from the teacher's
// employment type when loads are read.
type CourseLoad struct {
	ID              string         `db:"id" json:"id"`
	DisciplineName  string         `db:"discipline_name" json:"discipline_name"`
	LessonType      LessonType     `db:"lesson_type" json:"lesson_type"`
	TeacherID       string         `db:"teacher_id" json:"teacher_id"`
	TeacherName     string         `db:"teacher_name" json:"teacher_name"`
	EmploymentType  EmploymentType `db:"employment_type" json:"-"`
	TeacherPriority int            `db:"teacher_priority" json:"teacher_priority"`
	GroupID         string         `db:"group_id" json:"group_id"`
	GroupName       string         `db:"group_name" json:"group_name"`
	GroupSize       int            `db:"group_size" json:"group_size"`
	LessonsPerWeek  int            `db:"lessons_per_week" json:"lessons_per_week"`
	Semester        int            `db:"semester" json:"semester"`
	AcademicYear    string         `db:"academic_year" json:"academic_year"`
}

// Classroom is a physical room available for assignment.
type Classroom struct {
	ID       string `db:"id" json:"id"`
	Number   string `db:"number" json:"number"`
	Capacity int    `db:"capacity" json:"capacity"`
	RoomType string `db:"room_type" json:"room_type"`
	IsActive bool   `db:"is_active" json:"is_active"`
}
