package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

// Attendance types
const (
	TypeAbsent      = "absent"
	TypeInTime      = "in_time"
	TypeLate        = "late"
	TypeLeftEarlier = "left_earlier"
)

var Types = []string{TypeAbsent, TypeInTime, TypeLate, TypeLeftEarlier}

// Log kinds
const (
	LogParentSeen = "parent_seen"
	LogHomeWork   = "home_work"
	LogLessonWork = "lesson_work"
	LogAttendance = "attendance"
)

// logColumns are the columns each log kind shows, in order.
var logColumns = map[string][]string{
	LogParentSeen: {"date", "parent_seen"},
	LogHomeWork:   {"date", "mark_home", "note_home"},
	LogLessonWork: {"date", "mark_lesson", "note_lesson"},
	LogAttendance: {"date", "type"},
}

// Rating periods
const (
	PeriodDay  = "day"
	PeriodWeek = "week"
	PeriodAll  = "all"
)

type StudentRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Record is the attendance and grading of one student for one lesson on one date.
type Record struct {
	ID         int         `json:"id"`
	StudentID  int         `json:"student_id"`
	LessonID   int         `json:"lesson_id"`
	Date       core.Date   `json:"date"`
	Type       string      `json:"type"`
	Reason     null.String `json:"reason"`
	MarkHome   null.Int    `json:"mark_home"`
	NoteHome   null.String `json:"note_home"`
	MarkLesson null.Int    `json:"mark_lesson"`
	NoteLesson null.String `json:"note_lesson"`
	ParentSeen bool        `json:"parent_seen"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Student    *StudentRef `json:"student,omitempty"`
}

func (r Record) column(name string) interface{} {
	switch name {
	case "date":
		return r.Date.String()
	case "parent_seen":
		return r.ParentSeen
	case "mark_home":
		return r.MarkHome.Ptr()
	case "note_home":
		return r.NoteHome.Ptr()
	case "mark_lesson":
		return r.MarkLesson.Ptr()
	case "note_lesson":
		return r.NoteLesson.Ptr()
	case "type":
		return r.Type
	}
	return nil
}

// project keeps the columns of a log kind.
func (r Record) project(columns []string) map[string]interface{} {
	m := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		m[col] = r.column(col)
	}
	return m
}

type Rating struct {
	StudentID int    `json:"student_id" db:"student_id"`
	Name      string `json:"name" db:"name"`
	TotalMark int    `json:"total_mark" db:"total_mark"`
}

type ExcellentStudent struct {
	StudentID  int          `json:"student_id" db:"student_id"`
	Name       string       `json:"name" db:"name"`
	MarkHome   null.Float64 `json:"mark_home" db:"mark_home"`
	MarkLesson null.Float64 `json:"mark_lesson" db:"mark_lesson"`
	AvgTotal   null.Float64 `json:"avg_total" db:"avg_total"`
}

// SeenCount counts the records of a student that one of their parents has (not) acknowledged.
type SeenCount struct {
	StudentID   int    `json:"student_id" db:"student_id"`
	StudentName string `json:"student_name" db:"student_name"`
	ParentID    int    `json:"parent_id" db:"parent_id"`
	ParentName  string `json:"parent_name" db:"parent_name"`
	Seen        int    `json:"seen" db:"seen"`
	NotSeen     int    `json:"not_seen" db:"not_seen"`
}

// RecordFilter selects records; zero fields are ignored.
type RecordFilter struct {
	LessonIDs []int
	StudentID int
	Date      *core.Date
	From      *core.Date
	To        *core.Date
}

// RatingQuery selects the records a rating is computed over.
type RatingQuery struct {
	LessonIDs []int
	From      *core.Date
	To        *core.Date
}

type SetStatus struct {
	Student int        `json:"student" validate:"required,min=1"`
	Lesson  int        `json:"lesson" validate:"required,min=1"`
	Date    *core.Date `json:"date"`
	Type    string     `json:"type" validate:"required,oneof=absent in_time late left_earlier"`
	Reason  string     `json:"reason"`
}

func (ss SetStatus) Validate(validate *validator.Validate) error { return validate.Struct(ss) }

// Grade is a full write of a record by the teacher: unset marks and notes are cleared.
type Grade struct {
	Student    int        `json:"student" validate:"required,min=1"`
	Lesson     int        `json:"lesson" validate:"required,min=1"`
	Date       *core.Date `json:"date"`
	Type       string     `json:"type" validate:"required,oneof=absent in_time late left_earlier"`
	Reason     string     `json:"reason"`
	MarkHome   *int       `json:"mark_home" validate:"omitempty,min=0,max=100"`
	NoteHome   string     `json:"note_home"`
	MarkLesson *int       `json:"mark_lesson" validate:"omitempty,min=0,max=100"`
	NoteLesson string     `json:"note_lesson"`
}

func (g Grade) Validate(validate *validator.Validate) error { return validate.Struct(g) }

// BatchGrade gives the same mark to several students.
type BatchGrade struct {
	Students []int      `json:"students" validate:"required,min=1,dive,min=1"`
	Lesson   int        `json:"lesson" validate:"required,min=1"`
	Date     *core.Date `json:"date"`
	Mark     *int       `json:"mark" validate:"required,min=0,max=100"`
	Note     string     `json:"note"`
}

func (bg BatchGrade) Validate(validate *validator.Validate) error { return validate.Struct(bg) }

type ReportAbsence struct {
	Lesson int        `json:"lesson" validate:"required,min=1"`
	Date   *core.Date `json:"date"`
	Note   string     `json:"note"`
}

func (ra ReportAbsence) Validate(validate *validator.Validate) error { return validate.Struct(ra) }

type StudentFilter struct {
	Lesson  int `query:"lesson" validate:"required,min=1"`
	Student int `query:"student" validate:"required,min=1"`
}

func (sf StudentFilter) Validate(validate *validator.Validate) error { return validate.Struct(sf) }

type LogFilter struct {
	Kind      string `param:"kind" validate:"required,oneof=parent_seen home_work lesson_work attendance"`
	Lesson    int    `query:"lesson" validate:"required,min=1"`
	Student   int    `query:"student" validate:"required,min=1"`
	StartDate string `query:"start_date" validate:"omitempty,dmy"`
	EndDate   string `query:"end_date" validate:"omitempty,dmy"`
}

func (lf LogFilter) Validate(validate *validator.Validate) error { return validate.Struct(lf) }

type SeenFilter struct {
	Group   int `query:"group"`
	Lesson  int `query:"lesson"`
	Student int `query:"student" validate:"omitempty,min=1"`
}

type RatingFilter struct {
	Group   int    `query:"group" validate:"omitempty,min=1"`
	Subject int    `query:"subject" validate:"omitempty,min=1"`
	Filter  string `query:"filter" validate:"omitempty,oneof=day week all"`
}

func (rf RatingFilter) Validate(validate *validator.Validate) error { return validate.Struct(rf) }

type SubjectRatingFilter struct {
	Filter  string `query:"filter" validate:"omitempty,oneof=day week all"`
	Student int    `query:"student" validate:"omitempty,min=1"` // parents with several children
}

func (sf SubjectRatingFilter) Validate(validate *validator.Validate) error {
	return validate.Struct(sf)
}
