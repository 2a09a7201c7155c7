package lesson

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

// Operation types
const (
	OpCancel = "cancel"
	OpAdd    = "add"
)

type Subject struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Group is a teacher-owned class: a subject, a roster and a weekly schedule.
type Group struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	SubjectID int       `json:"subject_id"`
	TeacherID int       `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	DeletedAt null.Time `json:"-"`
	Lessons   []Lesson  `json:"lessons,omitempty"`
}

func (g Group) IsDeleted() bool { return g.DeletedAt.Valid }

// Lesson is a weekly recurring slot of a Group.
type Lesson struct {
	ID      int        `json:"id"`
	GroupID int        `json:"lesson_group_id"`
	WeekDay int        `json:"week_day"` // 1 (Monday) .. 7 (Sunday)
	Time    core.Clock `json:"time"`
}

// Operation is a one-off exception to the weekly schedule of a Lesson.
type Operation struct {
	ID        int         `json:"id"`
	LessonID  int         `json:"lesson_id"`
	Date      core.Date   `json:"date"`
	Time      *core.Clock `json:"time"`
	Type      string      `json:"type"`
	Reason    null.String `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

// LessonOnDate is a lesson taking place (or cancelled) on a given date.
type LessonOnDate struct {
	Lesson
	Group     Group      `json:"lesson_group"`
	Operation *Operation `json:"operation"`
}

// NewLessonSlot is a weekly slot given when creating a Group.
type NewLessonSlot struct {
	WeekDay int    `json:"week_day" validate:"required,min=1,max=7"`
	Time    string `json:"time" validate:"required,clock"`
}

type NewSubject struct {
	Name string `json:"name" validate:"required"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

type NewGroup struct {
	Name    string          `json:"name" validate:"required"`
	Subject int             `json:"subject" validate:"required,min=1"`
	Teacher int             `json:"teacher" validate:"omitempty,min=1"` // admins only
	Lessons []NewLessonSlot `json:"lessons" validate:"required,min=1,dive"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	return validate.Struct(ng)
}

type UpdateGroup struct {
	Name    string `json:"name" validate:"required"`
	Subject int    `json:"subject" validate:"required,min=1"`
}

func (ug *UpdateGroup) Validate(validate *validator.Validate) error {
	ug.Name = core.CleanString(ug.Name)
	return validate.Struct(ug)
}

type NewLesson struct {
	Group   int    `json:"lesson_group" validate:"required,min=1"`
	WeekDay int    `json:"week_day" validate:"required,min=1,max=7"`
	Time    string `json:"time" validate:"required,clock"`
}

func (nl NewLesson) Validate(validate *validator.Validate) error { return validate.Struct(nl) }

type UpdateLesson struct {
	WeekDay int    `json:"week_day" validate:"required,min=1,max=7"`
	Time    string `json:"time" validate:"required,clock"`
}

func (ul UpdateLesson) Validate(validate *validator.Validate) error { return validate.Struct(ul) }

type CancelLesson struct {
	Date   string `json:"date" validate:"required,dmy"`
	Reason string `json:"reason"`
}

func (cl CancelLesson) Validate(validate *validator.Validate) error { return validate.Struct(cl) }

type AddLesson struct {
	Date   string `json:"date" validate:"required,dmyhm"`
	Reason string `json:"reason"`
}

func (al AddLesson) Validate(validate *validator.Validate) error { return validate.Struct(al) }

type TransferLesson struct {
	DateCancel string `json:"date_cancel" validate:"required,dmy"`
	DateAdd    string `json:"date_add" validate:"required,dmyhm"`
	Reason     string `json:"reason"`
}

func (tl TransferLesson) Validate(validate *validator.Validate) error { return validate.Struct(tl) }

// DayFilter selects the lessons of the day D of the current teacher.
type DayFilter struct {
	Date             string `query:"date" validate:"required,dmy"`
	IncludeCancelled bool   `query:"include_cancelled"`
}

func (df DayFilter) Validate(validate *validator.Validate) error { return validate.Struct(df) }

// GroupFilter selects lesson groups; zero fields are ignored. Soft-deleted groups are never selected.
type GroupFilter struct {
	IDs       []int
	TeacherID int
	SubjectID int
	WeekDay   int // groups having a lesson on that day
}

// LessonFilter selects lessons of non-deleted groups; zero fields are ignored.
type LessonFilter struct {
	IDs       []int
	GroupIDs  []int
	TeacherID int
	WeekDay   int
}
