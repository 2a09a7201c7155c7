package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
)

// Enrollment statuses
const (
	StatusNone    = "none"
	StatusAccept  = "accept"
	StatusDecline = "decline"
)

// Enrollment is a student's membership of a lesson group, attached to some of its lessons.
type Enrollment struct {
	ID        int         `json:"id"`
	GroupID   int         `json:"lesson_group_id"`
	StudentID int         `json:"student_id"`
	Status    string      `json:"status"`
	Reason    null.String `json:"reason"`
	LessonIDs []int       `json:"lessons"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Filter selects an enrollment; zero fields are ignored.
type Filter struct {
	StudentID int
	GroupID   int
	LessonID  int // enrollments attached to that lesson
}

// Request is a student asking to join some lessons of one group.
type Request struct {
	Lessons []int  `json:"lessons" validate:"required,min=1,dive,min=1"`
	Note    string `json:"note"`
}

func (r Request) Validate(validate *validator.Validate) error { return validate.Struct(r) }

// Decision selects the enrollment of a student by group or by one of its lessons.
type Decision struct {
	Student int    `json:"student" validate:"required,min=1"`
	Group   int    `json:"group" validate:"required_without=Lesson"`
	Lesson  int    `json:"lesson" validate:"required_without=Group"`
	Reason  string `json:"reason"`
}

func (d Decision) Validate(validate *validator.Validate) error { return validate.Struct(d) }

type ChangeStatus struct {
	Status string `json:"status" validate:"required,oneof=none accept decline"`
	Reason string `json:"reason"`
}

func (cs ChangeStatus) Validate(validate *validator.Validate) error { return validate.Struct(cs) }

type Transfer struct {
	Student  int    `json:"student" validate:"required,min=1"`
	OldGroup int    `json:"old_group" validate:"required_without=Lesson"`
	Lesson   int    `json:"lesson" validate:"required_without=OldGroup"`
	NewGroup int    `json:"new_group" validate:"required,min=1"`
	Reason   string `json:"reason"`
}

func (t Transfer) Validate(validate *validator.Validate) error { return validate.Struct(t) }

type AddToGroup struct {
	Student int    `json:"student" validate:"required,min=1"`
	Group   int    `json:"group" validate:"required_without=Lesson"`
	Lesson  int    `json:"lesson" validate:"required_without=Group"`
	Reason  string `json:"reason"`
}

func (ag AddToGroup) Validate(validate *validator.Validate) error { return validate.Struct(ag) }
