package notification

import (
	"strconv"
	"time"

	"github.com/volatiletech/null/v8"
)

type Kind int

// Notification kinds (stored as int)
const (
	KindInfo Kind = iota
	KindRequestGroup
	KindAnons
	KindStudentGroupOperation
	KindLessonOperation
	KindGreeting
	KindAttendance
	KindRequestAbsent
)

var kindNames = map[Kind]string{
	KindInfo:                  "info",
	KindRequestGroup:          "request_group",
	KindAnons:                 "anons",
	KindStudentGroupOperation: "student_group_operation",
	KindLessonOperation:       "lesson_operation",
	KindGreeting:              "greeting",
	KindAttendance:            "attendance",
	KindRequestAbsent:         "request_absent",
}

// String returns the kind's name, unknown kinds are "info".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInfo]
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(k.String())), nil
}

type Notification struct {
	ID        int         `json:"id"`
	Kind      Kind        `json:"type"`
	UserID    int         `json:"user_id"`
	SenderID  null.Int    `json:"sender_id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Note      null.String `json:"note"`
	RelatedID null.Int    `json:"related_id"`
	Seen      bool        `json:"seen"`
	CreatedAt time.Time   `json:"created_at"`
}

// AttendanceEntry is one attendance record reported by the daily job.
type AttendanceEntry struct {
	RecordID    int
	StudentID   int
	StudentName string
	TeacherID   int
}

// JobSummary is the outcome of one run of the attendance job.
type JobSummary struct {
	RunID   string `json:"run_id"`
	Date    string `json:"date"`
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}
