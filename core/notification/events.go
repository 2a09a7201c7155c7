package notification

import "fmt"

const noContent = "no content"

// Audience is who receives an Event: some users directly and the parents of some students.
type Audience struct {
	UserIDs   []int
	ParentsOf []int
}

// Event is a notification variant. Each variant carries the fields its kind requires.
type Event interface {
	Kind() Kind
	Audience() Audience
	Title() string
	Content() string
	Note() string
	// RelatedID is the id of the record the event is about, 0 if none.
	RelatedID() int
}

func orNoContent(s string) string {
	if s == "" {
		return noContent
	}
	return s
}

// GroupRequest is sent to a group's teacher when a student asks to join it.
type GroupRequest struct {
	StudentName  string
	GroupName    string
	TeacherID    int
	Message      string
	EnrollmentID int
}

func (e GroupRequest) Kind() Kind         { return KindRequestGroup }
func (e GroupRequest) Audience() Audience { return Audience{UserIDs: []int{e.TeacherID}} }
func (e GroupRequest) Title() string      { return "Group join request" }
func (e GroupRequest) Note() string       { return e.Message }
func (e GroupRequest) RelatedID() int     { return e.EnrollmentID }

func (e GroupRequest) Content() string {
	return fmt.Sprintf("%s wants to join your group %s", e.StudentName, e.GroupName)
}

type EnrollmentAction string

const (
	EnrollmentAccepted    EnrollmentAction = "accepted"
	EnrollmentDeclined    EnrollmentAction = "declined"
	EnrollmentTransferred EnrollmentAction = "transferred"
	EnrollmentAdded       EnrollmentAction = "added"
)

// EnrollmentChange tells a student (and their parents) that their enrollment changed.
type EnrollmentChange struct {
	Action       EnrollmentAction
	StudentID    int
	Reason       string
	EnrollmentID int
}

func (e EnrollmentChange) Kind() Kind { return KindStudentGroupOperation }

func (e EnrollmentChange) Audience() Audience {
	return Audience{UserIDs: []int{e.StudentID}, ParentsOf: []int{e.StudentID}}
}

func (e EnrollmentChange) Title() string {
	switch e.Action {
	case EnrollmentAccepted:
		return "Joined the group"
	case EnrollmentDeclined:
		return "Group request declined"
	case EnrollmentTransferred:
		return "Group transfer"
	case EnrollmentAdded:
		return "New group"
	}
	return "No title"
}

func (e EnrollmentChange) Content() string { return orNoContent(e.Reason) }
func (e EnrollmentChange) Note() string    { return "" }
func (e EnrollmentChange) RelatedID() int  { return e.EnrollmentID }

type LessonAction string

const (
	LessonCancelled   LessonAction = "cancelled"
	LessonAdded       LessonAction = "added"
	LessonTransferred LessonAction = "transferred"
)

// LessonChange tells the students of a lesson (and their parents) about a schedule exception.
type LessonChange struct {
	Action      LessonAction
	StudentIDs  []int
	Reason      string
	OperationID int
}

func (e LessonChange) Kind() Kind { return KindLessonOperation }

func (e LessonChange) Audience() Audience {
	return Audience{UserIDs: e.StudentIDs, ParentsOf: e.StudentIDs}
}

func (e LessonChange) Title() string {
	switch e.Action {
	case LessonCancelled:
		return "Lesson cancelled"
	case LessonAdded:
		return "Additional lesson"
	case LessonTransferred:
		return "Lesson time changed"
	}
	return "No title"
}

func (e LessonChange) Content() string { return orNoContent(e.Reason) }
func (e LessonChange) Note() string    { return "" }
func (e LessonChange) RelatedID() int  { return e.OperationID }

// Greeting congratulates a student.
type Greeting struct {
	StudentID  int
	SenderName string
}

func (e Greeting) Kind() Kind         { return KindGreeting }
func (e Greeting) Audience() Audience { return Audience{UserIDs: []int{e.StudentID}} }
func (e Greeting) Title() string      { return "Congratulations" }
func (e Greeting) Content() string    { return e.SenderName + " congratulates you" }
func (e Greeting) Note() string       { return "" }
func (e Greeting) RelatedID() int     { return 0 }

// AttendanceReport tells parents about one attendance record of their child.
type AttendanceReport struct {
	RecordID    int
	StudentID   int
	StudentName string
}

func (e AttendanceReport) Kind() Kind         { return KindAttendance }
func (e AttendanceReport) Audience() Audience { return Audience{ParentsOf: []int{e.StudentID}} }
func (e AttendanceReport) Title() string      { return "Attendance report" }
func (e AttendanceReport) Content() string    { return "Report about " + e.StudentName }
func (e AttendanceReport) Note() string       { return "" }
func (e AttendanceReport) RelatedID() int     { return e.RecordID }

// AbsenceRequest is a student's notice that they will miss a lesson.
type AbsenceRequest struct {
	RecordID    int
	StudentID   int
	StudentName string
	TeacherID   int
	GroupName   string
	Date        string
	Message     string
}

func (e AbsenceRequest) Kind() Kind { return KindRequestAbsent }

func (e AbsenceRequest) Audience() Audience {
	return Audience{UserIDs: []int{e.TeacherID}, ParentsOf: []int{e.StudentID}}
}

func (e AbsenceRequest) Title() string { return "Absence notice" }

func (e AbsenceRequest) Content() string {
	return fmt.Sprintf("%s will not attend the lesson of group %s on %s", e.StudentName, e.GroupName, e.Date)
}

func (e AbsenceRequest) Note() string   { return e.Message }
func (e AbsenceRequest) RelatedID() int { return e.RecordID }
