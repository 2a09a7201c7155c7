package notification

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "lesson_operation", KindLessonOperation.String())
	assert.Equal(t, "info", Kind(42).String())

	data, err := json.Marshal(Notification{Kind: KindAttendance})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"attendance"`)
}

func TestEvents(t *testing.T) {
	tests := []struct {
		name     string
		ev       Event
		kind     Kind
		audience Audience
		title    string
		content  string
	}{
		{
			name:     "group request",
			ev:       GroupRequest{StudentName: "Jane", GroupName: "Algebra", TeacherID: 3, EnrollmentID: 7},
			kind:     KindRequestGroup,
			audience: Audience{UserIDs: []int{3}},
			title:    "Group join request",
			content:  "Jane wants to join your group Algebra",
		},
		{
			name:     "enrollment accepted without reason",
			ev:       EnrollmentChange{Action: EnrollmentAccepted, StudentID: 5},
			kind:     KindStudentGroupOperation,
			audience: Audience{UserIDs: []int{5}, ParentsOf: []int{5}},
			title:    "Joined the group",
			content:  noContent,
		},
		{
			name:     "lesson transferred",
			ev:       LessonChange{Action: LessonTransferred, StudentIDs: []int{1, 2}, Reason: "trip"},
			kind:     KindLessonOperation,
			audience: Audience{UserIDs: []int{1, 2}, ParentsOf: []int{1, 2}},
			title:    "Lesson time changed",
			content:  "trip",
		},
		{
			name:     "attendance report",
			ev:       AttendanceReport{RecordID: 9, StudentID: 4, StudentName: "John"},
			kind:     KindAttendance,
			audience: Audience{ParentsOf: []int{4}},
			title:    "Attendance report",
			content:  "Report about John",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.ev.Kind())
			assert.Equal(t, tt.audience, tt.ev.Audience())
			assert.Equal(t, tt.title, tt.ev.Title())
			assert.Equal(t, tt.content, orNoContent(tt.ev.Content()))
		})
	}
}
