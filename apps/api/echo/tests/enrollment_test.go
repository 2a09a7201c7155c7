package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/enrollment"
)

func Test_enrollmentApi_request(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	student := env.Student(t, "student")
	morning := env.Group(t, teacher, "Morning", slot(1, "10:00"), slot(3, "10:00"))
	evening := env.Group(t, teacher, "Evening", slot(1, "18:00"))
	tok := env.token(t, student)

	body := func(lessons ...int) []byte {
		return marchallObj(t, enrollment.Request{Lessons: lessons, Note: "please"})
	}
	mixed := enrollment.ErrMixedGroups.Error()

	env.run(t, []httpTest{
		{
			name: "students only", method: http.MethodPost, path: "/v1/enrollments", token: env.token(t, teacher),
			body: body(morning.Lessons[0].ID), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "lessons required", method: http.MethodPost, path: "/v1/enrollments", token: tok,
			body: body(), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown lesson", method: http.MethodPost, path: "/v1/enrollments", token: tok,
			body: body(999), wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("lesson not found")),
		},
		{
			name: "mixed groups", method: http.MethodPost, path: "/v1/enrollments", token: tok,
			body: body(morning.Lessons[0].ID, evening.Lessons[0].ID), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(mixed, map[string]string{"lessons": mixed})),
		},
	})

	rec := env.do(t, http.MethodPost, "/v1/enrollments", tok, body(morning.Lessons[0].ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e enrollment.Enrollment
	decode(t, rec, &e)
	assert.Equal(t, enrollment.StatusNone, e.Status)
	assert.Equal(t, morning.ID, e.GroupID)
	assert.Len(t, env.Inbox(t, teacher), 1)

	rec = env.do(t, http.MethodPost, "/v1/enrollments", tok, body(morning.Lessons[0].ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, enrollment.ErrAlreadyEnrolled.Error(), decode(t, rec).Message)

	// a second request on the same group extends the enrollment
	rec = env.do(t, http.MethodPost, "/v1/enrollments", tok, body(morning.Lessons[1].ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var again enrollment.Enrollment
	decode(t, rec, &again)
	assert.Equal(t, e.ID, again.ID)
	assert.ElementsMatch(t, []int{morning.Lessons[0].ID, morning.Lessons[1].ID}, again.LessonIDs)
}

func Test_enrollmentApi_decide(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	other := env.Teacher(t, "other", 1, 0)
	student := env.Student(t, "student")
	grp := env.Group(t, teacher, "Morning", slot(1, "10:00"))

	rec := env.do(t, http.MethodPost, "/v1/enrollments", env.token(t, student),
		marchallObj(t, enrollment.Request{Lessons: []int{grp.Lessons[0].ID}}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env.run(t, []httpTest{
		{
			name: "group or lesson required", method: http.MethodPost, path: "/v1/enrollments/accept", token: env.token(t, teacher),
			body: marchallObj(t, enrollment.Decision{Student: student.ID}), wantCode: http.StatusBadRequest,
		},
		{
			name: "other teacher", method: http.MethodPost, path: "/v1/enrollments/accept", token: env.token(t, other),
			body:     marchallObj(t, enrollment.Decision{Student: student.ID, Group: grp.ID}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "not enrolled", method: http.MethodPost, path: "/v1/enrollments/decline", token: env.token(t, teacher),
			body:     marchallObj(t, enrollment.Decision{Student: teacher.ID, Group: grp.ID}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("enrollment not found")),
		},
	})

	rec = env.do(t, http.MethodPost, "/v1/enrollments/accept", env.token(t, teacher),
		marchallObj(t, enrollment.Decision{Student: student.ID, Lesson: grp.Lessons[0].ID}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var e enrollment.Enrollment
	decode(t, rec, &e)
	assert.Equal(t, enrollment.StatusAccept, e.Status)
	assert.Len(t, env.Inbox(t, student), 1)

	rec = env.do(t, http.MethodPost, "/v1/enrollments/decline", env.token(t, teacher),
		marchallObj(t, enrollment.Decision{Student: student.ID, Group: grp.ID, Reason: "full"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &e)
	assert.Equal(t, enrollment.StatusDecline, e.Status)
	assert.Equal(t, "full", e.Reason.String)

	// status changes are silent
	path := fmt.Sprintf("/v1/enrollments/%d/status", e.ID)
	env.run(t, []httpTest{
		{
			name: "invalid status", method: http.MethodPut, path: path, token: env.token(t, teacher),
			body: []byte(`{"status": "maybe"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown enrollment", method: http.MethodPut, path: "/v1/enrollments/999/status", token: env.token(t, teacher),
			body: []byte(`{"status": "accept"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "changed", method: http.MethodPut, path: path, token: env.token(t, teacher),
			body: []byte(`{"status": "accept"}`), wantCode: http.StatusOK,
		},
	})
	assert.Len(t, env.Inbox(t, student), 2)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/groups/%d/enrollments", grp.ID), env.token(t, teacher))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var es []enrollment.Enrollment
	decode(t, rec, &es)
	require.Len(t, es, 1)
	assert.Equal(t, enrollment.StatusAccept, es[0].Status)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/groups/%d/enrollments", grp.ID), env.token(t, other))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_enrollmentApi_addAndTransfer(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	student := env.Student(t, "student")
	parent := env.Parent(t, "parent", student)
	from := env.Group(t, teacher, "From", slot(1, "10:00"), slot(3, "10:00"))
	to := env.Group(t, teacher, "To", slot(2, "10:00"))
	tok := env.token(t, teacher)

	env.run(t, []httpTest{
		{
			name: "students only", method: http.MethodPost, path: "/v1/enrollments/add", token: tok,
			body:     marchallObj(t, enrollment.AddToGroup{Student: parent.ID, Group: from.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(enrollment.ErrNotStudent.Error(), map[string]string{"student": enrollment.ErrNotStudent.Error()})),
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/enrollments/add", token: tok,
			body:     marchallObj(t, enrollment.AddToGroup{Student: 999, Group: from.ID}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("user not found")),
		},
	})

	rec := env.do(t, http.MethodPost, "/v1/enrollments/add", tok, marchallObj(t, enrollment.AddToGroup{Student: student.ID, Group: from.ID}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var e enrollment.Enrollment
	decode(t, rec, &e)
	assert.Equal(t, enrollment.StatusAccept, e.Status)
	assert.ElementsMatch(t, []int{from.Lessons[0].ID, from.Lessons[1].ID}, e.LessonIDs)

	rec = env.do(t, http.MethodPost, "/v1/enrollments/transfer", tok,
		marchallObj(t, enrollment.Transfer{Student: student.ID, Lesson: from.Lessons[1].ID, NewGroup: to.ID}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var moved enrollment.Enrollment
	decode(t, rec, &moved)
	assert.Equal(t, e.ID, moved.ID)
	assert.Equal(t, to.ID, moved.GroupID)
	assert.Equal(t, []int{to.Lessons[0].ID}, moved.LessonIDs)
	assert.Len(t, env.Inbox(t, student), 2)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/groups/%d/enrollments", from.ID), tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[]`, string(decode(t, rec).Data))
}
