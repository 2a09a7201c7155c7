package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
)

func slot(day int, tm string) lesson.NewLessonSlot {
	return lesson.NewLessonSlot{WeekDay: day, Time: tm}
}

func Test_lessonApi_subjects(t *testing.T) {
	env := setup(t)
	admin := env.Admin(t, "admin")
	teacher := env.Teacher(t, "teacher", 1, 0)

	env.run(t, []httpTest{
		{name: "auth required", path: "/v1/subjects", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodPost, path: "/v1/subjects", token: env.token(t, teacher),
			body: []byte(`{"name": "Maths"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "name required", method: http.MethodPost, path: "/v1/subjects", token: env.token(t, admin),
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("", map[string]string{"name": "this field is required"})),
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/subjects", token: env.token(t, admin),
			body: []byte(`{"name": "Maths"}`), wantCode: http.StatusCreated,
		},
	})

	rec := env.do(t, http.MethodGet, "/v1/subjects", env.token(t, teacher))
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []lesson.Subject
	decode(t, rec, &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, "Maths", subs[0].Name)
}

func Test_lessonApi_groups(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	other := env.Teacher(t, "other", 1, 0)
	student := env.Student(t, "student")
	sub := env.Subject(t, "Maths")
	existing := env.Group(t, teacher, "Morning", slot(1, "10:00"))

	newGroup := func(slots ...lesson.NewLessonSlot) []byte {
		return marchallObj(t, lesson.NewGroup{Name: "Group", Subject: sub.ID, Lessons: slots})
	}
	overlap := lesson.ErrOverlap.Error()

	env.run(t, []httpTest{
		{
			name: "students forbidden", method: http.MethodPost, path: "/v1/groups", token: env.token(t, student),
			body: newGroup(slot(2, "10:00")), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "lessons required", method: http.MethodPost, path: "/v1/groups", token: env.token(t, teacher),
			body: newGroup(), wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid time", method: http.MethodPost, path: "/v1/groups", token: env.token(t, teacher),
			body: newGroup(slot(2, "25:00")), wantCode: http.StatusBadRequest,
		},
		{
			name: "overlaps existing lesson", method: http.MethodPost, path: "/v1/groups", token: env.token(t, teacher),
			body: newGroup(slot(1, "10:59")), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(overlap, map[string]string{"time": overlap})),
		},
		{
			name: "overlaps sibling lesson", method: http.MethodPost, path: "/v1/groups", token: env.token(t, teacher),
			body: newGroup(slot(3, "10:00"), slot(3, "10:30")), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(overlap, map[string]string{"time": overlap})),
		},
		{
			name: "unknown group", path: "/v1/groups/999", token: env.token(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("lesson group not found")),
		},
		{
			name: "invalid week day", path: "/v1/groups/weekday/8", token: env.token(t, student), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(
				"week day must be between 1 (Monday) and 7 (Sunday)",
				map[string]string{"day": "week day must be between 1 (Monday) and 7 (Sunday)"},
			)),
		},
		{
			name: "other teacher cannot update", method: http.MethodPut, path: fmt.Sprintf("/v1/groups/%d", existing.ID),
			token: env.token(t, other), body: marchallObj(t, lesson.UpdateGroup{Name: "Mine", Subject: sub.ID}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
	})

	// back to back is not an overlap
	rec := env.do(t, http.MethodPost, "/v1/groups", env.token(t, teacher), newGroup(slot(1, "11:00"), slot(2, "10:00")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var grp lesson.Group
	decode(t, rec, &grp)
	assert.Equal(t, teacher.ID, grp.TeacherID)
	assert.Len(t, grp.Lessons, 2)

	// the other teacher's schedule is independent
	rec = env.do(t, http.MethodPost, "/v1/groups", env.token(t, other), newGroup(slot(1, "10:00")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/groups/weekday/2", env.token(t, student))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Total int            `json:"total"`
		Data  []lesson.Group `json:"data"`
	}
	decode(t, rec, &page)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, grp.ID, page.Data[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/groups", env.token(t, teacher))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Total)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/v1/groups/%d", existing.ID), env.token(t, teacher))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Lesson group deleted.", decode(t, rec).Message)

	// deleted groups free their slots
	rec = env.do(t, http.MethodPost, "/v1/groups", env.token(t, teacher), newGroup(slot(1, "09:30")))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/groups/%d", existing.ID), env.token(t, teacher))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_lessonApi_lessons(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	other := env.Teacher(t, "other", 1, 0)
	grp := env.Group(t, teacher, "Morning", slot(1, "10:00"))
	lsn := grp.Lessons[0]
	path := fmt.Sprintf("/v1/lessons/%d", lsn.ID)

	env.run(t, []httpTest{
		{
			name: "overlapping lesson", method: http.MethodPost, path: "/v1/lessons", token: env.token(t, teacher),
			body:     marchallObj(t, lesson.NewLesson{Group: grp.ID, WeekDay: 1, Time: "09:30"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "other teacher", method: http.MethodPut, path: path, token: env.token(t, other),
			body:     marchallObj(t, lesson.UpdateLesson{WeekDay: 1, Time: "12:00"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "unknown lesson", method: http.MethodPut, path: "/v1/lessons/999", token: env.token(t, teacher),
			body:     marchallObj(t, lesson.UpdateLesson{WeekDay: 1, Time: "12:00"}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("lesson not found")),
		},
	})

	// moving a lesson slightly does not conflict with itself
	rec := env.do(t, http.MethodPut, path, env.token(t, teacher), marchallObj(t, lesson.UpdateLesson{WeekDay: 1, Time: "10:15"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated lesson.Lesson
	decode(t, rec, &updated)
	assert.Equal(t, core.NewClock(10, 15), updated.Time)

	rec = env.do(t, http.MethodPost, "/v1/lessons", env.token(t, teacher),
		marchallObj(t, lesson.NewLesson{Group: grp.ID, WeekDay: 4, Time: "14:00"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, path+"/group-lessons", env.token(t, other))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lessons []lesson.Lesson
	decode(t, rec, &lessons)
	assert.Len(t, lessons, 2)
}

func Test_lessonApi_operations(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	other := env.Teacher(t, "other", 1, 0)
	student := env.Student(t, "student")
	grp := env.Group(t, teacher, "Morning", slot(1, "10:00"), slot(1, "14:00"))
	env.Enroll(t, teacher, grp, student)
	lsn := grp.Lessons[0]
	path := fmt.Sprintf("/v1/lessons/%d", lsn.ID)
	tok := env.token(t, teacher)

	env.run(t, []httpTest{
		{
			name: "wrong week day", method: http.MethodPost, path: path + "/cancel", token: tok,
			body: []byte(`{"date": "09-03-2021"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(lesson.ErrWeekdayMismatch.Error(), map[string]string{"date": lesson.ErrWeekdayMismatch.Error()})),
		},
		{
			name: "date passed", method: http.MethodPost, path: path + "/cancel", token: tok,
			body: []byte(`{"date": "22-02-2021"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs(lesson.ErrDatePassed.Error(), map[string]string{"date": lesson.ErrDatePassed.Error()})),
		},
		{
			name: "other teacher", method: http.MethodPost, path: path + "/cancel", token: env.token(t, other),
			body: []byte(`{"date": "08-03-2021"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "added lesson overlaps", method: http.MethodPost, path: path + "/add", token: tok,
			body: []byte(`{"date": "08-03-2021 13:30"}`), wantCode: http.StatusBadRequest,
		},
	})

	inbox := len(env.Inbox(t, student))
	rec := env.do(t, http.MethodPost, path+"/cancel", tok, []byte(`{"date": "08-03-2021", "reason": "holiday"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var op lesson.Operation
	decode(t, rec, &op)
	assert.Equal(t, lesson.OpCancel, op.Type)
	assert.Len(t, env.Inbox(t, student), inbox+1)

	rec = env.do(t, http.MethodPost, path+"/cancel", tok, []byte(`{"date": "08-03-2021"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, lesson.ErrExceptionExists.Error(), decode(t, rec).Message)

	var day struct {
		Total int                   `json:"total"`
		Data  []lesson.LessonOnDate `json:"data"`
	}
	rec = env.do(t, http.MethodGet, "/v1/lessons/day?date=08-03-2021", tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &day)
	require.Equal(t, 1, day.Total)
	assert.Equal(t, grp.Lessons[1].ID, day.Data[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/lessons/day?date=08-03-2021&include_cancelled=true", tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &day)
	require.Equal(t, 2, day.Total)
	require.NotNil(t, day.Data[0].Operation)
	assert.Equal(t, op.ID, day.Data[0].Operation.ID)

	env.run(t, []httpTest{
		{
			name: "other teacher cannot delete", method: http.MethodDelete, path: fmt.Sprintf("/v1/lesson-operations/%d", op.ID),
			token: env.token(t, other), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown operation", method: http.MethodDelete, path: "/v1/lesson-operations/999", token: tok,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("lesson operation not found")),
		},
		{
			name: "deleted", method: http.MethodDelete, path: fmt.Sprintf("/v1/lesson-operations/%d", op.ID), token: tok,
			wantCode: http.StatusOK, wantData: marchallObj(t, okMsg("Lesson operation deleted.")),
		},
		{
			name: "missing date", path: "/v1/lessons/day", token: tok, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("", map[string]string{"date": "this field is required"})),
		},
	})

	rec = env.do(t, http.MethodPost, path+"/transfer", tok,
		[]byte(`{"date_cancel": "15-03-2021", "date_add": "16-03-2021 10:00", "reason": "trip"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ops []lesson.Operation
	decode(t, rec, &ops)
	require.Len(t, ops, 2)
	assert.Equal(t, lesson.OpCancel, ops[0].Type)
	assert.Equal(t, lesson.OpAdd, ops[1].Type)
}
