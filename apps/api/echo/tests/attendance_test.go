package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/user"
)

type attendanceFixture struct {
	apiEnv
	teacher, other    user.User
	alice, bob        user.User
	parent, stranger  user.User
	lessonID, groupID int
}

func newAttendanceFixture(t *testing.T) attendanceFixture {
	t.Helper()
	env := setup(t)
	f := attendanceFixture{
		apiEnv:  env,
		teacher: env.Teacher(t, "teacher", 1, 0),
		other:   env.Teacher(t, "other", 1, 0),
		alice:   env.Student(t, "alice"),
		bob:     env.Student(t, "bob"),
	}
	f.parent = env.Parent(t, "parent", f.alice)
	f.stranger = env.Parent(t, "stranger", f.bob)
	grp := env.Group(t, f.teacher, "Morning", slot(1, "10:00"))
	env.Enroll(t, f.teacher, grp, f.alice, f.bob)
	f.lessonID, f.groupID = grp.Lessons[0].ID, grp.ID
	return f
}

func intPtr(i int) *int { return &i }

func Test_attendanceApi_setStatus(t *testing.T) {
	f := newAttendanceFixture(t)
	body := func(student int, typ string) []byte {
		return marchallObj(t, attendance.SetStatus{Student: student, Lesson: f.lessonID, Type: typ})
	}

	f.run(t, []httpTest{
		{
			name: "teachers only", method: http.MethodPut, path: "/v1/attendance/type", token: f.token(t, f.alice),
			body: body(f.alice.ID, attendance.TypeLate), wantCode: http.StatusForbidden,
		},
		{
			name: "not the lesson's teacher", method: http.MethodPut, path: "/v1/attendance/type", token: f.token(t, f.other),
			body: body(f.alice.ID, attendance.TypeLate), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "invalid type", method: http.MethodPut, path: "/v1/attendance/type", token: f.token(t, f.teacher),
			body: body(f.alice.ID, "sleeping"), wantCode: http.StatusBadRequest,
		},
		{
			name: "not a student", method: http.MethodPut, path: "/v1/attendance/type", token: f.token(t, f.teacher),
			body: body(f.parent.ID, attendance.TypeLate), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("student not found", map[string]string{"student": "student not found"})),
		},
	})

	rec := f.do(t, http.MethodPut, "/v1/attendance/type", f.token(t, f.teacher), body(f.alice.ID, attendance.TypeLate))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first attendance.Record
	decode(t, rec, &first)
	assert.Equal(t, attendance.TypeLate, first.Type)
	assert.Equal(t, core.Today().String(), first.Date.String())

	// one record per student, lesson and day
	rec = f.do(t, http.MethodPut, "/v1/attendance/type", f.token(t, f.teacher), body(f.alice.ID, attendance.TypeAbsent))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second attendance.Record
	decode(t, rec, &second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, attendance.TypeAbsent, second.Type)
}

func Test_attendanceApi_grade(t *testing.T) {
	f := newAttendanceFixture(t)
	tok := f.token(t, f.teacher)

	rec := f.do(t, http.MethodPut, "/v1/attendance", tok, marchallObj(t, attendance.Grade{
		Student: f.alice.ID, Lesson: f.lessonID, Type: attendance.TypeInTime, MarkHome: intPtr(80), NoteHome: "good",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var r attendance.Record
	decode(t, rec, &r)
	assert.Equal(t, 80, r.MarkHome.Int)
	assert.False(t, r.MarkLesson.Valid)

	f.run(t, []httpTest{
		{
			name: "mark out of range", method: http.MethodPut, path: "/v1/attendance/lesson-work", token: tok,
			body:     marchallObj(t, attendance.BatchGrade{Students: []int{f.alice.ID}, Lesson: f.lessonID, Mark: intPtr(101)}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "mark required", method: http.MethodPut, path: "/v1/attendance/home-work", token: tok,
			body:     marchallObj(t, attendance.BatchGrade{Students: []int{f.alice.ID}, Lesson: f.lessonID}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("", map[string]string{"mark": "this field is required"})),
		},
		{
			name: "every student is checked", method: http.MethodPut, path: "/v1/attendance/lesson-work", token: tok,
			body:     marchallObj(t, attendance.BatchGrade{Students: []int{f.alice.ID, f.parent.ID}, Lesson: f.lessonID, Mark: intPtr(50)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, fieldErrs("student not found", map[string]string{"students": "student not found"})),
		},
	})

	rec = f.do(t, http.MethodPut, "/v1/attendance/lesson-work", tok, marchallObj(t, attendance.BatchGrade{
		Students: []int{f.alice.ID, f.bob.ID}, Lesson: f.lessonID, Mark: intPtr(70), Note: "quiz",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var records []attendance.Record
	decode(t, rec, &records)
	require.Len(t, records, 2)
	assert.Equal(t, r.ID, records[0].ID)
	assert.Equal(t, 80, records[0].MarkHome.Int, "batch grading keeps the other marks")
	assert.Equal(t, 70, records[1].MarkLesson.Int)
	assert.Equal(t, attendance.TypeInTime, records[1].Type)

	var ratings struct {
		Total int                 `json:"total"`
		Data  []attendance.Rating `json:"data"`
	}
	rec = f.do(t, http.MethodGet, "/v1/ratings?filter=day", tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &ratings)
	require.Equal(t, 2, ratings.Total)
	assert.Equal(t, attendance.Rating{StudentID: f.alice.ID, Name: f.alice.Name, TotalMark: 150}, ratings.Data[0])
	assert.Equal(t, attendance.Rating{StudentID: f.bob.ID, Name: f.bob.Name, TotalMark: 70}, ratings.Data[1])

	rec = f.do(t, http.MethodGet, "/v1/ratings", f.token(t, f.other))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &ratings)
	assert.Zero(t, ratings.Total)
}

func Test_attendanceApi_absenceAndAcknowledge(t *testing.T) {
	f := newAttendanceFixture(t)
	teacherInbox := len(f.Inbox(t, f.teacher))
	parentInbox := len(f.Inbox(t, f.parent))

	f.run(t, []httpTest{
		{
			name: "students only", method: http.MethodPost, path: "/v1/attendance/absent", token: f.token(t, f.teacher),
			body: marchallObj(t, attendance.ReportAbsence{Lesson: f.lessonID}), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown lesson", method: http.MethodPost, path: "/v1/attendance/absent", token: f.token(t, f.alice),
			body: marchallObj(t, attendance.ReportAbsence{Lesson: 999}), wantCode: http.StatusNotFound,
		},
	})

	rec := f.do(t, http.MethodPost, "/v1/attendance/absent", f.token(t, f.alice),
		marchallObj(t, attendance.ReportAbsence{Lesson: f.lessonID, Note: "dentist"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r attendance.Record
	decode(t, rec, &r)
	assert.Equal(t, attendance.TypeAbsent, r.Type)
	assert.Len(t, f.Inbox(t, f.teacher), teacherInbox+1)
	assert.Len(t, f.Inbox(t, f.parent), parentInbox+1)

	path := fmt.Sprintf("/v1/attendance/%d", r.ID)
	f.run(t, []httpTest{
		{name: "other student", path: path, token: f.token(t, f.bob), wantCode: http.StatusForbidden},
		{name: "other parent", path: path, token: f.token(t, f.stranger), wantCode: http.StatusForbidden},
		{
			name: "unknown record", path: "/v1/attendance/999", token: f.token(t, f.teacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("attendance record not found")),
		},
		{
			name: "only parents acknowledge", method: http.MethodPost, path: path + "/acknowledge", token: f.token(t, f.alice),
			wantCode: http.StatusForbidden,
		},
		{
			name: "not the student's parent", method: http.MethodPost, path: path + "/acknowledge", token: f.token(t, f.stranger),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
	})

	// reading is not acknowledging
	rec = f.do(t, http.MethodGet, path, f.token(t, f.parent))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &r)
	assert.False(t, r.ParentSeen)
	require.NotNil(t, r.Student)
	assert.Equal(t, f.alice.Name, r.Student.Name)

	rec = f.do(t, http.MethodPost, path+"/acknowledge", f.token(t, f.parent))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &r)
	assert.True(t, r.ParentSeen)

	var counts struct {
		Data []attendance.SeenCount `json:"data"`
	}
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/groups/%d/seen-counts", f.groupID), f.token(t, f.teacher))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &counts)
	require.Len(t, counts.Data, 2)
	assert.Equal(t, f.parent.ID, counts.Data[0].ParentID)
	assert.Equal(t, 1, counts.Data[0].Seen)
	assert.Zero(t, counts.Data[0].NotSeen)
	assert.Equal(t, f.stranger.ID, counts.Data[1].ParentID)
	assert.Zero(t, counts.Data[1].Seen+counts.Data[1].NotSeen)

	f.run(t, []httpTest{
		{
			name: "other teacher cannot delete", method: http.MethodDelete, path: path, token: f.token(t, f.other),
			wantCode: http.StatusForbidden,
		},
		{
			name: "deleted", method: http.MethodDelete, path: path, token: f.token(t, f.teacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, okMsg("Attendance record deleted.")),
		},
		{name: "gone", path: path, token: f.token(t, f.teacher), wantCode: http.StatusNotFound},
	})
}

func Test_attendanceApi_reads(t *testing.T) {
	f := newAttendanceFixture(t)
	tok := f.token(t, f.teacher)

	rec := f.do(t, http.MethodPut, "/v1/attendance", tok, marchallObj(t, attendance.Grade{
		Student: f.alice.ID, Lesson: f.lessonID, Type: attendance.TypeLate, MarkHome: intPtr(60),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lastWeek := core.Today().AddDays(-7)
	rec = f.do(t, http.MethodPut, "/v1/attendance", tok, marchallObj(t, attendance.Grade{
		Student: f.alice.ID, Lesson: f.lessonID, Date: &lastWeek, Type: attendance.TypeAbsent,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	query := fmt.Sprintf("?lesson=%d&student=%d", f.lessonID, f.alice.ID)
	f.run(t, []httpTest{
		{name: "filter required", path: "/v1/attendance/student", token: tok, wantCode: http.StatusBadRequest},
		{name: "other student", path: "/v1/attendance/student" + query, token: f.token(t, f.bob), wantCode: http.StatusForbidden},
		{name: "other parent", path: "/v1/attendance/statistic" + query, token: f.token(t, f.stranger), wantCode: http.StatusForbidden},
		{name: "unknown log kind", path: "/v1/attendance/logs/grades" + query, token: tok, wantCode: http.StatusBadRequest},
		{
			name: "invalid start date", path: "/v1/attendance/logs/attendance" + query + "&start_date=2021-03-01", token: tok,
			wantCode: http.StatusBadRequest,
		},
	})

	var page struct {
		Total int                 `json:"total"`
		Data  []attendance.Record `json:"data"`
	}
	rec = f.do(t, http.MethodGet, "/v1/attendance/student"+query, f.token(t, f.parent))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Total)

	rec = f.do(t, http.MethodGet, "/v1/attendance/statistic"+query, f.token(t, f.alice))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats map[string]int
	decode(t, rec, &stats)
	assert.Equal(t, map[string]int{
		attendance.TypeAbsent: 1, attendance.TypeInTime: 0, attendance.TypeLate: 1, attendance.TypeLeftEarlier: 0,
	}, stats)

	var logs struct {
		Total int                      `json:"total"`
		Data  []map[string]interface{} `json:"data"`
	}
	rec = f.do(t, http.MethodGet, "/v1/attendance/logs/home_work"+query+"&start_date="+core.Today().Format("02-01-2006"), tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &logs)
	require.Equal(t, 1, logs.Total)
	assert.Equal(t, map[string]interface{}{
		"date": core.Today().String(), "mark_home": float64(60), "note_home": nil,
	}, logs.Data[0])

	rec = f.do(t, http.MethodGet, "/v1/attendance/logs/attendance/export"+query, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), fmt.Sprintf("attendance-%d-%d.xlsx", f.lessonID, f.alice.ID))
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/lessons/%d/attendance", f.lessonID), tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Total)
}

func Test_attendanceApi_subjectRating(t *testing.T) {
	f := newAttendanceFixture(t)
	_, grp, err := f.Lessons.LessonGroup(context.Background(), f.lessonID)
	require.NoError(t, err)
	other := f.Group(t, f.other, "Elsewhere", slot(2, "10:00"))

	rec := f.do(t, http.MethodPut, "/v1/attendance/home-work", f.token(t, f.teacher), marchallObj(t, attendance.BatchGrade{
		Students: []int{f.alice.ID, f.bob.ID}, Lesson: f.lessonID, Mark: intPtr(90),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPut, "/v1/attendance/lesson-work", f.token(t, f.teacher), marchallObj(t, attendance.BatchGrade{
		Students: []int{f.bob.ID}, Lesson: f.lessonID, Mark: intPtr(50),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := fmt.Sprintf("/v1/ratings/subjects/%d", grp.SubjectID)
	want := []attendance.Rating{
		{StudentID: f.bob.ID, Name: f.bob.Name, TotalMark: 140},
		{StudentID: f.alice.ID, Name: f.alice.Name, TotalMark: 90},
	}
	f.run(t, []httpTest{
		{name: "teachers are not family", path: path, token: f.token(t, f.teacher), wantCode: http.StatusForbidden},
		{name: "student", path: path, token: f.token(t, f.alice), wantCode: http.StatusOK, wantData: marchallObj(t, okResp(want))},
		{name: "parent", path: path + "?filter=week", token: f.token(t, f.parent), wantCode: http.StatusOK, wantData: marchallObj(t, okResp(want))},
		{
			name: "not the parent's child", path: fmt.Sprintf("%s?student=%d", path, f.bob.ID), token: f.token(t, f.parent),
			wantCode: http.StatusForbidden,
		},
		{
			name: "subject not attended", path: fmt.Sprintf("/v1/ratings/subjects/%d", other.SubjectID), token: f.token(t, f.alice),
			wantCode: http.StatusOK, wantData: marchallObj(t, okResp([]attendance.Rating{})),
		},
	})

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/lessons/%d/excellent-student", f.lessonID), f.token(t, f.teacher))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"data":null`, "nobody has a record last week")
}
