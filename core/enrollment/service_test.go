package enrollment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
	testutil "github.com/trezcool/ratiba/tests"
)

type fixture struct {
	env     *testutil.Env
	teacher user.User
	algebra lesson.Group // Monday 09:00, Wednesday 09:00
	physics lesson.Group // Friday 14:00
	jane    user.User
	parent  user.User
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	f := fixture{env: env, teacher: env.Teacher(t, "teacher", 1, 0)}
	f.algebra = env.Group(t, f.teacher, "Algebra",
		lesson.NewLessonSlot{WeekDay: 1, Time: "09:00"},
		lesson.NewLessonSlot{WeekDay: 3, Time: "09:00"},
	)
	f.physics = env.Group(t, f.teacher, "Physics", lesson.NewLessonSlot{WeekDay: 5, Time: "14:00"})
	f.jane = env.Student(t, "jane")
	f.parent = env.Parent(t, "parent", f.jane)
	return f
}

func lessonIDs(grp lesson.Group) []int {
	ids := make([]int, 0, len(grp.Lessons))
	for _, l := range grp.Lessons {
		ids = append(ids, l.ID)
	}
	return ids
}

func TestService_Request(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.env.Enrollments.Request(ctx, f.teacher, enrollment.Request{Lessons: []int{f.algebra.Lessons[0].ID}})
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[0].ID, f.physics.Lessons[0].ID}})
	assert.True(t, core.IsValidation(err, enrollment.ErrMixedGroups), "got %v", err)

	e, err := f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[0].ID}, Note: "please"})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusNone, e.Status)
	assert.Equal(t, f.algebra.ID, e.GroupID)
	assert.Equal(t, []int{f.algebra.Lessons[0].ID}, e.LessonIDs)

	ns := f.env.Inbox(t, f.teacher)
	require.Len(t, ns, 1)
	assert.Equal(t, notification.KindRequestGroup, ns[0].Kind)
	assert.Equal(t, null.StringFrom("please"), ns[0].Note)
	assert.Equal(t, null.IntFrom(e.ID), ns[0].RelatedID)

	_, err = f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[0].ID}})
	assert.True(t, core.IsValidation(err, enrollment.ErrAlreadyEnrolled), "got %v", err)

	again, err := f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[1].ID}})
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID, "one enrollment per student and group")

	stored, err := f.env.EnrollmentRepo.GetEnrollment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lessonIDs(f.algebra), stored.LessonIDs)
}

func TestService_AcceptDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[0].ID}})
	require.NoError(t, err)

	other := f.env.Teacher(t, "other", 1, 0)
	_, err = f.env.Enrollments.Accept(ctx, other, enrollment.Decision{Student: f.jane.ID, Group: f.algebra.ID})
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = f.env.Enrollments.Accept(ctx, f.teacher, enrollment.Decision{Student: f.jane.ID, Group: f.physics.ID})
	assert.True(t, core.IsNotFound(err))

	accepted, err := f.env.Enrollments.Accept(ctx, f.teacher, enrollment.Decision{Student: f.jane.ID, Lesson: f.algebra.Lessons[0].ID, Reason: "welcome"})
	require.NoError(t, err)
	assert.Equal(t, e.ID, accepted.ID)
	assert.Equal(t, enrollment.StatusAccept, accepted.Status)
	assert.Equal(t, []int{f.algebra.Lessons[0].ID}, accepted.LessonIDs)

	students, err := f.env.EnrollmentRepo.QueryAcceptedStudentIDs(ctx, f.algebra.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{f.jane.ID}, students)

	for _, usr := range []user.User{f.jane, f.parent} {
		ns := f.env.Inbox(t, usr)
		require.Len(t, ns, 1)
		assert.Equal(t, "Joined the group", ns[0].Title)
		assert.Equal(t, "welcome", ns[0].Content)
	}

	declined, err := f.env.Enrollments.Decline(ctx, f.teacher, enrollment.Decision{Student: f.jane.ID, Group: f.algebra.ID})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusDecline, declined.Status)
	assert.Equal(t, "Group request declined", f.env.Inbox(t, f.jane)[0].Title)
}

func TestService_ChangeStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[0].ID}})
	require.NoError(t, err)

	_, err = f.env.Enrollments.ChangeStatus(ctx, f.jane, e.ID, enrollment.ChangeStatus{Status: enrollment.StatusAccept})
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	admin := f.env.Admin(t, "admin")
	changed, err := f.env.Enrollments.ChangeStatus(ctx, admin, e.ID, enrollment.ChangeStatus{Status: enrollment.StatusAccept, Reason: "override"})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusAccept, changed.Status)
	assert.Equal(t, null.StringFrom("override"), changed.Reason)
	assert.Empty(t, f.env.Inbox(t, f.jane), "status changes are silent")

	_, err = f.env.Enrollments.ChangeStatus(ctx, admin, 999, enrollment.ChangeStatus{Status: enrollment.StatusNone})
	assert.True(t, core.IsNotFound(err))
}

func TestService_Transfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.env.Enroll(t, f.teacher, f.algebra, f.jane)

	other := f.env.Teacher(t, "other", 1, 0)
	foreign := f.env.Group(t, other, "Biology", lesson.NewLessonSlot{WeekDay: 2, Time: "08:00"})
	_, err := f.env.Enrollments.Transfer(ctx, f.teacher, enrollment.Transfer{Student: f.jane.ID, OldGroup: f.algebra.ID, NewGroup: foreign.ID})
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	e, err := f.env.Enrollments.Transfer(ctx, f.teacher, enrollment.Transfer{
		Student:  f.jane.ID,
		OldGroup: f.algebra.ID,
		NewGroup: f.physics.ID,
		Reason:   "level",
	})
	require.NoError(t, err)
	assert.Equal(t, f.physics.ID, e.GroupID)
	assert.Equal(t, lessonIDs(f.physics), e.LessonIDs)
	assert.Equal(t, enrollment.StatusAccept, e.Status)

	students, err := f.env.EnrollmentRepo.QueryAcceptedStudentIDs(ctx, f.algebra.ID)
	require.NoError(t, err)
	assert.Empty(t, students)

	has, err := f.env.EnrollmentRepo.StudentHasLesson(ctx, f.jane.ID, lessonIDs(f.algebra))
	require.NoError(t, err)
	assert.False(t, has, "old lessons are detached")

	ns := f.env.Inbox(t, f.parent)
	require.NotEmpty(t, ns)
	assert.Equal(t, "Group transfer", ns[0].Title)
}

func TestService_AddToGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.env.Enrollments.AddToGroup(ctx, f.teacher, enrollment.AddToGroup{Student: f.parent.ID, Group: f.algebra.ID})
	assert.True(t, core.IsValidation(err, enrollment.ErrNotStudent), "got %v", err)

	pending, err := f.env.Enrollments.Request(ctx, f.jane, enrollment.Request{Lessons: []int{f.algebra.Lessons[1].ID}})
	require.NoError(t, err)

	e, err := f.env.Enrollments.AddToGroup(ctx, f.teacher, enrollment.AddToGroup{Student: f.jane.ID, Lesson: f.algebra.Lessons[0].ID})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, e.ID, "the pending request is reused")
	assert.Equal(t, enrollment.StatusAccept, e.Status)
	assert.Equal(t, lessonIDs(f.algebra), e.LessonIDs)

	es, err := f.env.Enrollments.GroupEnrollments(ctx, f.teacher, f.algebra.ID)
	require.NoError(t, err)
	require.Len(t, es, 1)
	assert.Equal(t, lessonIDs(f.algebra), es[0].LessonIDs)

	_, err = f.env.Enrollments.GroupEnrollments(ctx, f.jane, f.algebra.ID)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}
