package enrollment

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("enrollment not found")
	ErrMixedGroups     = errors.New("all lessons must belong to the same group")
	ErrAlreadyEnrolled = errors.New("you are already enrolled in one of these lessons")
	ErrNotStudent      = errors.New("user is not a student")
)

type (
	Repository interface {
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) (Enrollment, error)
		// FindEnrollment returns the first matching enrollment, or ErrNotFound.
		FindEnrollment(ctx context.Context, filter Filter, exec ...core.DBExecutor) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, groupID int, exec ...core.DBExecutor) ([]Enrollment, error)
		// AttachLessons adds lessons to the enrollment, SyncLessons replaces them.
		AttachLessons(ctx context.Context, enrollmentID int, lessonIDs []int, exec ...core.DBExecutor) error
		SyncLessons(ctx context.Context, enrollmentID int, lessonIDs []int, exec ...core.DBExecutor) error
		// StudentHasLesson reports whether the student is attached to any of the lessons.
		StudentHasLesson(ctx context.Context, studentID int, lessonIDs []int, exec ...core.DBExecutor) (bool, error)
		QueryAcceptedStudentIDs(ctx context.Context, groupID int, exec ...core.DBExecutor) ([]int, error)
	}

	Service interface {
		Request(ctx context.Context, actor user.User, r Request) (Enrollment, error)
		Accept(ctx context.Context, actor user.User, d Decision) (Enrollment, error)
		Decline(ctx context.Context, actor user.User, d Decision) (Enrollment, error)
		ChangeStatus(ctx context.Context, actor user.User, id int, cs ChangeStatus) (Enrollment, error)
		Transfer(ctx context.Context, actor user.User, t Transfer) (Enrollment, error)
		AddToGroup(ctx context.Context, actor user.User, ag AddToGroup) (Enrollment, error)
		GroupEnrollments(ctx context.Context, actor user.User, groupID int) ([]Enrollment, error)
	}

	service struct {
		repo     Repository
		lessons  lesson.Service
		users    user.Service
		notifier notification.Dispatcher
		tx       core.TxRunner
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	lessons lesson.Service,
	users user.Service,
	notifier notification.Dispatcher,
	tx core.TxRunner,
) Service {
	return &service{
		repo:     repo,
		lessons:  lessons,
		users:    users,
		notifier: notifier,
		tx:       tx,
	}
}

func invalid(err error, field string) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// Request enrolls the actor in some lessons of a group, pending the teacher's decision.
func (svc *service) Request(ctx context.Context, actor user.User, r Request) (Enrollment, error) {
	if !actor.IsStudent() {
		return Enrollment{}, core.ErrPermissionDenied
	}

	var grp lesson.Group
	for i, lessonID := range r.Lessons {
		_, g, err := svc.lessons.LessonGroup(ctx, lessonID)
		if err != nil {
			return Enrollment{}, err
		}
		if i > 0 && g.ID != grp.ID {
			return Enrollment{}, invalid(ErrMixedGroups, "lessons")
		}
		grp = g
	}

	var e Enrollment
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		enrolled, err := svc.repo.StudentHasLesson(ctx, actor.ID, r.Lessons, exec)
		if err != nil {
			return errors.Wrap(err, "checking student lessons")
		}
		if enrolled {
			return invalid(ErrAlreadyEnrolled, "lessons")
		}

		e, err = svc.repo.FindEnrollment(ctx, Filter{StudentID: actor.ID, GroupID: grp.ID}, exec)
		if err != nil {
			if !core.IsNotFound(err) {
				return errors.Wrap(err, "finding enrollment")
			}
			now := core.NowFunc().UTC()
			e, err = svc.repo.CreateEnrollment(ctx, Enrollment{
				GroupID:   grp.ID,
				StudentID: actor.ID,
				Status:    StatusNone,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
			if err != nil {
				return errors.Wrap(err, "inserting enrollment")
			}
		}
		if err = svc.repo.AttachLessons(ctx, e.ID, r.Lessons, exec); err != nil {
			return errors.Wrap(err, "attaching lessons")
		}
		e.LessonIDs = append(e.LessonIDs, r.Lessons...)

		_, err = svc.notifier.Dispatch(ctx, actor.ID, notification.GroupRequest{
			StudentName:  actor.Name,
			GroupName:    grp.Name,
			TeacherID:    grp.TeacherID,
			Message:      r.Note,
			EnrollmentID: e.ID,
		}, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// resolve finds the student's enrollment in a group, or the one attached to a lesson, and authorizes actor.
func (svc *service) resolve(ctx context.Context, actor user.User, studentID, groupID, lessonID int) (Enrollment, error) {
	filter := Filter{StudentID: studentID, GroupID: groupID}
	if groupID == 0 {
		filter = Filter{StudentID: studentID, LessonID: lessonID}
	}
	e, err := svc.repo.FindEnrollment(ctx, filter)
	if err != nil {
		return Enrollment{}, err
	}
	if _, err = svc.lessons.AuthorizeGroup(ctx, actor, e.GroupID); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

func (svc *service) decide(ctx context.Context, actor user.User, d Decision, status string, action notification.EnrollmentAction) (Enrollment, error) {
	e, err := svc.resolve(ctx, actor, d.Student, d.Group, d.Lesson)
	if err != nil {
		return Enrollment{}, err
	}

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		e.Status = status
		e.Reason = null.NewString(d.Reason, d.Reason != "")
		e.UpdatedAt = core.NowFunc().UTC()
		var err error
		if e, err = svc.repo.UpdateEnrollment(ctx, e, exec); err != nil {
			return errors.Wrap(err, "updating enrollment")
		}
		_, err = svc.notifier.Dispatch(ctx, actor.ID, notification.EnrollmentChange{
			Action:       action,
			StudentID:    e.StudentID,
			Reason:       d.Reason,
			EnrollmentID: e.ID,
		}, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

func (svc *service) Accept(ctx context.Context, actor user.User, d Decision) (Enrollment, error) {
	return svc.decide(ctx, actor, d, StatusAccept, notification.EnrollmentAccepted)
}

func (svc *service) Decline(ctx context.Context, actor user.User, d Decision) (Enrollment, error) {
	return svc.decide(ctx, actor, d, StatusDecline, notification.EnrollmentDeclined)
}

// ChangeStatus overrides the status, without telling anyone.
func (svc *service) ChangeStatus(ctx context.Context, actor user.User, id int, cs ChangeStatus) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if _, err = svc.lessons.AuthorizeGroup(ctx, actor, e.GroupID); err != nil {
		return Enrollment{}, err
	}
	e.Status = cs.Status
	e.Reason = null.NewString(cs.Reason, cs.Reason != "")
	e.UpdatedAt = core.NowFunc().UTC()
	if e, err = svc.repo.UpdateEnrollment(ctx, e); err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return e, nil
}

// repoint moves the enrollment to grp and attaches it to all of grp's lessons.
func (svc *service) repoint(ctx context.Context, e Enrollment, grp lesson.Group, exec core.DBExecutor) (Enrollment, error) {
	lessonIDs, err := svc.lessons.LessonIDs(ctx, lesson.GroupFilter{IDs: []int{grp.ID}})
	if err != nil {
		return Enrollment{}, err
	}
	e.GroupID = grp.ID
	e.UpdatedAt = core.NowFunc().UTC()
	if e.ID == 0 {
		e.CreatedAt = e.UpdatedAt
		if e, err = svc.repo.CreateEnrollment(ctx, e, exec); err != nil {
			return Enrollment{}, errors.Wrap(err, "inserting enrollment")
		}
	} else if e, err = svc.repo.UpdateEnrollment(ctx, e, exec); err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if err = svc.repo.SyncLessons(ctx, e.ID, lessonIDs, exec); err != nil {
		return Enrollment{}, errors.Wrap(err, "syncing lessons")
	}
	e.LessonIDs = lessonIDs
	return e, nil
}

// Transfer moves a student's enrollment to another group; actor must manage both groups.
func (svc *service) Transfer(ctx context.Context, actor user.User, t Transfer) (Enrollment, error) {
	e, err := svc.resolve(ctx, actor, t.Student, t.OldGroup, t.Lesson)
	if err != nil {
		return Enrollment{}, err
	}
	newGroup, err := svc.lessons.AuthorizeGroup(ctx, actor, t.NewGroup)
	if err != nil {
		return Enrollment{}, err
	}

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		e.Reason = null.NewString(t.Reason, t.Reason != "")
		var err error
		if e, err = svc.repoint(ctx, e, newGroup, exec); err != nil {
			return err
		}
		_, err = svc.notifier.Dispatch(ctx, actor.ID, notification.EnrollmentChange{
			Action:       notification.EnrollmentTransferred,
			StudentID:    e.StudentID,
			Reason:       t.Reason,
			EnrollmentID: e.ID,
		}, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// AddToGroup enrolls a student directly, accepted and attached to every lesson of the group.
func (svc *service) AddToGroup(ctx context.Context, actor user.User, ag AddToGroup) (Enrollment, error) {
	groupID := ag.Group
	if groupID == 0 {
		_, grp, err := svc.lessons.LessonGroup(ctx, ag.Lesson)
		if err != nil {
			return Enrollment{}, err
		}
		groupID = grp.ID
	}
	grp, err := svc.lessons.AuthorizeGroup(ctx, actor, groupID)
	if err != nil {
		return Enrollment{}, err
	}
	student, err := svc.users.GetByID(ctx, ag.Student)
	if err != nil {
		return Enrollment{}, err
	}
	if !student.IsStudent() {
		return Enrollment{}, invalid(ErrNotStudent, "student")
	}

	var e Enrollment
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		e, err = svc.repo.FindEnrollment(ctx, Filter{StudentID: student.ID, GroupID: grp.ID}, exec)
		if err != nil {
			if !core.IsNotFound(err) {
				return errors.Wrap(err, "finding enrollment")
			}
			e = Enrollment{StudentID: student.ID}
		}
		e.Status = StatusAccept
		e.Reason = null.NewString(ag.Reason, ag.Reason != "")
		if e, err = svc.repoint(ctx, e, grp, exec); err != nil {
			return err
		}
		_, err = svc.notifier.Dispatch(ctx, actor.ID, notification.EnrollmentChange{
			Action:       notification.EnrollmentAdded,
			StudentID:    e.StudentID,
			Reason:       ag.Reason,
			EnrollmentID: e.ID,
		}, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

func (svc *service) GroupEnrollments(ctx context.Context, actor user.User, groupID int) ([]Enrollment, error) {
	if _, err := svc.lessons.AuthorizeGroup(ctx, actor, groupID); err != nil {
		return nil, err
	}
	es, err := svc.repo.QueryEnrollments(ctx, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	if es == nil {
		es = []Enrollment{}
	}
	return es, nil
}
