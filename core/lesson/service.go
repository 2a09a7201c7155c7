package lesson

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
)

const (
	dayPerPage    = 10
	groupsPerPage = 20
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("lesson not found")
	ErrGroupNotFound     = core.NewNotFoundError("lesson group not found")
	ErrOperationNotFound = core.NewNotFoundError("lesson operation not found")
	ErrSubjectNotFound   = core.NewNotFoundError("subject not found")
	ErrOverlap           = errors.New("overlaps another lesson")
	ErrWeekdayMismatch   = errors.New("there is no lesson on this day")
	ErrDatePassed        = errors.New("this date has already passed")
	ErrExceptionExists   = errors.New("the lesson already has an operation on this date")
)

type (
	Repository interface {
		CreateSubject(ctx context.Context, sub Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]Subject, error)

		CreateGroup(ctx context.Context, grp Group, exec ...core.DBExecutor) (Group, error)
		// GetGroup returns ErrGroupNotFound for soft-deleted groups.
		GetGroup(ctx context.Context, id int, exec ...core.DBExecutor) (Group, error)
		UpdateGroup(ctx context.Context, grp Group, exec ...core.DBExecutor) (Group, error)
		// QueryGroups returns the groups ordered by id and their total count; a nil page returns all of them.
		QueryGroups(ctx context.Context, filter GroupFilter, page *core.Pagination, exec ...core.DBExecutor) ([]Group, int, error)

		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error
		// QueryLessons returns lessons ordered by week day, time and id.
		QueryLessons(ctx context.Context, filter LessonFilter, exec ...core.DBExecutor) ([]Lesson, error)

		CreateOperation(ctx context.Context, op Operation, exec ...core.DBExecutor) (Operation, error)
		GetOperation(ctx context.Context, id int, exec ...core.DBExecutor) (Operation, error)
		// FindOperation returns ErrOperationNotFound when the lesson has no operation on date.
		FindOperation(ctx context.Context, lessonID int, date core.Date, exec ...core.DBExecutor) (Operation, error)
		DeleteOperation(ctx context.Context, id int, exec ...core.DBExecutor) error
		// QueryOperationsOnDate returns the operations on date of all the lessons of the teacher.
		QueryOperationsOnDate(ctx context.Context, teacherID int, date core.Date, exec ...core.DBExecutor) ([]Operation, error)
	}

	// Roster knows which students attend a group.
	Roster interface {
		QueryAcceptedStudentIDs(ctx context.Context, groupID int, exec ...core.DBExecutor) ([]int, error)
	}

	Service interface {
		HasConflict(ctx context.Context, teacherID, weekDay int, t core.Clock, exclude ...int) (bool, error)

		CreateSubject(ctx context.Context, actor user.User, ns NewSubject) (Subject, error)
		Subjects(ctx context.Context) ([]Subject, error)

		CreateGroup(ctx context.Context, actor user.User, ng NewGroup) (Group, error)
		UpdateGroup(ctx context.Context, actor user.User, id int, ug UpdateGroup) (Group, error)
		DeleteGroup(ctx context.Context, actor user.User, id int) error
		GetGroup(ctx context.Context, id int) (Group, error)
		TeacherGroups(ctx context.Context, actor user.User, page int) (core.Page, error)
		GroupsByWeekDay(ctx context.Context, weekDay, page int) (core.Page, error)
		// AuthorizeGroup returns the group if actor may manage it.
		AuthorizeGroup(ctx context.Context, actor user.User, groupID int) (Group, error)

		CreateLesson(ctx context.Context, actor user.User, nl NewLesson) (Lesson, error)
		UpdateLesson(ctx context.Context, actor user.User, id int, ul UpdateLesson) (Lesson, error)
		DeleteLesson(ctx context.Context, actor user.User, id int) error
		// LessonGroup returns a lesson with its (non-deleted) group.
		LessonGroup(ctx context.Context, lessonID int) (Lesson, Group, error)
		GroupLessons(ctx context.Context, lessonID int) ([]Lesson, error)
		// LessonIDs returns the ids of all the lessons of the selected groups.
		LessonIDs(ctx context.Context, filter GroupFilter) ([]int, error)

		HasException(ctx context.Context, lessonID int, date core.Date) (bool, error)
		CancelLesson(ctx context.Context, actor user.User, lessonID int, cl CancelLesson) (Operation, error)
		AddLesson(ctx context.Context, actor user.User, lessonID int, al AddLesson) (Operation, error)
		TransferLesson(ctx context.Context, actor user.User, lessonID int, tl TransferLesson) ([]Operation, error)
		DeleteOperation(ctx context.Context, actor user.User, id int) error
		LessonsOnDate(ctx context.Context, actor user.User, filter DayFilter, page int) (core.Page, error)
	}

	service struct {
		repo     Repository
		roster   Roster
		users    user.Service
		notifier notification.Dispatcher
		tx       core.TxRunner
		metrics  core.Metrics
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	roster Roster,
	users user.Service,
	notifier notification.Dispatcher,
	tx core.TxRunner,
	metrics core.Metrics,
) Service {
	return &service{
		repo:     repo,
		roster:   roster,
		users:    users,
		notifier: notifier,
		tx:       tx,
		metrics:  metrics,
	}
}

func canManage(actor user.User, grp Group) bool {
	return actor.ID == grp.TeacherID || actor.IsAdmin()
}

func (svc *service) CreateSubject(ctx context.Context, actor user.User, ns NewSubject) (Subject, error) {
	if !actor.IsAdmin() {
		return Subject{}, core.ErrPermissionDenied
	}
	return svc.repo.CreateSubject(ctx, Subject{Name: ns.Name})
}

func (svc *service) Subjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx)
}

func (svc *service) checkSubject(ctx context.Context, id int) error {
	if _, err := svc.repo.GetSubject(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(ErrSubjectNotFound, core.FieldError{Field: "subject", Error: ErrSubjectNotFound.Error()})
		}
		return err
	}
	return nil
}

// CreateGroup creates a group with its weekly lessons. Every lesson is checked for conflicts, against
// the teacher's schedule and against the lessons before it in the same request.
func (svc *service) CreateGroup(ctx context.Context, actor user.User, ng NewGroup) (Group, error) {
	teacherID := actor.ID
	if ng.Teacher > 0 && actor.IsAdmin() {
		teacher, err := svc.users.GetByID(ctx, ng.Teacher)
		if err != nil {
			return Group{}, err
		}
		if !teacher.IsTeacher() {
			return Group{}, core.NewValidationError(user.ErrNotTeacher, core.FieldError{Field: "teacher", Error: user.ErrNotTeacher.Error()})
		}
		teacherID = teacher.ID
	} else if !actor.IsTeacher() {
		return Group{}, core.ErrPermissionDenied
	}

	if err := svc.checkSubject(ctx, ng.Subject); err != nil {
		return Group{}, err
	}

	slots := make([]Lesson, 0, len(ng.Lessons))
	for _, slot := range ng.Lessons {
		t, err := core.ParseClock(slot.Time)
		if err != nil {
			return Group{}, core.NewValidationError(err, core.FieldError{Field: "time", Error: err.Error()})
		}
		slots = append(slots, Lesson{WeekDay: slot.WeekDay, Time: t})
	}

	var grp Group
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		now := core.NowFunc().UTC()
		var err error
		grp, err = svc.repo.CreateGroup(ctx, Group{
			Name:      ng.Name,
			SubjectID: ng.Subject,
			TeacherID: teacherID,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "inserting lesson group")
		}

		for _, l := range slots {
			if err = svc.checkConflict(ctx, teacherID, l.WeekDay, l.Time, nil, exec); err != nil {
				return err
			}
			l.GroupID = grp.ID
			if l, err = svc.repo.CreateLesson(ctx, l, exec); err != nil {
				return errors.Wrap(err, "inserting lesson")
			}
			grp.Lessons = append(grp.Lessons, l)
		}
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	return grp, nil
}

func (svc *service) AuthorizeGroup(ctx context.Context, actor user.User, groupID int) (Group, error) {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if !canManage(actor, grp) {
		return Group{}, core.ErrPermissionDenied
	}
	return grp, nil
}

func (svc *service) UpdateGroup(ctx context.Context, actor user.User, id int, ug UpdateGroup) (Group, error) {
	grp, err := svc.AuthorizeGroup(ctx, actor, id)
	if err != nil {
		return Group{}, err
	}
	if err = svc.checkSubject(ctx, ug.Subject); err != nil {
		return Group{}, err
	}
	grp.Name = ug.Name
	grp.SubjectID = ug.Subject
	grp.UpdatedAt = core.NowFunc().UTC()
	if grp, err = svc.repo.UpdateGroup(ctx, grp); err != nil {
		return Group{}, errors.Wrap(err, "updating lesson group")
	}
	return svc.withLessons(ctx, grp)
}

// DeleteGroup soft-deletes the group: its lessons leave the schedule but its records are kept.
func (svc *service) DeleteGroup(ctx context.Context, actor user.User, id int) error {
	grp, err := svc.AuthorizeGroup(ctx, actor, id)
	if err != nil {
		return err
	}
	now := core.NowFunc().UTC()
	grp.DeletedAt = null.TimeFrom(now)
	grp.UpdatedAt = now
	if _, err = svc.repo.UpdateGroup(ctx, grp); err != nil {
		return errors.Wrap(err, "deleting lesson group")
	}
	return nil
}

func (svc *service) withLessons(ctx context.Context, grp Group) (Group, error) {
	lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{GroupIDs: []int{grp.ID}})
	if err != nil {
		return Group{}, errors.Wrap(err, "querying group lessons")
	}
	grp.Lessons = lessons
	return grp, nil
}

func (svc *service) GetGroup(ctx context.Context, id int) (Group, error) {
	grp, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	return svc.withLessons(ctx, grp)
}

func (svc *service) groupPage(ctx context.Context, filter GroupFilter, p core.Pagination) (core.Page, error) {
	groups, total, err := svc.repo.QueryGroups(ctx, filter, &p)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying lesson groups")
	}

	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	if len(ids) > 0 {
		lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{GroupIDs: ids})
		if err != nil {
			return core.Page{}, errors.Wrap(err, "querying group lessons")
		}
		byGroup := make(map[int][]Lesson)
		for _, l := range lessons {
			byGroup[l.GroupID] = append(byGroup[l.GroupID], l)
		}
		for i := range groups {
			groups[i].Lessons = byGroup[groups[i].ID]
		}
	}
	if groups == nil {
		groups = []Group{}
	}
	return core.NewPage(p, total, groups), nil
}

func (svc *service) TeacherGroups(ctx context.Context, actor user.User, page int) (core.Page, error) {
	return svc.groupPage(ctx, GroupFilter{TeacherID: actor.ID}, core.NewPagination(page, groupsPerPage))
}

func (svc *service) GroupsByWeekDay(ctx context.Context, weekDay, page int) (core.Page, error) {
	return svc.groupPage(ctx, GroupFilter{WeekDay: weekDay}, core.NewPagination(page, groupsPerPage))
}

func (svc *service) CreateLesson(ctx context.Context, actor user.User, nl NewLesson) (Lesson, error) {
	grp, err := svc.AuthorizeGroup(ctx, actor, nl.Group)
	if err != nil {
		return Lesson{}, err
	}
	t, err := core.ParseClock(nl.Time)
	if err != nil {
		return Lesson{}, core.NewValidationError(err, core.FieldError{Field: "time", Error: err.Error()})
	}

	var l Lesson
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkConflict(ctx, grp.TeacherID, nl.WeekDay, t, nil, exec); err != nil {
			return err
		}
		var err error
		l, err = svc.repo.CreateLesson(ctx, Lesson{GroupID: grp.ID, WeekDay: nl.WeekDay, Time: t}, exec)
		return errors.Wrap(err, "inserting lesson")
	})
	if err != nil {
		return Lesson{}, err
	}
	return l, nil
}

// authorizeLesson returns the lesson and its group if actor may manage them.
func (svc *service) authorizeLesson(ctx context.Context, actor user.User, lessonID int) (Lesson, Group, error) {
	l, grp, err := svc.LessonGroup(ctx, lessonID)
	if err != nil {
		return Lesson{}, Group{}, err
	}
	if !canManage(actor, grp) {
		return Lesson{}, Group{}, core.ErrPermissionDenied
	}
	return l, grp, nil
}

// UpdateLesson moves a weekly slot; the lesson's current slot is not checked against itself.
func (svc *service) UpdateLesson(ctx context.Context, actor user.User, id int, ul UpdateLesson) (Lesson, error) {
	l, grp, err := svc.authorizeLesson(ctx, actor, id)
	if err != nil {
		return Lesson{}, err
	}
	t, err := core.ParseClock(ul.Time)
	if err != nil {
		return Lesson{}, core.NewValidationError(err, core.FieldError{Field: "time", Error: err.Error()})
	}

	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkConflict(ctx, grp.TeacherID, ul.WeekDay, t, []int{l.ID}, exec); err != nil {
			return err
		}
		l.WeekDay = ul.WeekDay
		l.Time = t
		var err error
		l, err = svc.repo.UpdateLesson(ctx, l, exec)
		return errors.Wrap(err, "updating lesson")
	})
	if err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *service) DeleteLesson(ctx context.Context, actor user.User, id int) error {
	if _, _, err := svc.authorizeLesson(ctx, actor, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteLesson(ctx, id), "deleting lesson")
}

func (svc *service) LessonGroup(ctx context.Context, lessonID int) (Lesson, Group, error) {
	l, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return Lesson{}, Group{}, err
	}
	grp, err := svc.repo.GetGroup(ctx, l.GroupID)
	if err != nil {
		if core.IsNotFound(err) {
			return Lesson{}, Group{}, ErrNotFound
		}
		return Lesson{}, Group{}, err
	}
	return l, grp, nil
}

func (svc *service) GroupLessons(ctx context.Context, lessonID int) ([]Lesson, error) {
	l, _, err := svc.LessonGroup(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryLessons(ctx, LessonFilter{GroupIDs: []int{l.GroupID}})
}

func (svc *service) LessonIDs(ctx context.Context, filter GroupFilter) ([]int, error) {
	groups, _, err := svc.repo.QueryGroups(ctx, filter, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson groups")
	}
	if len(groups) == 0 {
		return nil, nil
	}
	groupIDs := make([]int, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{GroupIDs: groupIDs})
	if err != nil {
		return nil, errors.Wrap(err, "querying group lessons")
	}
	ids := make([]int, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (svc *service) HasException(ctx context.Context, lessonID int, date core.Date) (bool, error) {
	return svc.hasException(ctx, lessonID, date)
}

func (svc *service) hasException(ctx context.Context, lessonID int, date core.Date, exec ...core.DBExecutor) (bool, error) {
	if _, err := svc.repo.FindOperation(ctx, lessonID, date, exec...); err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "finding lesson operation")
	}
	return true, nil
}

func invalid(err error, field string) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// checkDate validates a date an operation of lesson l is recorded on.
func (svc *service) checkDate(ctx context.Context, l Lesson, date core.Date, field string, exec ...core.DBExecutor) error {
	if date.Before(core.Today().Time) {
		return invalid(ErrDatePassed, field)
	}
	exists, err := svc.hasException(ctx, l.ID, date, exec...)
	if err != nil {
		return err
	}
	if exists {
		return invalid(ErrExceptionExists, field)
	}
	return nil
}

func (svc *service) notifyStudents(ctx context.Context, actor user.User, grp Group, ev notification.LessonChange, exec core.DBExecutor) error {
	students, err := svc.roster.QueryAcceptedStudentIDs(ctx, grp.ID, exec)
	if err != nil {
		return errors.Wrap(err, "querying group students")
	}
	if len(students) == 0 {
		return nil
	}
	ev.StudentIDs = students
	_, err = svc.notifier.Dispatch(ctx, actor.ID, ev, exec)
	return err
}

// CancelLesson records that the lesson does not take place on the given date.
func (svc *service) CancelLesson(ctx context.Context, actor user.User, lessonID int, cl CancelLesson) (Operation, error) {
	l, grp, err := svc.authorizeLesson(ctx, actor, lessonID)
	if err != nil {
		return Operation{}, err
	}
	date, err := core.ParseDate(cl.Date)
	if err != nil {
		return Operation{}, invalid(err, "date")
	}
	if date.Weekday() != l.WeekDay {
		return Operation{}, invalid(ErrWeekdayMismatch, "date")
	}

	var op Operation
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkDate(ctx, l, date, "date", exec); err != nil {
			return err
		}
		var err error
		op, err = svc.repo.CreateOperation(ctx, Operation{
			LessonID:  l.ID,
			Date:      date,
			Type:      OpCancel,
			Reason:    null.NewString(cl.Reason, cl.Reason != ""),
			CreatedAt: core.NowFunc().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "inserting cancel operation")
		}
		return svc.notifyStudents(ctx, actor, grp, notification.LessonChange{
			Action:      notification.LessonCancelled,
			Reason:      cl.Reason,
			OperationID: op.ID,
		}, exec)
	})
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// AddLesson records an extra occurrence of the lesson at the given date and time.
func (svc *service) AddLesson(ctx context.Context, actor user.User, lessonID int, al AddLesson) (Operation, error) {
	l, grp, err := svc.authorizeLesson(ctx, actor, lessonID)
	if err != nil {
		return Operation{}, err
	}
	date, t, err := core.ParseDateTime(al.Date)
	if err != nil {
		return Operation{}, invalid(err, "date")
	}
	if date.Weekday() != l.WeekDay {
		return Operation{}, invalid(ErrWeekdayMismatch, "date")
	}

	var op Operation
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkDate(ctx, l, date, "date", exec); err != nil {
			return err
		}
		if err := svc.checkConflict(ctx, grp.TeacherID, date.Weekday(), t, nil, exec); err != nil {
			return err
		}
		var err error
		op, err = svc.repo.CreateOperation(ctx, Operation{
			LessonID:  l.ID,
			Date:      date,
			Time:      &t,
			Type:      OpAdd,
			Reason:    null.NewString(al.Reason, al.Reason != ""),
			CreatedAt: core.NowFunc().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "inserting add operation")
		}
		return svc.notifyStudents(ctx, actor, grp, notification.LessonChange{
			Action:      notification.LessonAdded,
			Reason:      al.Reason,
			OperationID: op.ID,
		}, exec)
	})
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// TransferLesson cancels the lesson on one date and adds it on another: both operations or none.
func (svc *service) TransferLesson(ctx context.Context, actor user.User, lessonID int, tl TransferLesson) ([]Operation, error) {
	l, grp, err := svc.authorizeLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}
	cancelDate, err := core.ParseDate(tl.DateCancel)
	if err != nil {
		return nil, invalid(err, "date_cancel")
	}
	addDate, t, err := core.ParseDateTime(tl.DateAdd)
	if err != nil {
		return nil, invalid(err, "date_add")
	}
	if cancelDate.Weekday() != l.WeekDay {
		return nil, invalid(ErrWeekdayMismatch, "date_cancel")
	}
	if addDate.Equal(cancelDate.Time) {
		return nil, invalid(ErrExceptionExists, "date_add")
	}

	var ops []Operation
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkDate(ctx, l, cancelDate, "date_cancel", exec); err != nil {
			return err
		}
		if err := svc.checkDate(ctx, l, addDate, "date_add", exec); err != nil {
			return err
		}
		if err := svc.checkConflict(ctx, grp.TeacherID, addDate.Weekday(), t, nil, exec); err != nil {
			return err
		}

		reason := null.NewString(tl.Reason, tl.Reason != "")
		now := core.NowFunc().UTC()
		cancelOp, err := svc.repo.CreateOperation(ctx, Operation{
			LessonID: l.ID, Date: cancelDate, Type: OpCancel, Reason: reason, CreatedAt: now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "inserting cancel operation")
		}
		addOp, err := svc.repo.CreateOperation(ctx, Operation{
			LessonID: l.ID, Date: addDate, Time: &t, Type: OpAdd, Reason: reason, CreatedAt: now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "inserting add operation")
		}
		ops = []Operation{cancelOp, addOp}

		return svc.notifyStudents(ctx, actor, grp, notification.LessonChange{
			Action:      notification.LessonTransferred,
			Reason:      tl.Reason,
			OperationID: addOp.ID,
		}, exec)
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (svc *service) DeleteOperation(ctx context.Context, actor user.User, id int) error {
	op, err := svc.repo.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	if _, _, err = svc.authorizeLesson(ctx, actor, op.LessonID); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteOperation(ctx, id), "deleting lesson operation")
}

// startsAt is the time the lesson takes place on the day of its operation.
func (lod LessonOnDate) startsAt() core.Clock {
	if lod.Operation != nil && lod.Operation.Time != nil {
		return *lod.Operation.Time
	}
	return lod.Time
}

// LessonsOnDate returns the actor's lessons taking place on a date: the weekly lessons of that week day
// not cancelled on that date, plus the lessons added on that date. They are ordered by start time.
func (svc *service) LessonsOnDate(ctx context.Context, actor user.User, filter DayFilter, page int) (core.Page, error) {
	date, err := core.ParseDate(filter.Date)
	if err != nil {
		return core.Page{}, invalid(err, "date")
	}

	weekly, err := svc.repo.QueryLessons(ctx, LessonFilter{TeacherID: actor.ID, WeekDay: date.Weekday()})
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying weekly lessons")
	}
	ops, err := svc.repo.QueryOperationsOnDate(ctx, actor.ID, date)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying lesson operations")
	}
	opByLesson := make(map[int]Operation, len(ops))
	for _, op := range ops {
		opByLesson[op.LessonID] = op
	}

	items := make([]LessonOnDate, 0, len(weekly))
	included := make(map[int]bool, len(weekly))
	for _, l := range weekly {
		item := LessonOnDate{Lesson: l}
		if op, ok := opByLesson[l.ID]; ok {
			if op.Type == OpCancel && !filter.IncludeCancelled {
				continue
			}
			op := op
			item.Operation = &op
		}
		items = append(items, item)
		included[l.ID] = true
	}

	var added []int
	for _, op := range ops {
		if op.Type == OpAdd && !included[op.LessonID] {
			added = append(added, op.LessonID)
		}
	}
	if len(added) > 0 {
		lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{IDs: added})
		if err != nil {
			return core.Page{}, errors.Wrap(err, "querying added lessons")
		}
		for _, l := range lessons {
			op := opByLesson[l.ID]
			items = append(items, LessonOnDate{Lesson: l, Operation: &op})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if a, b := items[i].startsAt(), items[j].startsAt(); a != b {
			return a < b
		}
		return items[i].ID < items[j].ID
	})

	p := core.NewPagination(page, dayPerPage)
	start, end := p.Bounds(len(items))
	pageItems := items[start:end]

	if err = svc.attachGroups(ctx, pageItems); err != nil {
		return core.Page{}, err
	}
	return core.NewPage(p, len(items), pageItems), nil
}

func (svc *service) attachGroups(ctx context.Context, items []LessonOnDate) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.GroupID)
	}
	groups, _, err := svc.repo.QueryGroups(ctx, GroupFilter{IDs: ids}, nil)
	if err != nil {
		return errors.Wrap(err, "querying lesson groups")
	}
	byID := make(map[int]Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	for i := range items {
		items[i].Group = byID[items[i].GroupID]
	}
	return nil
}
