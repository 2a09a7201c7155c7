package attendance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
)

const (
	perPage       = 10
	ratingPerPage = 20
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("attendance record not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrNotParent       = errors.WithMessage(core.ErrPermissionDenied, "only a parent of the student can acknowledge this record")
)

type (
	Repository interface {
		GetRecord(ctx context.Context, id int, exec ...core.DBExecutor) (Record, error)
		// FindRecord returns ErrNotFound when the student has no record for the lesson on date.
		FindRecord(ctx context.Context, studentID, lessonID int, date core.Date, exec ...core.DBExecutor) (Record, error)
		// SaveRecord inserts r when its ID is 0, updates it otherwise.
		SaveRecord(ctx context.Context, r Record, exec ...core.DBExecutor) (Record, error)
		DeleteRecord(ctx context.Context, id int, exec ...core.DBExecutor) error
		// QueryRecords returns records ordered by date and id, and their total count; a nil page returns all of them.
		QueryRecords(ctx context.Context, filter RecordFilter, page *core.Pagination, exec ...core.DBExecutor) ([]Record, int, error)
		// QueryRatings sums the marks per student, best first.
		QueryRatings(ctx context.Context, q RatingQuery, page *core.Pagination, exec ...core.DBExecutor) ([]Rating, int, error)
		// QueryExcellentStudent returns nil when no student has a record in the window.
		QueryExcellentStudent(ctx context.Context, lessonIDs []int, from, to core.Date, exec ...core.DBExecutor) (*ExcellentStudent, error)
		// QuerySeenCounts counts, per accepted student of the group and per parent, the acknowledged and
		// unacknowledged records of the group's lessons. studentID 0 selects all students.
		QuerySeenCounts(ctx context.Context, groupID, studentID int, page *core.Pagination, exec ...core.DBExecutor) ([]SeenCount, int, error)
		// QuerySubjectGroupID returns the group of that subject the student is accepted in, 0 if none.
		QuerySubjectGroupID(ctx context.Context, studentID, subjectID int, exec ...core.DBExecutor) (int, error)
	}

	// Exporter writes rows to a spreadsheet document.
	Exporter interface {
		Export(sheet string, headers []string, rows [][]interface{}) ([]byte, error)
	}

	Service interface {
		SetStatus(ctx context.Context, actor user.User, ss SetStatus) (Record, error)
		Grade(ctx context.Context, actor user.User, g Grade) (Record, error)
		GradeHomeWork(ctx context.Context, actor user.User, bg BatchGrade) ([]Record, error)
		GradeLessonWork(ctx context.Context, actor user.User, bg BatchGrade) ([]Record, error)
		ReportAbsence(ctx context.Context, actor user.User, ra ReportAbsence) (Record, error)

		Get(ctx context.Context, actor user.User, id int) (Record, error)
		Acknowledge(ctx context.Context, actor user.User, id int) (Record, error)
		Delete(ctx context.Context, actor user.User, id int) error
		ListByLesson(ctx context.Context, actor user.User, lessonID, page int) (core.Page, error)
		ListForStudent(ctx context.Context, actor user.User, filter StudentFilter, page int) (core.Page, error)
		Statistic(ctx context.Context, actor user.User, filter StudentFilter) (map[string]int, error)
		Logs(ctx context.Context, actor user.User, filter LogFilter, page int) (core.Page, error)
		ExportLogs(ctx context.Context, actor user.User, filter LogFilter) ([]byte, error)
		SeenCounts(ctx context.Context, actor user.User, filter SeenFilter, page int) (core.Page, error)

		TeacherRating(ctx context.Context, actor user.User, filter RatingFilter, page int) (core.Page, error)
		SubjectRating(ctx context.Context, actor user.User, subjectID int, filter SubjectRatingFilter) ([]Rating, error)
		ExcellentStudent(ctx context.Context, actor user.User, lessonID int) (*ExcellentStudent, error)
		GreetStudent(ctx context.Context, actor user.User, studentID int) error
	}

	service struct {
		repo     Repository
		lessons  lesson.Service
		users    user.Service
		notifier notification.Dispatcher
		exporter Exporter
		tx       core.TxRunner
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	lessons lesson.Service,
	users user.Service,
	notifier notification.Dispatcher,
	exporter Exporter,
	tx core.TxRunner,
) Service {
	return &service{
		repo:     repo,
		lessons:  lessons,
		users:    users,
		notifier: notifier,
		exporter: exporter,
		tx:       tx,
	}
}

// TypesCount counts the attendance types; every type is present, unknown values are ignored.
func TypesCount(types []string) map[string]int {
	count := make(map[string]int, len(Types))
	for _, t := range Types {
		count[t] = 0
	}
	for _, t := range types {
		if _, ok := count[t]; ok {
			count[t]++
		}
	}
	return count
}

func dateOrToday(d *core.Date) core.Date {
	if d == nil || d.IsZero() {
		return core.Today()
	}
	return core.NewDate(d.Time)
}

// teacherLesson returns the lesson and its group if actor teaches it.
func (svc *service) teacherLesson(ctx context.Context, actor user.User, lessonID int) (lesson.Lesson, lesson.Group, error) {
	l, grp, err := svc.lessons.LessonGroup(ctx, lessonID)
	if err != nil {
		return lesson.Lesson{}, lesson.Group{}, err
	}
	if grp.TeacherID != actor.ID && !actor.IsAdmin() {
		return lesson.Lesson{}, lesson.Group{}, core.ErrPermissionDenied
	}
	return l, grp, nil
}

// upsert finds the record of (student, lesson, date), or starts a new one, and saves it after apply.
func (svc *service) upsert(ctx context.Context, studentID, lessonID int, date core.Date, apply func(*Record), exec ...core.DBExecutor) (Record, error) {
	r, err := svc.repo.FindRecord(ctx, studentID, lessonID, date, exec...)
	if err != nil {
		if !core.IsNotFound(err) {
			return Record{}, errors.Wrap(err, "finding attendance record")
		}
		r = Record{
			StudentID: studentID,
			LessonID:  lessonID,
			Date:      date,
			Type:      TypeInTime,
			CreatedAt: core.NowFunc().UTC(),
		}
	}
	apply(&r)
	r.UpdatedAt = core.NowFunc().UTC()
	if r, err = svc.repo.SaveRecord(ctx, r, exec...); err != nil {
		return Record{}, errors.Wrap(err, "saving attendance record")
	}
	return r, nil
}

// checkStudents makes sure every id is a student's.
func (svc *service) checkStudents(ctx context.Context, field string, ids ...int) error {
	users, err := svc.users.QueryByID(ctx, ids...)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if usr, ok := users[id]; !ok || !usr.IsStudent() {
			return core.NewValidationError(ErrStudentNotFound, core.FieldError{Field: field, Error: ErrStudentNotFound.Error()})
		}
	}
	return nil
}

func nullString(s string) null.String { return null.NewString(s, s != "") }

func (svc *service) SetStatus(ctx context.Context, actor user.User, ss SetStatus) (Record, error) {
	if _, _, err := svc.teacherLesson(ctx, actor, ss.Lesson); err != nil {
		return Record{}, err
	}
	if err := svc.checkStudents(ctx, "student", ss.Student); err != nil {
		return Record{}, err
	}
	return svc.upsert(ctx, ss.Student, ss.Lesson, dateOrToday(ss.Date), func(r *Record) {
		r.Type = ss.Type
		r.Reason = nullString(ss.Reason)
	})
}

func (svc *service) Grade(ctx context.Context, actor user.User, g Grade) (Record, error) {
	if _, _, err := svc.teacherLesson(ctx, actor, g.Lesson); err != nil {
		return Record{}, err
	}
	if err := svc.checkStudents(ctx, "student", g.Student); err != nil {
		return Record{}, err
	}
	return svc.upsert(ctx, g.Student, g.Lesson, dateOrToday(g.Date), func(r *Record) {
		r.Type = g.Type
		r.Reason = nullString(g.Reason)
		r.MarkHome = null.IntFromPtr(g.MarkHome)
		r.NoteHome = nullString(g.NoteHome)
		r.MarkLesson = null.IntFromPtr(g.MarkLesson)
		r.NoteLesson = nullString(g.NoteLesson)
	})
}

// gradeBatch applies the same change to the record of every student, all or nothing.
func (svc *service) gradeBatch(ctx context.Context, actor user.User, bg BatchGrade, apply func(*Record)) ([]Record, error) {
	if _, _, err := svc.teacherLesson(ctx, actor, bg.Lesson); err != nil {
		return nil, err
	}
	if err := svc.checkStudents(ctx, "students", bg.Students...); err != nil {
		return nil, err
	}
	date := dateOrToday(bg.Date)

	records := make([]Record, 0, len(bg.Students))
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		for _, studentID := range bg.Students {
			r, err := svc.upsert(ctx, studentID, bg.Lesson, date, apply, exec)
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (svc *service) GradeHomeWork(ctx context.Context, actor user.User, bg BatchGrade) ([]Record, error) {
	return svc.gradeBatch(ctx, actor, bg, func(r *Record) {
		r.MarkHome = null.IntFromPtr(bg.Mark)
		r.NoteHome = nullString(bg.Note)
	})
}

func (svc *service) GradeLessonWork(ctx context.Context, actor user.User, bg BatchGrade) ([]Record, error) {
	return svc.gradeBatch(ctx, actor, bg, func(r *Record) {
		r.MarkLesson = null.IntFromPtr(bg.Mark)
		r.NoteLesson = nullString(bg.Note)
	})
}

// ReportAbsence marks the actor absent and tells the teacher and the parents.
func (svc *service) ReportAbsence(ctx context.Context, actor user.User, ra ReportAbsence) (Record, error) {
	if !actor.IsStudent() {
		return Record{}, core.ErrPermissionDenied
	}
	_, grp, err := svc.lessons.LessonGroup(ctx, ra.Lesson)
	if err != nil {
		return Record{}, err
	}
	date := dateOrToday(ra.Date)

	var r Record
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		r, err = svc.upsert(ctx, actor.ID, ra.Lesson, date, func(r *Record) { r.Type = TypeAbsent }, exec)
		if err != nil {
			return err
		}
		_, err = svc.notifier.Dispatch(ctx, actor.ID, notification.AbsenceRequest{
			RecordID:    r.ID,
			StudentID:   actor.ID,
			StudentName: actor.Name,
			TeacherID:   grp.TeacherID,
			GroupName:   grp.Name,
			Date:        date.String(),
			Message:     ra.Note,
		}, exec)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// canView reports whether actor is the teacher, the student, or a parent of the student.
func (svc *service) canView(ctx context.Context, actor user.User, studentID int, grp lesson.Group) (bool, error) {
	if actor.ID == studentID || actor.ID == grp.TeacherID || actor.IsAdmin() {
		return true, nil
	}
	if actor.IsParent() {
		return svc.users.IsParentOf(ctx, actor.ID, studentID)
	}
	return false, nil
}

func (svc *service) withStudent(ctx context.Context, r Record) (Record, error) {
	student, err := svc.users.GetByID(ctx, r.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return r, nil
		}
		return Record{}, err
	}
	r.Student = &StudentRef{ID: student.ID, Name: student.Name}
	return r, nil
}

// Get is a pure read: acknowledging a record is done by Acknowledge.
func (svc *service) Get(ctx context.Context, actor user.User, id int) (Record, error) {
	r, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	_, grp, err := svc.lessons.LessonGroup(ctx, r.LessonID)
	if err != nil {
		return Record{}, err
	}
	ok, err := svc.canView(ctx, actor, r.StudentID, grp)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, core.ErrPermissionDenied
	}
	return svc.withStudent(ctx, r)
}

// Acknowledge marks the record as seen by a parent. Only a parent of the student may do so.
func (svc *service) Acknowledge(ctx context.Context, actor user.User, id int) (Record, error) {
	r, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	isParent, err := svc.users.IsParentOf(ctx, actor.ID, r.StudentID)
	if err != nil {
		return Record{}, err
	}
	if !isParent {
		return Record{}, ErrNotParent
	}
	if !r.ParentSeen {
		r.ParentSeen = true
		r.UpdatedAt = core.NowFunc().UTC()
		if r, err = svc.repo.SaveRecord(ctx, r); err != nil {
			return Record{}, errors.Wrap(err, "acknowledging attendance record")
		}
	}
	return svc.withStudent(ctx, r)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id int) error {
	r, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if _, _, err = svc.teacherLesson(ctx, actor, r.LessonID); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteRecord(ctx, id), "deleting attendance record")
}

func (svc *service) recordPage(ctx context.Context, filter RecordFilter, page int) (core.Page, error) {
	p := core.NewPagination(page, perPage)
	records, total, err := svc.repo.QueryRecords(ctx, filter, &p)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying attendance records")
	}
	if records == nil {
		records = []Record{}
	}
	return core.NewPage(p, total, records), nil
}

func (svc *service) ListByLesson(ctx context.Context, actor user.User, lessonID, page int) (core.Page, error) {
	if _, _, err := svc.teacherLesson(ctx, actor, lessonID); err != nil {
		return core.Page{}, err
	}
	return svc.recordPage(ctx, RecordFilter{LessonIDs: []int{lessonID}}, page)
}

// studentScope authorizes actor for the student's records and returns the lessons of the lesson's group.
func (svc *service) studentScope(ctx context.Context, actor user.User, lessonID, studentID int) ([]int, error) {
	_, grp, err := svc.lessons.LessonGroup(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	ok, err := svc.canView(ctx, actor, studentID, grp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrPermissionDenied
	}
	return svc.lessons.LessonIDs(ctx, lesson.GroupFilter{IDs: []int{grp.ID}})
}

func (svc *service) ListForStudent(ctx context.Context, actor user.User, filter StudentFilter, page int) (core.Page, error) {
	if _, err := svc.studentScope(ctx, actor, filter.Lesson, filter.Student); err != nil {
		return core.Page{}, err
	}
	return svc.recordPage(ctx, RecordFilter{LessonIDs: []int{filter.Lesson}, StudentID: filter.Student}, page)
}

// Statistic counts the attendance types of a student over all the lessons of the lesson's group.
func (svc *service) Statistic(ctx context.Context, actor user.User, filter StudentFilter) (map[string]int, error) {
	lessonIDs, err := svc.studentScope(ctx, actor, filter.Lesson, filter.Student)
	if err != nil {
		return nil, err
	}
	records, _, err := svc.repo.QueryRecords(ctx, RecordFilter{LessonIDs: lessonIDs, StudentID: filter.Student}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, r.Type)
	}
	return TypesCount(types), nil
}

func (svc *service) logRecords(ctx context.Context, actor user.User, filter LogFilter, page *core.Pagination) ([]Record, int, error) {
	lessonIDs, err := svc.studentScope(ctx, actor, filter.Lesson, filter.Student)
	if err != nil {
		return nil, 0, err
	}
	rf := RecordFilter{LessonIDs: lessonIDs, StudentID: filter.Student}
	if filter.StartDate != "" {
		from, err := core.ParseDate(filter.StartDate)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "start_date", Error: err.Error()})
		}
		rf.From = &from
	}
	if filter.EndDate != "" {
		to, err := core.ParseDate(filter.EndDate)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "end_date", Error: err.Error()})
		}
		rf.To = &to
	}
	records, total, err := svc.repo.QueryRecords(ctx, rf, page)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying attendance records")
	}
	return records, total, nil
}

// Logs returns the student's records across the lesson's group, showing only the columns of the log kind.
func (svc *service) Logs(ctx context.Context, actor user.User, filter LogFilter, page int) (core.Page, error) {
	p := core.NewPagination(page, perPage)
	records, total, err := svc.logRecords(ctx, actor, filter, &p)
	if err != nil {
		return core.Page{}, err
	}
	columns := logColumns[filter.Kind]
	entries := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.project(columns))
	}
	return core.NewPage(p, total, entries), nil
}

// cellValue dereferences nullable columns, nil stays an empty cell.
func cellValue(v interface{}) interface{} {
	switch v := v.(type) {
	case *int:
		if v != nil {
			return *v
		}
		return nil
	case *string:
		if v != nil {
			return *v
		}
		return nil
	}
	return v
}

// ExportLogs writes all the entries of a log to a spreadsheet.
func (svc *service) ExportLogs(ctx context.Context, actor user.User, filter LogFilter) ([]byte, error) {
	records, _, err := svc.logRecords(ctx, actor, filter, nil)
	if err != nil {
		return nil, err
	}
	columns := logColumns[filter.Kind]
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		row := make([]interface{}, 0, len(columns))
		for _, col := range columns {
			row = append(row, cellValue(r.column(col)))
		}
		rows = append(rows, row)
	}
	data, err := svc.exporter.Export(filter.Kind, columns, rows)
	if err != nil {
		return nil, errors.Wrap(err, "exporting attendance log")
	}
	return data, nil
}

// SeenCounts selects the group directly or through one of its lessons.
func (svc *service) SeenCounts(ctx context.Context, actor user.User, filter SeenFilter, page int) (core.Page, error) {
	groupID := filter.Group
	if groupID == 0 {
		_, grp, err := svc.lessons.LessonGroup(ctx, filter.Lesson)
		if err != nil {
			return core.Page{}, err
		}
		groupID = grp.ID
	}
	if _, err := svc.lessons.AuthorizeGroup(ctx, actor, groupID); err != nil {
		return core.Page{}, err
	}

	p := core.NewPagination(page, perPage)
	counts, total, err := svc.repo.QuerySeenCounts(ctx, groupID, filter.Student, &p)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "counting seen records")
	}
	if counts == nil {
		counts = []SeenCount{}
	}
	return core.NewPage(p, total, counts), nil
}

func ratingQuery(lessonIDs []int, period string) RatingQuery {
	q := RatingQuery{LessonIDs: lessonIDs}
	today := core.Today()
	switch period {
	case PeriodDay:
		q.From, q.To = &today, &today
	case PeriodWeek:
		from := today.AddDays(-6)
		q.From = &from
	}
	return q
}

// TeacherRating ranks the students of the actor's groups, optionally of one group or one subject.
func (svc *service) TeacherRating(ctx context.Context, actor user.User, filter RatingFilter, page int) (core.Page, error) {
	gf := lesson.GroupFilter{TeacherID: actor.ID}
	if filter.Group > 0 {
		gf.IDs = []int{filter.Group}
	} else if filter.Subject > 0 {
		gf.SubjectID = filter.Subject
	}
	lessonIDs, err := svc.lessons.LessonIDs(ctx, gf)
	if err != nil {
		return core.Page{}, err
	}

	p := core.NewPagination(page, ratingPerPage)
	if len(lessonIDs) == 0 {
		return core.NewPage(p, 0, []Rating{}), nil
	}
	ratings, total, err := svc.repo.QueryRatings(ctx, ratingQuery(lessonIDs, filter.Filter), &p)
	if err != nil {
		return core.Page{}, errors.Wrap(err, "querying ratings")
	}
	if ratings == nil {
		ratings = []Rating{}
	}
	return core.NewPage(p, total, ratings), nil
}

// SubjectRating ranks the students of the group of that subject the student (or the parent's child) attends.
func (svc *service) SubjectRating(ctx context.Context, actor user.User, subjectID int, filter SubjectRatingFilter) ([]Rating, error) {
	studentID := actor.ID
	if !actor.IsStudent() {
		if !actor.IsParent() {
			return nil, core.ErrPermissionDenied
		}
		children, err := svc.users.ChildIDs(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return []Rating{}, nil
		}
		studentID = children[0]
		if filter.Student > 0 {
			studentID = 0
			for _, id := range children {
				if id == filter.Student {
					studentID = id
				}
			}
			if studentID == 0 {
				return nil, core.ErrPermissionDenied
			}
		}
	}

	groupID, err := svc.repo.QuerySubjectGroupID(ctx, studentID, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "finding subject group")
	}
	if groupID == 0 {
		return []Rating{}, nil
	}
	lessonIDs, err := svc.lessons.LessonIDs(ctx, lesson.GroupFilter{IDs: []int{groupID}})
	if err != nil {
		return nil, err
	}
	if len(lessonIDs) == 0 {
		return []Rating{}, nil
	}
	ratings, _, err := svc.repo.QueryRatings(ctx, ratingQuery(lessonIDs, filter.Filter), nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying ratings")
	}
	if ratings == nil {
		ratings = []Rating{}
	}
	return ratings, nil
}

// ExcellentStudent returns the student of the lesson's group with the best average over the last week
// (today-8 to today-1), nil if nobody has a record then.
func (svc *service) ExcellentStudent(ctx context.Context, actor user.User, lessonID int) (*ExcellentStudent, error) {
	_, grp, err := svc.teacherLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}
	lessonIDs, err := svc.lessons.LessonIDs(ctx, lesson.GroupFilter{IDs: []int{grp.ID}})
	if err != nil {
		return nil, err
	}
	today := core.Today()
	best, err := svc.repo.QueryExcellentStudent(ctx, lessonIDs, today.AddDays(-8), today.AddDays(-1))
	if err != nil {
		return nil, errors.Wrap(err, "querying excellent student")
	}
	return best, nil
}

func (svc *service) GreetStudent(ctx context.Context, actor user.User, studentID int) error {
	if !actor.IsTeacher() && !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return err
	}
	_, err = svc.notifier.Dispatch(ctx, actor.ID, notification.Greeting{StudentID: student.ID, SenderName: actor.Name})
	return err
}
