package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
)

const (
	groupColumns     = "g.id, g.name, g.subject_id, g.teacher_id, g.created_at, g.updated_at, g.deleted_at"
	lessonColumns    = "l.id, l.lesson_group_id, l.week_day, l.time"
	operationColumns = "o.id, o.lesson_id, o.date, o.time, o.type, o.reason, o.created_at"
)

type groupRow struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	SubjectID int       `db:"subject_id"`
	TeacherID int       `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	DeletedAt null.Time `db:"deleted_at"`
}

func (row groupRow) unwrap() lesson.Group {
	return lesson.Group{
		ID:        row.ID,
		Name:      row.Name,
		SubjectID: row.SubjectID,
		TeacherID: row.TeacherID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		DeletedAt: row.DeletedAt,
	}
}

type lessonRow struct {
	ID      int        `db:"id"`
	GroupID int        `db:"lesson_group_id"`
	WeekDay int        `db:"week_day"`
	Time    core.Clock `db:"time"`
}

type operationRow struct {
	ID        int         `db:"id"`
	LessonID  int         `db:"lesson_id"`
	Date      core.Date   `db:"date"`
	Time      *core.Clock `db:"time"`
	Type      string      `db:"type"`
	Reason    null.String `db:"reason"`
	CreatedAt time.Time   `db:"created_at"`
}

func lessons(rows []lessonRow) []lesson.Lesson {
	ls := make([]lesson.Lesson, 0, len(rows))
	for _, row := range rows {
		ls = append(ls, lesson.Lesson(row))
	}
	return ls
}

func operations(rows []operationRow) []lesson.Operation {
	ops := make([]lesson.Operation, 0, len(rows))
	for _, row := range rows {
		ops = append(ops, lesson.Operation(row))
	}
	return ops
}

type lessonRepository struct {
	repo
}

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(exec core.DBExecutor) *lessonRepository {
	return &lessonRepository{repo{exec: exec}}
}

func (r lessonRepository) CreateSubject(ctx context.Context, sub lesson.Subject, exec ...core.DBExecutor) (lesson.Subject, error) {
	if err := scalar(ctx, r.getExec(exec), &sub.ID, "INSERT INTO subjects (name) VALUES (?) RETURNING id", sub.Name); err != nil {
		return lesson.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return sub, nil
}

func (r lessonRepository) GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (lesson.Subject, error) {
	var subs []lesson.Subject
	if err := selectAll(ctx, r.getExec(exec), &subs, "SELECT id, name FROM subjects WHERE id = ?", id); err != nil {
		return lesson.Subject{}, errors.Wrap(err, "finding subject")
	}
	if len(subs) == 0 {
		return lesson.Subject{}, lesson.ErrSubjectNotFound
	}
	return subs[0], nil
}

func (r lessonRepository) QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]lesson.Subject, error) {
	subs := []lesson.Subject{}
	if err := selectAll(ctx, r.getExec(exec), &subs, "SELECT id, name FROM subjects ORDER BY name, id"); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subs, nil
}

func (r lessonRepository) CreateGroup(ctx context.Context, grp lesson.Group, exec ...core.DBExecutor) (lesson.Group, error) {
	err := scalar(ctx, r.getExec(exec), &grp.ID,
		"INSERT INTO lesson_groups (name, subject_id, teacher_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id",
		grp.Name, grp.SubjectID, grp.TeacherID, grp.CreatedAt.UTC(), grp.UpdatedAt.UTC())
	if err != nil {
		return lesson.Group{}, errors.Wrap(err, "inserting lesson group")
	}
	return grp, nil
}

func (r lessonRepository) GetGroup(ctx context.Context, id int, exec ...core.DBExecutor) (lesson.Group, error) {
	var rows []groupRow
	err := selectAll(ctx, r.getExec(exec), &rows,
		"SELECT "+groupColumns+" FROM lesson_groups g WHERE g.id = ? AND g.deleted_at IS NULL", id)
	if err != nil {
		return lesson.Group{}, errors.Wrap(err, "finding lesson group")
	}
	if len(rows) == 0 {
		return lesson.Group{}, lesson.ErrGroupNotFound
	}
	return rows[0].unwrap(), nil
}

func (r lessonRepository) UpdateGroup(ctx context.Context, grp lesson.Group, exec ...core.DBExecutor) (lesson.Group, error) {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE lesson_groups SET name = ?, subject_id = ?, teacher_id = ?, updated_at = ?, deleted_at = ? WHERE id = ?",
		grp.Name, grp.SubjectID, grp.TeacherID, grp.UpdatedAt.UTC(), grp.DeletedAt, grp.ID)
	if err != nil {
		return lesson.Group{}, errors.Wrap(err, "updating lesson group")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lesson.Group{}, lesson.ErrGroupNotFound
	}
	return grp, nil
}

func (r lessonRepository) QueryGroups(ctx context.Context, filter lesson.GroupFilter, p *core.Pagination, exec ...core.DBExecutor) ([]lesson.Group, int, error) {
	w := &where{}
	w.add("g.deleted_at IS NULL")
	if len(filter.IDs) > 0 {
		w.add("g.id IN (?)", filter.IDs)
	}
	if filter.TeacherID > 0 {
		w.add("g.teacher_id = ?", filter.TeacherID)
	}
	if filter.SubjectID > 0 {
		w.add("g.subject_id = ?", filter.SubjectID)
	}
	if filter.WeekDay > 0 {
		w.add("EXISTS (SELECT 1 FROM lessons l WHERE l.lesson_group_id = g.id AND l.week_day = ?)", filter.WeekDay)
	}

	exe := r.getExec(exec)
	var total int
	if err := scalar(ctx, exe, &total, "SELECT COUNT(*) FROM lesson_groups g"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting lesson groups")
	}

	q, args := page("SELECT "+groupColumns+" FROM lesson_groups g"+w.String()+" ORDER BY g.id", w.args, p)
	var rows []groupRow
	if err := selectAll(ctx, exe, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying lesson groups")
	}
	groups := make([]lesson.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.unwrap())
	}
	return groups, total, nil
}

func (r lessonRepository) CreateLesson(ctx context.Context, l lesson.Lesson, exec ...core.DBExecutor) (lesson.Lesson, error) {
	err := scalar(ctx, r.getExec(exec), &l.ID,
		"INSERT INTO lessons (lesson_group_id, week_day, time) VALUES (?, ?, ?) RETURNING id",
		l.GroupID, l.WeekDay, l.Time)
	if err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (r lessonRepository) GetLesson(ctx context.Context, id int, exec ...core.DBExecutor) (lesson.Lesson, error) {
	var rows []lessonRow
	if err := selectAll(ctx, r.getExec(exec), &rows, "SELECT "+lessonColumns+" FROM lessons l WHERE l.id = ?", id); err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	if len(rows) == 0 {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	return lesson.Lesson(rows[0]), nil
}

func (r lessonRepository) UpdateLesson(ctx context.Context, l lesson.Lesson, exec ...core.DBExecutor) (lesson.Lesson, error) {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE lessons SET week_day = ?, time = ? WHERE id = ?", l.WeekDay, l.Time, l.ID)
	if err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	return l, nil
}

func (r lessonRepository) DeleteLesson(ctx context.Context, id int, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec), "DELETE FROM lessons WHERE id = ?", id)
	return errors.Wrap(err, "deleting lesson")
}

func (r lessonRepository) QueryLessons(ctx context.Context, filter lesson.LessonFilter, exec ...core.DBExecutor) ([]lesson.Lesson, error) {
	w := &where{}
	w.add("g.deleted_at IS NULL")
	if len(filter.IDs) > 0 {
		w.add("l.id IN (?)", filter.IDs)
	}
	if len(filter.GroupIDs) > 0 {
		w.add("l.lesson_group_id IN (?)", filter.GroupIDs)
	}
	if filter.TeacherID > 0 {
		w.add("g.teacher_id = ?", filter.TeacherID)
	}
	if filter.WeekDay > 0 {
		w.add("l.week_day = ?", filter.WeekDay)
	}

	var rows []lessonRow
	q := "SELECT " + lessonColumns + " FROM lessons l JOIN lesson_groups g ON g.id = l.lesson_group_id" +
		w.String() + " ORDER BY l.week_day, l.time, l.id"
	if err := selectAll(ctx, r.getExec(exec), &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	return lessons(rows), nil
}

func (r lessonRepository) CreateOperation(ctx context.Context, op lesson.Operation, exec ...core.DBExecutor) (lesson.Operation, error) {
	var t interface{}
	if op.Time != nil {
		t = *op.Time
	}
	err := scalar(ctx, r.getExec(exec), &op.ID,
		"INSERT INTO lesson_operations (lesson_id, date, time, type, reason, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id",
		op.LessonID, op.Date, t, op.Type, op.Reason, op.CreatedAt.UTC())
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		err = lesson.ErrExceptionExists
	}
	if err != nil {
		return lesson.Operation{}, errors.Wrap(err, "inserting lesson operation")
	}
	return op, nil
}

func (r lessonRepository) findOperation(ctx context.Context, exec []core.DBExecutor, cond string, args ...interface{}) (lesson.Operation, error) {
	var rows []operationRow
	if err := selectAll(ctx, r.getExec(exec), &rows, "SELECT "+operationColumns+" FROM lesson_operations o WHERE "+cond, args...); err != nil {
		return lesson.Operation{}, errors.Wrap(err, "finding lesson operation")
	}
	if len(rows) == 0 {
		return lesson.Operation{}, lesson.ErrOperationNotFound
	}
	return lesson.Operation(rows[0]), nil
}

func (r lessonRepository) GetOperation(ctx context.Context, id int, exec ...core.DBExecutor) (lesson.Operation, error) {
	return r.findOperation(ctx, exec, "o.id = ?", id)
}

func (r lessonRepository) FindOperation(ctx context.Context, lessonID int, date core.Date, exec ...core.DBExecutor) (lesson.Operation, error) {
	return r.findOperation(ctx, exec, "o.lesson_id = ? AND o.date = ?", lessonID, date)
}

func (r lessonRepository) DeleteOperation(ctx context.Context, id int, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec), "DELETE FROM lesson_operations WHERE id = ?", id)
	return errors.Wrap(err, "deleting lesson operation")
}

func (r lessonRepository) QueryOperationsOnDate(ctx context.Context, teacherID int, date core.Date, exec ...core.DBExecutor) ([]lesson.Operation, error) {
	var rows []operationRow
	err := selectAll(ctx, r.getExec(exec), &rows, `SELECT `+operationColumns+` FROM lesson_operations o
		JOIN lessons l ON l.id = o.lesson_id
		JOIN lesson_groups g ON g.id = l.lesson_group_id
		WHERE g.teacher_id = ? AND g.deleted_at IS NULL AND o.date = ?
		ORDER BY o.id`, teacherID, date)
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson operations")
	}
	return operations(rows), nil
}
