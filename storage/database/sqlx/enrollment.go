package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/lesson"
)

const enrollmentColumns = "e.id, e.lesson_group_id, e.student_id, e.status, e.reason, e.created_at, e.updated_at"

type enrollmentRow struct {
	ID        int         `db:"id"`
	GroupID   int         `db:"lesson_group_id"`
	StudentID int         `db:"student_id"`
	Status    string      `db:"status"`
	Reason    null.String `db:"reason"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (row enrollmentRow) unwrap() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:        row.ID,
		GroupID:   row.GroupID,
		StudentID: row.StudentID,
		Status:    row.Status,
		Reason:    row.Reason,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

type enrollmentRepository struct {
	repo
}

var (
	_ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check
	_ lesson.Roster         = (*enrollmentRepository)(nil)
)

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{repo{exec: exec}}
}

// withLessons loads the lesson ids of every enrollment.
func (r enrollmentRepository) withLessons(ctx context.Context, exe core.DBExecutor, rows []enrollmentRow) ([]enrollment.Enrollment, error) {
	es := make([]enrollment.Enrollment, 0, len(rows))
	if len(rows) == 0 {
		return es, nil
	}
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var links []struct {
		EnrollmentID int `db:"lesson_group_student_id"`
		LessonID     int `db:"lesson_id"`
	}
	err := selectAll(ctx, exe, &links,
		"SELECT lesson_group_student_id, lesson_id FROM lesson_students WHERE lesson_group_student_id IN (?) ORDER BY lesson_id", ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollment lessons")
	}
	byEnrollment := make(map[int][]int)
	for _, link := range links {
		byEnrollment[link.EnrollmentID] = append(byEnrollment[link.EnrollmentID], link.LessonID)
	}

	for _, row := range rows {
		e := row.unwrap()
		e.LessonIDs = byEnrollment[e.ID]
		if e.LessonIDs == nil {
			e.LessonIDs = []int{}
		}
		es = append(es, e)
	}
	return es, nil
}

func (r enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	err := scalar(ctx, r.getExec(exec), &e.ID, `INSERT INTO lesson_group_students
		(lesson_group_id, student_id, status, reason, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		e.GroupID, e.StudentID, e.Status, e.Reason, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (r enrollmentRepository) find(ctx context.Context, exec []core.DBExecutor, w *where) (enrollment.Enrollment, error) {
	exe := r.getExec(exec)
	var rows []enrollmentRow
	if err := selectAll(ctx, exe, &rows, "SELECT "+enrollmentColumns+" FROM lesson_group_students e"+w.String()+" ORDER BY e.id LIMIT 1", w.args...); err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	if len(rows) == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	es, err := r.withLessons(ctx, exe, rows)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return es[0], nil
}

func (r enrollmentRepository) GetEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	w := &where{}
	w.add("e.id = ?", id)
	return r.find(ctx, exec, w)
}

func (r enrollmentRepository) FindEnrollment(ctx context.Context, filter enrollment.Filter, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	w := &where{}
	if filter.StudentID > 0 {
		w.add("e.student_id = ?", filter.StudentID)
	}
	if filter.GroupID > 0 {
		w.add("e.lesson_group_id = ?", filter.GroupID)
	}
	if filter.LessonID > 0 {
		w.add("EXISTS (SELECT 1 FROM lesson_students ls WHERE ls.lesson_group_student_id = e.id AND ls.lesson_id = ?)", filter.LessonID)
	}
	return r.find(ctx, exec, w)
}

func (r enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE lesson_group_students SET lesson_group_id = ?, status = ?, reason = ?, updated_at = ? WHERE id = ?",
		e.GroupID, e.Status, e.Reason, e.UpdatedAt.UTC(), e.ID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return e, nil
}

func (r enrollmentRepository) QueryEnrollments(ctx context.Context, groupID int, exec ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	exe := r.getExec(exec)
	var rows []enrollmentRow
	err := selectAll(ctx, exe, &rows,
		"SELECT "+enrollmentColumns+" FROM lesson_group_students e WHERE e.lesson_group_id = ? ORDER BY e.id", groupID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return r.withLessons(ctx, exe, rows)
}

func (r enrollmentRepository) AttachLessons(ctx context.Context, enrollmentID int, lessonIDs []int, exec ...core.DBExecutor) error {
	if len(lessonIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 2*len(lessonIDs))
	for _, id := range lessonIDs {
		args = append(args, enrollmentID, id)
	}
	q := "INSERT INTO lesson_students (lesson_group_student_id, lesson_id) VALUES " +
		strmangle.Placeholders(true, len(args), 1, 2) +
		" ON CONFLICT DO NOTHING"
	_, err := r.getExec(exec).ExecContext(ctx, q, args...)
	return errors.Wrap(err, "attaching lessons")
}

func (r enrollmentRepository) SyncLessons(ctx context.Context, enrollmentID int, lessonIDs []int, exec ...core.DBExecutor) error {
	exe := r.getExec(exec)
	if _, err := execute(ctx, exe, "DELETE FROM lesson_students WHERE lesson_group_student_id = ?", enrollmentID); err != nil {
		return errors.Wrap(err, "detaching lessons")
	}
	return r.AttachLessons(ctx, enrollmentID, lessonIDs, exe)
}

func (r enrollmentRepository) StudentHasLesson(ctx context.Context, studentID int, lessonIDs []int, exec ...core.DBExecutor) (bool, error) {
	if len(lessonIDs) == 0 {
		return false, nil
	}
	var found bool
	err := scalar(ctx, r.getExec(exec), &found, `SELECT EXISTS (SELECT 1 FROM lesson_students ls
		JOIN lesson_group_students e ON e.id = ls.lesson_group_student_id
		WHERE e.student_id = ? AND ls.lesson_id IN (?))`, studentID, lessonIDs)
	if err != nil {
		return false, errors.Wrap(err, "checking student lessons")
	}
	return found, nil
}

func (r enrollmentRepository) QueryAcceptedStudentIDs(ctx context.Context, groupID int, exec ...core.DBExecutor) ([]int, error) {
	var rows []struct {
		ID int `db:"student_id"`
	}
	err := selectAll(ctx, r.getExec(exec), &rows,
		"SELECT DISTINCT student_id FROM lesson_group_students WHERE lesson_group_id = ? AND status = ? ORDER BY student_id",
		groupID, enrollment.StatusAccept)
	if err != nil {
		return nil, errors.Wrap(err, "querying accepted students")
	}
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
