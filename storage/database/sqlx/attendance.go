package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/enrollment"
)

const recordColumns = `d.id, d.student_id, d.lesson_id, d.date, d.type, d.reason, d.mark_home, d.note_home,
	d.mark_lesson, d.note_lesson, d.parent_seen, d.created_at, d.updated_at`

type recordRow struct {
	ID         int         `db:"id"`
	StudentID  int         `db:"student_id"`
	LessonID   int         `db:"lesson_id"`
	Date       core.Date   `db:"date"`
	Type       string      `db:"type"`
	Reason     null.String `db:"reason"`
	MarkHome   null.Int    `db:"mark_home"`
	NoteHome   null.String `db:"note_home"`
	MarkLesson null.Int    `db:"mark_lesson"`
	NoteLesson null.String `db:"note_lesson"`
	ParentSeen bool        `db:"parent_seen"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (row recordRow) unwrap() attendance.Record {
	return attendance.Record{
		ID:         row.ID,
		StudentID:  row.StudentID,
		LessonID:   row.LessonID,
		Date:       row.Date,
		Type:       row.Type,
		Reason:     row.Reason,
		MarkHome:   row.MarkHome,
		NoteHome:   row.NoteHome,
		MarkLesson: row.MarkLesson,
		NoteLesson: row.NoteLesson,
		ParentSeen: row.ParentSeen,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{repo{exec: exec}}
}

func (r attendanceRepository) one(ctx context.Context, exec []core.DBExecutor, cond string, args ...interface{}) (attendance.Record, error) {
	var rows []recordRow
	if err := selectAll(ctx, r.getExec(exec), &rows, "SELECT "+recordColumns+" FROM lesson_days d WHERE "+cond, args...); err != nil {
		return attendance.Record{}, errors.Wrap(err, "finding attendance record")
	}
	if len(rows) == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rows[0].unwrap(), nil
}

func (r attendanceRepository) GetRecord(ctx context.Context, id int, exec ...core.DBExecutor) (attendance.Record, error) {
	return r.one(ctx, exec, "d.id = ?", id)
}

func (r attendanceRepository) FindRecord(ctx context.Context, studentID, lessonID int, date core.Date, exec ...core.DBExecutor) (attendance.Record, error) {
	return r.one(ctx, exec, "d.student_id = ? AND d.lesson_id = ? AND d.date = ?", studentID, lessonID, date)
}

func (r attendanceRepository) SaveRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := r.getExec(exec)
	if rec.ID == 0 {
		err := scalar(ctx, exe, &rec.ID, `INSERT INTO lesson_days
			(student_id, lesson_id, date, type, reason, mark_home, note_home, mark_lesson, note_lesson, parent_seen, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (student_id, lesson_id, date) DO UPDATE SET
				type = EXCLUDED.type, reason = EXCLUDED.reason,
				mark_home = EXCLUDED.mark_home, note_home = EXCLUDED.note_home,
				mark_lesson = EXCLUDED.mark_lesson, note_lesson = EXCLUDED.note_lesson,
				updated_at = EXCLUDED.updated_at
			RETURNING id`,
			rec.StudentID, rec.LessonID, rec.Date, rec.Type, rec.Reason, rec.MarkHome, rec.NoteHome,
			rec.MarkLesson, rec.NoteLesson, rec.ParentSeen, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
		if err != nil {
			return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
		}
		return rec, nil
	}

	res, err := execute(ctx, exe, `UPDATE lesson_days SET
		type = ?, reason = ?, mark_home = ?, note_home = ?, mark_lesson = ?, note_lesson = ?, parent_seen = ?, updated_at = ?
		WHERE id = ?`,
		rec.Type, rec.Reason, rec.MarkHome, rec.NoteHome, rec.MarkLesson, rec.NoteLesson, rec.ParentSeen,
		rec.UpdatedAt.UTC(), rec.ID)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

func (r attendanceRepository) DeleteRecord(ctx context.Context, id int, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec), "DELETE FROM lesson_days WHERE id = ?", id)
	return errors.Wrap(err, "deleting attendance record")
}

func dateRange(w *where, column string, from, to *core.Date) {
	if from != nil {
		w.add(column+" >= ?", *from)
	}
	if to != nil {
		w.add(column+" <= ?", *to)
	}
}

func (r attendanceRepository) QueryRecords(ctx context.Context, filter attendance.RecordFilter, p *core.Pagination, exec ...core.DBExecutor) ([]attendance.Record, int, error) {
	w := &where{}
	if len(filter.LessonIDs) > 0 {
		w.add("d.lesson_id IN (?)", filter.LessonIDs)
	}
	if filter.StudentID > 0 {
		w.add("d.student_id = ?", filter.StudentID)
	}
	if filter.Date != nil {
		w.add("d.date = ?", *filter.Date)
	}
	dateRange(w, "d.date", filter.From, filter.To)

	exe := r.getExec(exec)
	var total int
	if err := scalar(ctx, exe, &total, "SELECT COUNT(*) FROM lesson_days d"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting attendance records")
	}

	q, args := page("SELECT "+recordColumns+" FROM lesson_days d"+w.String()+" ORDER BY d.date, d.id", w.args, p)
	var rows []recordRow
	if err := selectAll(ctx, exe, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.unwrap())
	}
	return records, total, nil
}

func (r attendanceRepository) QueryRatings(ctx context.Context, rq attendance.RatingQuery, p *core.Pagination, exec ...core.DBExecutor) ([]attendance.Rating, int, error) {
	ratings := []attendance.Rating{}
	if len(rq.LessonIDs) == 0 {
		return ratings, 0, nil
	}
	w := &where{}
	w.add("d.lesson_id IN (?)", rq.LessonIDs)
	dateRange(w, "d.date", rq.From, rq.To)

	exe := r.getExec(exec)
	var total int
	if err := scalar(ctx, exe, &total, "SELECT COUNT(DISTINCT d.student_id) FROM lesson_days d"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting ratings")
	}

	q, args := page(`SELECT d.student_id, u.name,
			SUM(COALESCE(d.mark_home, 0) + COALESCE(d.mark_lesson, 0)) AS total_mark
		FROM lesson_days d JOIN users u ON u.id = d.student_id`+w.String()+`
		GROUP BY d.student_id, u.name
		ORDER BY total_mark DESC, d.student_id`, w.args, p)
	if err := selectAll(ctx, exe, &ratings, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying ratings")
	}
	return ratings, total, nil
}

func (r attendanceRepository) QueryExcellentStudent(ctx context.Context, lessonIDs []int, from, to core.Date, exec ...core.DBExecutor) (*attendance.ExcellentStudent, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	var rows []attendance.ExcellentStudent
	err := selectAll(ctx, r.getExec(exec), &rows, `SELECT d.student_id, u.name,
			AVG(d.mark_home)::float8 AS mark_home,
			AVG(d.mark_lesson)::float8 AS mark_lesson,
			AVG((d.mark_home + d.mark_lesson) / 2.0)::float8 AS avg_total
		FROM lesson_days d JOIN users u ON u.id = d.student_id
		WHERE d.lesson_id IN (?) AND d.date >= ? AND d.date <= ?
		GROUP BY d.student_id, u.name
		ORDER BY avg_total DESC NULLS LAST, d.student_id
		LIMIT 1`, lessonIDs, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying excellent student")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r attendanceRepository) QuerySeenCounts(ctx context.Context, groupID, studentID int, p *core.Pagination, exec ...core.DBExecutor) ([]attendance.SeenCount, int, error) {
	w := &where{}
	w.add("e.lesson_group_id = ?", groupID)
	w.add("e.status = ?", enrollment.StatusAccept)
	w.add("g.deleted_at IS NULL")
	if studentID > 0 {
		w.add("e.student_id = ?", studentID)
	}
	from := ` FROM lesson_group_students e
		JOIN lesson_groups g ON g.id = e.lesson_group_id
		JOIN users s ON s.id = e.student_id
		JOIN parent_users pu ON pu.user_id = e.student_id
		JOIN users p ON p.id = pu.parent_id
		LEFT JOIN lesson_days d ON d.student_id = e.student_id
			AND d.lesson_id IN (SELECT l.id FROM lessons l WHERE l.lesson_group_id = e.lesson_group_id)` + w.String() + `
		GROUP BY e.student_id, s.name, pu.parent_id, p.name`

	exe := r.getExec(exec)
	var total int
	if err := scalar(ctx, exe, &total, "SELECT COUNT(*) FROM (SELECT e.student_id"+from+") counted", w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting seen counts")
	}

	q, args := page(`SELECT e.student_id, s.name AS student_name, pu.parent_id, p.name AS parent_name,
			COUNT(d.id) FILTER (WHERE d.parent_seen) AS seen,
			COUNT(d.id) FILTER (WHERE NOT d.parent_seen) AS not_seen`+from+`
		ORDER BY e.student_id, pu.parent_id`, w.args, p)
	counts := []attendance.SeenCount{}
	if err := selectAll(ctx, exe, &counts, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying seen counts")
	}
	return counts, total, nil
}

func (r attendanceRepository) QuerySubjectGroupID(ctx context.Context, studentID, subjectID int, exec ...core.DBExecutor) (int, error) {
	var id int
	err := scalar(ctx, r.getExec(exec), &id, `SELECT e.lesson_group_id FROM lesson_group_students e
		JOIN lesson_groups g ON g.id = e.lesson_group_id
		WHERE e.student_id = ? AND g.subject_id = ? AND e.status = ? AND g.deleted_at IS NULL
		ORDER BY e.id LIMIT 1`, studentID, subjectID, enrollment.StatusAccept)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "querying subject group")
	}
	return id, nil
}
