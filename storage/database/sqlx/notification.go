package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
)

const notificationColumns = "id, type, user_id, sender_id, title, content, note, related_id, seen, created_at"

type notificationRow struct {
	ID        int         `db:"id"`
	Kind      int         `db:"type"`
	UserID    int         `db:"user_id"`
	SenderID  null.Int    `db:"sender_id"`
	Title     string      `db:"title"`
	Content   string      `db:"content"`
	Note      null.String `db:"note"`
	RelatedID null.Int    `db:"related_id"`
	Seen      bool        `db:"seen"`
	CreatedAt time.Time   `db:"created_at"`
}

func (row notificationRow) unwrap() notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		Kind:      notification.Kind(row.Kind),
		UserID:    row.UserID,
		SenderID:  row.SenderID,
		Title:     row.Title,
		Content:   row.Content,
		Note:      row.Note,
		RelatedID: row.RelatedID,
		Seen:      row.Seen,
		CreatedAt: row.CreatedAt,
	}
}

type notificationRepository struct {
	repo
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{repo{exec: exec}}
}

func (r notificationRepository) CreateNotifications(ctx context.Context, ns []notification.Notification, exec ...core.DBExecutor) ([]notification.Notification, error) {
	if len(ns) == 0 {
		return ns, nil
	}
	const nCols = 9
	args := make([]interface{}, 0, nCols*len(ns))
	for _, n := range ns {
		args = append(args, int(n.Kind), n.UserID, n.SenderID, n.Title, n.Content, n.Note, n.RelatedID, n.Seen, n.CreatedAt.UTC())
	}
	q := "INSERT INTO notifications (type, user_id, sender_id, title, content, note, related_id, seen, created_at) VALUES " +
		strmangle.Placeholders(true, len(args), 1, nCols) + " RETURNING id"

	rows, err := r.getExec(exec).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "inserting notifications")
	}
	defer func() { _ = rows.Close() }()
	for i := 0; rows.Next() && i < len(ns); i++ {
		if err = rows.Scan(&ns[i].ID); err != nil {
			return nil, errors.Wrap(err, "inserting notifications")
		}
	}
	return ns, errors.Wrap(rows.Err(), "inserting notifications")
}

func (r notificationRepository) GetNotification(ctx context.Context, id int, exec ...core.DBExecutor) (notification.Notification, error) {
	var rows []notificationRow
	if err := selectAll(ctx, r.getExec(exec), &rows, "SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id); err != nil {
		return notification.Notification{}, errors.Wrap(err, "finding notification")
	}
	if len(rows) == 0 {
		return notification.Notification{}, notification.ErrNotFound
	}
	return rows[0].unwrap(), nil
}

func (r notificationRepository) QueryNotifications(ctx context.Context, userID int, p core.Pagination, exec ...core.DBExecutor) ([]notification.Notification, int, error) {
	exe := r.getExec(exec)
	var total int
	if err := scalar(ctx, exe, &total, "SELECT COUNT(*) FROM notifications WHERE user_id = ?", userID); err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}

	q, args := page("SELECT "+notificationColumns+" FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		[]interface{}{userID}, &p)
	var rows []notificationRow
	if err := selectAll(ctx, exe, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		ns = append(ns, row.unwrap())
	}
	return ns, total, nil
}

func (r notificationRepository) SetSeen(ctx context.Context, id int, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec), "UPDATE notifications SET seen = TRUE WHERE id = ?", id)
	return errors.Wrap(err, "marking notification seen")
}

func (r notificationRepository) CountUnseen(ctx context.Context, userID int, exec ...core.DBExecutor) (int, error) {
	var n int
	if err := scalar(ctx, r.getExec(exec), &n, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND NOT seen", userID); err != nil {
		return 0, errors.Wrap(err, "counting unseen notifications")
	}
	return n, nil
}

func (r notificationRepository) ClaimDispatch(ctx context.Context, key, runID string, exec ...core.DBExecutor) (bool, error) {
	res, err := execute(ctx, r.getExec(exec),
		"INSERT INTO notification_dispatches (key, run_id, created_at) VALUES (?, ?, ?) ON CONFLICT (key) DO NOTHING",
		key, runID, core.NowFunc().UTC())
	if err != nil {
		return false, errors.Wrap(err, "claiming dispatch")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "claiming dispatch")
	}
	return n == 1, nil
}

func (r notificationRepository) QueryAttendanceOnDate(ctx context.Context, day core.Date, exec ...core.DBExecutor) ([]notification.AttendanceEntry, error) {
	var rows []struct {
		RecordID    int    `db:"record_id"`
		StudentID   int    `db:"student_id"`
		StudentName string `db:"student_name"`
		TeacherID   int    `db:"teacher_id"`
	}
	err := selectAll(ctx, r.getExec(exec), &rows, `SELECT d.id AS record_id, d.student_id, u.name AS student_name, g.teacher_id
		FROM lesson_days d
		JOIN users u ON u.id = d.student_id
		JOIN lessons l ON l.id = d.lesson_id
		JOIN lesson_groups g ON g.id = l.lesson_group_id
		WHERE d.date = ?
		ORDER BY d.id`, day)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	entries := make([]notification.AttendanceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, notification.AttendanceEntry(row))
	}
	return entries, nil
}
