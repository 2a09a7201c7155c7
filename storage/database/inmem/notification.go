package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns []notification.Notification, _ ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i := range ns {
		ns[i].ID = repo.db.nextID("notifications")
		repo.db.notifications[ns[i].ID] = ns[i]
	}
	return ns, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id int, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.notifications[id]; ok {
		return n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID int, p core.Pagination, _ ...core.DBExecutor) ([]notification.Notification, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID == userID {
			ns = append(ns, n)
		}
	}
	sort.Slice(ns, func(i, j int) bool {
		if !ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].CreatedAt.After(ns[j].CreatedAt)
		}
		return ns[i].ID > ns[j].ID
	})

	total := len(ns)
	start, end := p.Bounds(total)
	return ns[start:end], total, nil
}

func (repo *notificationRepository) SetSeen(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if n, ok := repo.db.notifications[id]; ok {
		n.Seen = true
		repo.db.notifications[id] = n
	}
	return nil
}

func (repo *notificationRepository) CountUnseen(_ context.Context, userID int, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	count := 0
	for _, n := range repo.db.notifications {
		if n.UserID == userID && !n.Seen {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) ClaimDispatch(_ context.Context, key, runID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, claimed := repo.db.dispatches[key]; claimed {
		return false, nil
	}
	repo.db.dispatches[key] = runID
	return true, nil
}

func (repo *notificationRepository) QueryAttendanceOnDate(_ context.Context, day core.Date, _ ...core.DBExecutor) ([]notification.AttendanceEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]int, 0)
	for id, r := range repo.db.records {
		if r.Date.Equal(day.Time) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	entries := make([]notification.AttendanceEntry, 0, len(ids))
	for _, id := range ids {
		r := repo.db.records[id]
		l, ok := repo.db.lessons[r.LessonID]
		if !ok {
			continue
		}
		grp, ok := repo.db.groups[l.GroupID]
		if !ok {
			continue
		}
		student, ok := repo.db.users[r.StudentID]
		if !ok {
			continue
		}
		entries = append(entries, notification.AttendanceEntry{
			RecordID:    r.ID,
			StudentID:   r.StudentID,
			StudentName: student.Name,
			TeacherID:   grp.TeacherID,
		})
	}
	return entries, nil
}
