package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/lesson"
)

type enrollmentRepository struct {
	db *DB
}

var (
	_ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check
	_ lesson.Roster         = (*enrollmentRepository)(nil)
)

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func hasInt(ids []int, id int) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

// sorted returns the enrollments ordered by id; must be called with the read lock held.
func (repo *enrollmentRepository) sorted() []enrollment.Enrollment {
	es := make([]enrollment.Enrollment, 0, len(repo.db.enrollments))
	for _, e := range repo.db.enrollments {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
	return es
}

func withLessonIDs(e enrollment.Enrollment) enrollment.Enrollment {
	e.LessonIDs = append([]int{}, e.LessonIDs...)
	return e
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e.ID = repo.db.nextID("lesson_group_students")
	e.LessonIDs = nil
	repo.db.enrollments[e.ID] = e
	return withLessonIDs(e), nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id int, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.enrollments[id]; ok {
		return withLessonIDs(e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) FindEnrollment(_ context.Context, filter enrollment.Filter, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, e := range repo.sorted() {
		switch {
		case filter.StudentID > 0 && e.StudentID != filter.StudentID,
			filter.GroupID > 0 && e.GroupID != filter.GroupID,
			filter.LessonID > 0 && !hasInt(e.LessonIDs, filter.LessonID):
			continue
		}
		return withLessonIDs(e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment, _ ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.enrollments[e.ID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	e.LessonIDs = orig.LessonIDs // attachments change through Attach/SyncLessons only
	repo.db.enrollments[e.ID] = e
	return withLessonIDs(e), nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, groupID int, _ ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	es := make([]enrollment.Enrollment, 0)
	for _, e := range repo.sorted() {
		if e.GroupID == groupID {
			es = append(es, withLessonIDs(e))
		}
	}
	return es, nil
}

func (repo *enrollmentRepository) AttachLessons(_ context.Context, enrollmentID int, lessonIDs []int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.enrollments[enrollmentID]
	if !ok {
		return enrollment.ErrNotFound
	}
	attached := append([]int{}, e.LessonIDs...)
	for _, id := range lessonIDs {
		if !hasInt(attached, id) {
			attached = append(attached, id)
		}
	}
	sort.Ints(attached)
	e.LessonIDs = attached
	repo.db.enrollments[enrollmentID] = e
	return nil
}

func (repo *enrollmentRepository) SyncLessons(_ context.Context, enrollmentID int, lessonIDs []int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.enrollments[enrollmentID]
	if !ok {
		return enrollment.ErrNotFound
	}
	synced := make([]int, 0, len(lessonIDs))
	for _, id := range lessonIDs {
		if !hasInt(synced, id) {
			synced = append(synced, id)
		}
	}
	sort.Ints(synced)
	e.LessonIDs = synced
	repo.db.enrollments[enrollmentID] = e
	return nil
}

func (repo *enrollmentRepository) StudentHasLesson(_ context.Context, studentID int, lessonIDs []int, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, e := range repo.db.enrollments {
		if e.StudentID != studentID {
			continue
		}
		for _, id := range lessonIDs {
			if hasInt(e.LessonIDs, id) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (repo *enrollmentRepository) QueryAcceptedStudentIDs(_ context.Context, groupID int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ids []int
	for _, e := range repo.db.enrollments {
		if e.GroupID == groupID && e.Status == enrollment.StatusAccept && !hasInt(ids, e.StudentID) {
			ids = append(ids, e.StudentID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
