package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/lesson"
)

type lessonRepository struct {
	db *DB
}

var _ lesson.Repository = (*lessonRepository)(nil) // interface compliance check

func NewLessonRepository(db *DB) lesson.Repository {
	return &lessonRepository{db: db}
}

func intSet(ids []int) map[int]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (repo *lessonRepository) CreateSubject(_ context.Context, sub lesson.Subject, _ ...core.DBExecutor) (lesson.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = repo.db.nextID("subjects")
	repo.db.subjects[sub.ID] = sub
	return sub, nil
}

func (repo *lessonRepository) GetSubject(_ context.Context, id int, _ ...core.DBExecutor) (lesson.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return sub, nil
	}
	return lesson.Subject{}, lesson.ErrSubjectNotFound
}

func (repo *lessonRepository) QuerySubjects(_ context.Context, _ ...core.DBExecutor) ([]lesson.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]lesson.Subject, 0, len(repo.db.subjects))
	for _, sub := range repo.db.subjects {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Name != subs[j].Name {
			return subs[i].Name < subs[j].Name
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (repo *lessonRepository) CreateGroup(_ context.Context, grp lesson.Group, _ ...core.DBExecutor) (lesson.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp.ID = repo.db.nextID("lesson_groups")
	grp.Lessons = nil
	repo.db.groups[grp.ID] = grp
	return grp, nil
}

func (repo *lessonRepository) GetGroup(_ context.Context, id int, _ ...core.DBExecutor) (lesson.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grp, ok := repo.db.groups[id]; ok && !grp.IsDeleted() {
		return grp, nil
	}
	return lesson.Group{}, lesson.ErrGroupNotFound
}

func (repo *lessonRepository) UpdateGroup(_ context.Context, grp lesson.Group, _ ...core.DBExecutor) (lesson.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.groups[grp.ID]; !ok {
		return lesson.Group{}, lesson.ErrGroupNotFound
	}
	grp.Lessons = nil
	repo.db.groups[grp.ID] = grp
	return grp, nil
}

func (repo *lessonRepository) QueryGroups(_ context.Context, filter lesson.GroupFilter, p *core.Pagination, _ ...core.DBExecutor) ([]lesson.Group, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := intSet(filter.IDs)
	onDay := make(map[int]bool)
	if filter.WeekDay > 0 {
		for _, l := range repo.db.lessons {
			if l.WeekDay == filter.WeekDay {
				onDay[l.GroupID] = true
			}
		}
	}

	groups := make([]lesson.Group, 0)
	for _, grp := range repo.db.groups {
		switch {
		case grp.IsDeleted(),
			ids != nil && !ids[grp.ID],
			filter.TeacherID > 0 && grp.TeacherID != filter.TeacherID,
			filter.SubjectID > 0 && grp.SubjectID != filter.SubjectID,
			filter.WeekDay > 0 && !onDay[grp.ID]:
			continue
		}
		groups = append(groups, grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })

	total := len(groups)
	if p != nil {
		start, end := p.Bounds(total)
		groups = groups[start:end]
	}
	return groups, total, nil
}

func (repo *lessonRepository) CreateLesson(_ context.Context, l lesson.Lesson, _ ...core.DBExecutor) (lesson.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	l.ID = repo.db.nextID("lessons")
	repo.db.lessons[l.ID] = l
	return l, nil
}

func (repo *lessonRepository) GetLesson(_ context.Context, id int, _ ...core.DBExecutor) (lesson.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return l, nil
	}
	return lesson.Lesson{}, lesson.ErrNotFound
}

func (repo *lessonRepository) UpdateLesson(_ context.Context, l lesson.Lesson, _ ...core.DBExecutor) (lesson.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[l.ID]; !ok {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	repo.db.lessons[l.ID] = l
	return l, nil
}

// DeleteLesson also removes the lesson's operations, records and enrollment attachments.
func (repo *lessonRepository) DeleteLesson(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.lessons, id)
	for opID, op := range repo.db.operations {
		if op.LessonID == id {
			delete(repo.db.operations, opID)
		}
	}
	for recID, r := range repo.db.records {
		if r.LessonID == id {
			delete(repo.db.records, recID)
		}
	}
	for eID, e := range repo.db.enrollments {
		kept := make([]int, 0, len(e.LessonIDs))
		for _, lessonID := range e.LessonIDs {
			if lessonID != id {
				kept = append(kept, lessonID)
			}
		}
		e.LessonIDs = kept
		repo.db.enrollments[eID] = e
	}
	return nil
}

func (repo *lessonRepository) QueryLessons(_ context.Context, filter lesson.LessonFilter, _ ...core.DBExecutor) ([]lesson.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := intSet(filter.IDs)
	groupIDs := intSet(filter.GroupIDs)

	lessons := make([]lesson.Lesson, 0)
	for _, l := range repo.db.lessons {
		grp, ok := repo.db.groups[l.GroupID]
		switch {
		case !ok, grp.IsDeleted(),
			ids != nil && !ids[l.ID],
			groupIDs != nil && !groupIDs[l.GroupID],
			filter.TeacherID > 0 && grp.TeacherID != filter.TeacherID,
			filter.WeekDay > 0 && l.WeekDay != filter.WeekDay:
			continue
		}
		lessons = append(lessons, l)
	}
	sort.Slice(lessons, func(i, j int) bool {
		a, b := lessons[i], lessons[j]
		if a.WeekDay != b.WeekDay {
			return a.WeekDay < b.WeekDay
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return lessons, nil
}

func (repo *lessonRepository) CreateOperation(_ context.Context, op lesson.Operation, _ ...core.DBExecutor) (lesson.Operation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, other := range repo.db.operations {
		if other.LessonID == op.LessonID && other.Date.Equal(op.Date.Time) {
			return lesson.Operation{}, errors.Wrap(lesson.ErrExceptionExists, "inserting lesson operation")
		}
	}
	op.ID = repo.db.nextID("lesson_operations")
	repo.db.operations[op.ID] = op
	return op, nil
}

func (repo *lessonRepository) GetOperation(_ context.Context, id int, _ ...core.DBExecutor) (lesson.Operation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if op, ok := repo.db.operations[id]; ok {
		return op, nil
	}
	return lesson.Operation{}, lesson.ErrOperationNotFound
}

func (repo *lessonRepository) FindOperation(_ context.Context, lessonID int, date core.Date, _ ...core.DBExecutor) (lesson.Operation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, op := range repo.db.operations {
		if op.LessonID == lessonID && op.Date.Equal(date.Time) {
			return op, nil
		}
	}
	return lesson.Operation{}, lesson.ErrOperationNotFound
}

func (repo *lessonRepository) DeleteOperation(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.operations, id)
	return nil
}

func (repo *lessonRepository) QueryOperationsOnDate(_ context.Context, teacherID int, date core.Date, _ ...core.DBExecutor) ([]lesson.Operation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ops := make([]lesson.Operation, 0)
	for _, op := range repo.db.operations {
		if !op.Date.Equal(date.Time) {
			continue
		}
		l, ok := repo.db.lessons[op.LessonID]
		if !ok {
			continue
		}
		if grp, ok := repo.db.groups[l.GroupID]; ok && !grp.IsDeleted() && grp.TeacherID == teacherID {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops, nil
}
