package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/enrollment"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func inRange(d core.Date, from, to *core.Date) bool {
	if from != nil && d.Before(from.Time) {
		return false
	}
	if to != nil && d.After(to.Time) {
		return false
	}
	return true
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id int, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.records[id]; ok {
		return r, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) find(studentID, lessonID int, date core.Date) (attendance.Record, bool) {
	for _, r := range repo.db.records {
		if r.StudentID == studentID && r.LessonID == lessonID && r.Date.Equal(date.Time) {
			return r, true
		}
	}
	return attendance.Record{}, false
}

func (repo *attendanceRepository) FindRecord(_ context.Context, studentID, lessonID int, date core.Date, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.find(studentID, lessonID, date); ok {
		return r, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) SaveRecord(_ context.Context, r attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r.Student = nil
	if r.ID == 0 {
		if existing, ok := repo.find(r.StudentID, r.LessonID, r.Date); ok {
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			r.ParentSeen = existing.ParentSeen
		} else {
			r.ID = repo.db.nextID("lesson_days")
		}
	} else if _, ok := repo.db.records[r.ID]; !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	repo.db.records[r.ID] = r
	return r, nil
}

func (repo *attendanceRepository) DeleteRecord(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.records, id)
	return nil
}

// filter returns the matching records ordered by date and id; must be called with the read lock held.
func (repo *attendanceRepository) filter(f attendance.RecordFilter) []attendance.Record {
	lessons := intSet(f.LessonIDs)
	records := make([]attendance.Record, 0)
	for _, r := range repo.db.records {
		switch {
		case lessons != nil && !lessons[r.LessonID],
			f.StudentID > 0 && r.StudentID != f.StudentID,
			f.Date != nil && !r.Date.Equal(f.Date.Time),
			!inRange(r.Date, f.From, f.To):
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date.Time) {
			return records[i].Date.Before(records[j].Date.Time)
		}
		return records[i].ID < records[j].ID
	})
	return records
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, f attendance.RecordFilter, p *core.Pagination, _ ...core.DBExecutor) ([]attendance.Record, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := repo.filter(f)
	total := len(records)
	if p != nil {
		start, end := p.Bounds(total)
		records = records[start:end]
	}
	return records, total, nil
}

func (repo *attendanceRepository) QueryRatings(_ context.Context, q attendance.RatingQuery, p *core.Pagination, _ ...core.DBExecutor) ([]attendance.Rating, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ratings := make([]attendance.Rating, 0)
	if len(q.LessonIDs) == 0 {
		return ratings, 0, nil
	}
	totals := make(map[int]int)
	for _, r := range repo.filter(attendance.RecordFilter{LessonIDs: q.LessonIDs, From: q.From, To: q.To}) {
		totals[r.StudentID] += int(r.MarkHome.Int) + int(r.MarkLesson.Int)
	}
	for studentID, total := range totals {
		ratings = append(ratings, attendance.Rating{
			StudentID: studentID,
			Name:      repo.db.users[studentID].Name,
			TotalMark: total,
		})
	}
	sort.Slice(ratings, func(i, j int) bool {
		if ratings[i].TotalMark != ratings[j].TotalMark {
			return ratings[i].TotalMark > ratings[j].TotalMark
		}
		return ratings[i].StudentID < ratings[j].StudentID
	})

	total := len(ratings)
	if p != nil {
		start, end := p.Bounds(total)
		ratings = ratings[start:end]
	}
	return ratings, total, nil
}

type average struct {
	sum float64
	n   int
}

func (a *average) add(v float64) {
	a.sum += v
	a.n++
}

func (a average) value() null.Float64 {
	if a.n == 0 {
		return null.Float64{}
	}
	return null.Float64From(a.sum / float64(a.n))
}

func (repo *attendanceRepository) QueryExcellentStudent(_ context.Context, lessonIDs []int, from, to core.Date, _ ...core.DBExecutor) (*attendance.ExcellentStudent, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if len(lessonIDs) == 0 {
		return nil, nil
	}
	type averages struct{ home, lesson, total average }
	byStudent := make(map[int]*averages)
	for _, r := range repo.filter(attendance.RecordFilter{LessonIDs: lessonIDs, From: &from, To: &to}) {
		avg, ok := byStudent[r.StudentID]
		if !ok {
			avg = &averages{}
			byStudent[r.StudentID] = avg
		}
		if r.MarkHome.Valid {
			avg.home.add(float64(r.MarkHome.Int))
		}
		if r.MarkLesson.Valid {
			avg.lesson.add(float64(r.MarkLesson.Int))
		}
		if r.MarkHome.Valid && r.MarkLesson.Valid {
			avg.total.add(float64(r.MarkHome.Int+r.MarkLesson.Int) / 2)
		}
	}

	var best *attendance.ExcellentStudent
	for studentID, avg := range byStudent {
		candidate := attendance.ExcellentStudent{
			StudentID:  studentID,
			Name:       repo.db.users[studentID].Name,
			MarkHome:   avg.home.value(),
			MarkLesson: avg.lesson.value(),
			AvgTotal:   avg.total.value(),
		}
		if best == nil || better(candidate, *best) {
			c := candidate
			best = &c
		}
	}
	return best, nil
}

// better orders by avg_total descending with missing averages last, then by student id.
func better(a, b attendance.ExcellentStudent) bool {
	switch {
	case a.AvgTotal.Valid && !b.AvgTotal.Valid:
		return true
	case !a.AvgTotal.Valid && b.AvgTotal.Valid:
		return false
	case a.AvgTotal.Valid && a.AvgTotal.Float64 != b.AvgTotal.Float64:
		return a.AvgTotal.Float64 > b.AvgTotal.Float64
	}
	return a.StudentID < b.StudentID
}

func (repo *attendanceRepository) QuerySeenCounts(_ context.Context, groupID, studentID int, p *core.Pagination, _ ...core.DBExecutor) ([]attendance.SeenCount, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make([]attendance.SeenCount, 0)
	if grp, ok := repo.db.groups[groupID]; !ok || grp.IsDeleted() {
		return counts, 0, nil
	}
	var lessonIDs []int
	for _, l := range repo.db.lessons {
		if l.GroupID == groupID {
			lessonIDs = append(lessonIDs, l.ID)
		}
	}

	students := make(map[int]bool)
	for _, e := range repo.db.enrollments {
		if e.GroupID == groupID && e.Status == enrollment.StatusAccept && (studentID == 0 || e.StudentID == studentID) {
			students[e.StudentID] = true
		}
	}
	for _, link := range repo.db.parents {
		if !students[link.studentID] {
			continue
		}
		c := attendance.SeenCount{
			StudentID:   link.studentID,
			StudentName: repo.db.users[link.studentID].Name,
			ParentID:    link.parentID,
			ParentName:  repo.db.users[link.parentID].Name,
		}
		if len(lessonIDs) > 0 {
			for _, r := range repo.filter(attendance.RecordFilter{LessonIDs: lessonIDs, StudentID: link.studentID}) {
				if r.ParentSeen {
					c.Seen++
				} else {
					c.NotSeen++
				}
			}
		}
		counts = append(counts, c)
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].StudentID != counts[j].StudentID {
			return counts[i].StudentID < counts[j].StudentID
		}
		return counts[i].ParentID < counts[j].ParentID
	})

	total := len(counts)
	if p != nil {
		start, end := p.Bounds(total)
		counts = counts[start:end]
	}
	return counts, total, nil
}

func (repo *attendanceRepository) QuerySubjectGroupID(_ context.Context, studentID, subjectID int, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	best := 0
	bestEnrollment := 0
	for _, e := range repo.db.enrollments {
		if e.StudentID != studentID || e.Status != enrollment.StatusAccept {
			continue
		}
		grp, ok := repo.db.groups[e.GroupID]
		if !ok || grp.IsDeleted() || grp.SubjectID != subjectID {
			continue
		}
		if bestEnrollment == 0 || e.ID < bestEnrollment {
			best, bestEnrollment = grp.ID, e.ID
		}
	}
	return best, nil
}
