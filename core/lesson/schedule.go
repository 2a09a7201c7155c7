package lesson

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// overlaps reports whether a lesson starting at other falls strictly within buffer minutes of t.
// Both clocks belong to the same day: a slot never conflicts across midnight.
func overlaps(t, other core.Clock, buffer int) bool {
	d := int(other) - int(t)
	return d > -buffer && d < buffer
}

// HasConflict reports whether the teacher already has a lesson (of a non-deleted group) on weekDay
// starting within the teacher's lesson buffer around t. Lessons whose ID is in exclude are ignored.
func (svc *service) HasConflict(ctx context.Context, teacherID, weekDay int, t core.Clock, exclude ...int) (bool, error) {
	return svc.hasConflict(ctx, teacherID, weekDay, t, exclude)
}

func (svc *service) hasConflict(ctx context.Context, teacherID, weekDay int, t core.Clock, exclude []int, exec ...core.DBExecutor) (bool, error) {
	buffer, err := svc.users.LessonBuffer(ctx, teacherID)
	if err != nil {
		return false, errors.Wrap(err, "loading lesson buffer")
	}
	lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{TeacherID: teacherID, WeekDay: weekDay}, exec...)
	if err != nil {
		return false, errors.Wrap(err, "querying teacher lessons")
	}

outer:
	for _, l := range lessons {
		for _, id := range exclude {
			if l.ID == id {
				continue outer
			}
		}
		if overlaps(t, l.Time, buffer) {
			return true, nil
		}
	}
	return false, nil
}

// checkConflict is hasConflict turned into the ErrOverlap validation error.
func (svc *service) checkConflict(ctx context.Context, teacherID, weekDay int, t core.Clock, exclude []int, exec ...core.DBExecutor) error {
	conflict, err := svc.hasConflict(ctx, teacherID, weekDay, t, exclude, exec...)
	if err != nil {
		return err
	}
	if conflict {
		svc.metrics.ConflictRejected()
		return core.NewValidationError(ErrOverlap, core.FieldError{Field: "time", Error: ErrOverlap.Error()})
	}
	return nil
}
