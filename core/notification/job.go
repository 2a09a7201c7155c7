package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// Attendance job outcomes
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

func attendanceKey(day core.Date, recordID int) string {
	return fmt.Sprintf("attendance:%s:%d", day, recordID)
}

// SendAttendance reports every attendance record of day to the student's parents, on behalf of the
// group teacher. Each record is claimed once: re-running the job for the same day sends nothing new.
// A failing record is logged and does not stop the run.
func (svc *service) SendAttendance(ctx context.Context, day core.Date) (JobSummary, error) {
	summary := JobSummary{RunID: uuid.New().String(), Date: day.String()}

	entries, err := svc.repo.QueryAttendanceOnDate(ctx, day)
	if err != nil {
		return summary, errors.Wrap(err, "querying attendance records")
	}

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return summary, err
		}

		var claimed bool
		err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
			var err error
			if claimed, err = svc.repo.ClaimDispatch(ctx, attendanceKey(day, entry.RecordID), summary.RunID, exec); err != nil || !claimed {
				return err
			}
			_, err = svc.Dispatch(ctx, entry.TeacherID, AttendanceReport{
				RecordID:    entry.RecordID,
				StudentID:   entry.StudentID,
				StudentName: entry.StudentName,
			}, exec)
			return err
		})

		switch {
		case err != nil:
			summary.Failed++
			svc.logger.Error(
				fmt.Sprintf("attendance job %s: record %d", summary.RunID, entry.RecordID),
				err,
			)
		case claimed:
			summary.Sent++
		default:
			summary.Skipped++
		}
	}

	svc.metrics.AttendanceJobRecords(OutcomeSent, summary.Sent)
	svc.metrics.AttendanceJobRecords(OutcomeSkipped, summary.Skipped)
	svc.metrics.AttendanceJobRecords(OutcomeFailed, summary.Failed)
	svc.logger.Info(fmt.Sprintf(
		"attendance job %s for %s: %d sent, %d skipped, %d failed",
		summary.RunID, summary.Date, summary.Sent, summary.Skipped, summary.Failed,
	))
	return summary, nil
}
