package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// sendAttendance runs the daily attendance report for date (d-m-Y), yesterday when empty.
func (cli *commandLine) sendAttendance(date string) error {
	day := core.Today().AddDays(-1)
	if date != "" {
		var err error
		if day, err = core.ParseDate(date); err != nil {
			return errors.Wrap(err, "invalid date")
		}
	}

	summary, err := cli.notifications.SendAttendance(context.Background(), day)
	if err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf(
		"attendance run %s for %s: sent=%d skipped=%d failed=%d",
		summary.RunID, summary.Date, summary.Sent, summary.Skipped, summary.Failed,
	))
	return nil
}
