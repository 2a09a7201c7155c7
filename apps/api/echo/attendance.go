package echoapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/user"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type attendanceApi struct {
	svc      attendance.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := attendanceApi{
		svc:      deps.AttendanceSvc,
		auth:     auth,
		validate: deps.Validate,
	}

	ag := g.Group("/attendance", jwt)
	ag.PUT("/type", api.setStatus, teacherMiddleware())
	ag.PUT("", api.grade, teacherMiddleware())
	ag.PUT("/home-work", api.gradeHomeWork, teacherMiddleware())
	ag.PUT("/lesson-work", api.gradeLessonWork, teacherMiddleware())
	ag.POST("/absent", api.reportAbsence, studentMiddleware())
	ag.GET("/student", api.listForStudent)
	ag.GET("/statistic", api.statistic)
	ag.GET("/logs/:kind", api.logs)
	ag.GET("/logs/:kind/export", api.exportLogs)
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/acknowledge", api.acknowledge, parentMiddleware())
	ag.DELETE("/:id", api.destroy, teacherMiddleware())

	rg := g.Group("/ratings", jwt)
	rg.GET("", api.teacherRating, teacherMiddleware())
	rg.GET("/subjects/:id", api.subjectRating, familyMiddleware())
}

// Writes

func (api *attendanceApi) setStatus(ctx echo.Context) error {
	var data attendance.SetStatus
	if err := bind(ctx, api.validate, &data, "SetStatus"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.svc.SetStatus(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "setting attendance status")
	}
	return ok(ctx, http.StatusOK, r)
}

func (api *attendanceApi) grade(ctx echo.Context) error {
	var data attendance.Grade
	if err := bind(ctx, api.validate, &data, "Grade"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.svc.Grade(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "grading")
	}
	return ok(ctx, http.StatusOK, r)
}

type batchGradeFunc func(ctx context.Context, actor user.User, bg attendance.BatchGrade) ([]attendance.Record, error)

func (api *attendanceApi) batchGrade(ctx echo.Context, gradeFn batchGradeFunc) error {
	var data attendance.BatchGrade
	if err := bind(ctx, api.validate, &data, "BatchGrade"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	records, err := gradeFn(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "batch grading")
	}
	return ok(ctx, http.StatusOK, records)
}

func (api *attendanceApi) gradeHomeWork(ctx echo.Context) error {
	return api.batchGrade(ctx, api.svc.GradeHomeWork)
}

func (api *attendanceApi) gradeLessonWork(ctx echo.Context) error {
	return api.batchGrade(ctx, api.svc.GradeLessonWork)
}

func (api *attendanceApi) reportAbsence(ctx echo.Context) error {
	var data attendance.ReportAbsence
	if err := bind(ctx, api.validate, &data, "ReportAbsence"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.svc.ReportAbsence(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "reporting absence")
	}
	return ok(ctx, http.StatusCreated, r)
}

// Reads

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.svc.Get(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting attendance record")
	}
	return ok(ctx, http.StatusOK, r)
}

func (api *attendanceApi) acknowledge(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.svc.Acknowledge(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "acknowledging attendance record")
	}
	return ok(ctx, http.StatusOK, r)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.Delete(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	return okMessage(ctx, http.StatusOK, "Attendance record deleted.")
}

func (api *attendanceApi) listForStudent(ctx echo.Context) error {
	var data attendance.StudentFilter
	if err := bind(ctx, api.validate, &data, "StudentFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.svc.ListForStudent(ctx.Request().Context(), usr, data, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying student attendance")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *attendanceApi) statistic(ctx echo.Context) error {
	var data attendance.StudentFilter
	if err := bind(ctx, api.validate, &data, "StudentFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	stats, err := api.svc.Statistic(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "computing attendance statistic")
	}
	return ok(ctx, http.StatusOK, stats)
}

func (api *attendanceApi) logs(ctx echo.Context) error {
	var data attendance.LogFilter
	if err := bind(ctx, api.validate, &data, "LogFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.svc.Logs(ctx.Request().Context(), usr, data, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attendance logs")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *attendanceApi) exportLogs(ctx echo.Context) error {
	var data attendance.LogFilter
	if err := bind(ctx, api.validate, &data, "LogFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	content, err := api.svc.ExportLogs(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "exporting attendance logs")
	}
	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d-%d.xlsx", data.Kind, data.Lesson, data.Student)),
	)
	return ctx.Blob(http.StatusOK, xlsxMIME, content)
}

// Ratings

func (api *attendanceApi) teacherRating(ctx echo.Context) error {
	var data attendance.RatingFilter
	if err := bind(ctx, api.validate, &data, "RatingFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.svc.TeacherRating(ctx.Request().Context(), usr, data, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "computing teacher rating")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *attendanceApi) subjectRating(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data attendance.SubjectRatingFilter
	if err = bind(ctx, api.validate, &data, "SubjectRatingFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ratings, err := api.svc.SubjectRating(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "computing subject rating")
	}
	return ok(ctx, http.StatusOK, ratings)
}
