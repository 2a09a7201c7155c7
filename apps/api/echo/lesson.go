package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/lesson"
)

var errInvalidWeekDay = errors.New("week day must be between 1 (Monday) and 7 (Sunday)")

type lessonApi struct {
	svc        lesson.Service
	attendance attendance.Service
	auth       *authenticator
	validate   *validator.Validate
}

func registerLessonAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := lessonApi{
		svc:        deps.LessonSvc,
		attendance: deps.AttendanceSvc,
		auth:       auth,
		validate:   deps.Validate,
	}

	sg := g.Group("/subjects", jwt)
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, adminMiddleware())

	gg := g.Group("/groups", jwt)
	gg.GET("/weekday/:day", api.groupsByWeekDay)
	gg.GET("/:id", api.retrieveGroup)
	gg.POST("", api.createGroup, teacherMiddleware())
	gg.GET("", api.queryGroups, teacherMiddleware())
	gg.PUT("/:id", api.updateGroup, teacherMiddleware())
	gg.DELETE("/:id", api.destroyGroup, teacherMiddleware())
	gg.GET("/:id/seen-counts", api.groupSeenCounts, teacherMiddleware())

	lg := g.Group("/lessons", jwt)
	lg.GET("/:id/group-lessons", api.groupLessons)
	lg.POST("", api.createLesson, teacherMiddleware())
	lg.GET("/day", api.lessonsOnDate, teacherMiddleware())
	lg.PUT("/:id", api.updateLesson, teacherMiddleware())
	lg.DELETE("/:id", api.destroyLesson, teacherMiddleware())
	lg.POST("/:id/cancel", api.cancel, teacherMiddleware())
	lg.POST("/:id/add", api.add, teacherMiddleware())
	lg.POST("/:id/transfer", api.transfer, teacherMiddleware())
	lg.GET("/:id/attendance", api.lessonAttendance, teacherMiddleware())
	lg.GET("/:id/excellent-student", api.excellentStudent, teacherMiddleware())
	lg.GET("/:id/seen-counts", api.lessonSeenCounts, teacherMiddleware())

	g.DELETE("/lesson-operations/:id", api.destroyOperation, jwt, teacherMiddleware())
}

// Subjects

func (api *lessonApi) querySubjects(ctx echo.Context) error {
	subs, err := api.svc.Subjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ok(ctx, http.StatusOK, subs)
}

func (api *lessonApi) createSubject(ctx echo.Context) error {
	var data lesson.NewSubject
	if err := bind(ctx, api.validate, &data, "NewSubject"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.svc.CreateSubject(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ok(ctx, http.StatusCreated, sub)
}

// Groups

func (api *lessonApi) createGroup(ctx echo.Context) error {
	var data lesson.NewGroup
	if err := bind(ctx, api.validate, &data, "NewGroup"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grp, err := api.svc.CreateGroup(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson group")
	}
	return ok(ctx, http.StatusCreated, grp)
}

func (api *lessonApi) queryGroups(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.svc.TeacherGroups(ctx.Request().Context(), usr, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lesson groups")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *lessonApi) groupsByWeekDay(ctx echo.Context) error {
	day, err := strconv.Atoi(ctx.Param("day"))
	if err != nil || day < 1 || day > 7 {
		return core.NewValidationError(errInvalidWeekDay, core.FieldError{Field: "day", Error: errInvalidWeekDay.Error()})
	}

	page, err := api.svc.GroupsByWeekDay(ctx.Request().Context(), day, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lesson groups by week day")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *lessonApi) retrieveGroup(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}

	grp, err := api.svc.GetGroup(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting lesson group")
	}
	return ok(ctx, http.StatusOK, grp)
}

func (api *lessonApi) updateGroup(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data lesson.UpdateGroup
	if err = bind(ctx, api.validate, &data, "UpdateGroup"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grp, err := api.svc.UpdateGroup(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson group")
	}
	return ok(ctx, http.StatusOK, grp)
}

func (api *lessonApi) destroyGroup(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.DeleteGroup(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting lesson group")
	}
	return okMessage(ctx, http.StatusOK, "Lesson group deleted.")
}

func (api *lessonApi) seenCounts(ctx echo.Context, filter attendance.SeenFilter) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter.Student, _ = strconv.Atoi(ctx.QueryParam("student"))

	page, err := api.attendance.SeenCounts(ctx.Request().Context(), usr, filter, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "counting seen records")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *lessonApi) groupSeenCounts(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	return api.seenCounts(ctx, attendance.SeenFilter{Group: id})
}

// Lessons

func (api *lessonApi) createLesson(ctx echo.Context) error {
	var data lesson.NewLesson
	if err := bind(ctx, api.validate, &data, "NewLesson"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	l, err := api.svc.CreateLesson(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ok(ctx, http.StatusCreated, l)
}

func (api *lessonApi) updateLesson(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data lesson.UpdateLesson
	if err = bind(ctx, api.validate, &data, "UpdateLesson"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	l, err := api.svc.UpdateLesson(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ok(ctx, http.StatusOK, l)
}

func (api *lessonApi) destroyLesson(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.DeleteLesson(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return okMessage(ctx, http.StatusOK, "Lesson deleted.")
}

func (api *lessonApi) groupLessons(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}

	lessons, err := api.svc.GroupLessons(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying group lessons")
	}
	return ok(ctx, http.StatusOK, lessons)
}

func (api *lessonApi) lessonsOnDate(ctx echo.Context) error {
	var data lesson.DayFilter
	if err := bind(ctx, api.validate, &data, "DayFilter"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.svc.LessonsOnDate(ctx.Request().Context(), usr, data, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lessons on date")
	}
	return ok(ctx, http.StatusOK, page)
}

// Operations

func (api *lessonApi) cancel(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data lesson.CancelLesson
	if err = bind(ctx, api.validate, &data, "CancelLesson"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	op, err := api.svc.CancelLesson(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "cancelling lesson")
	}
	return ok(ctx, http.StatusCreated, op)
}

func (api *lessonApi) add(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data lesson.AddLesson
	if err = bind(ctx, api.validate, &data, "AddLesson"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	op, err := api.svc.AddLesson(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ok(ctx, http.StatusCreated, op)
}

func (api *lessonApi) transfer(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data lesson.TransferLesson
	if err = bind(ctx, api.validate, &data, "TransferLesson"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ops, err := api.svc.TransferLesson(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "transferring lesson")
	}
	return ok(ctx, http.StatusCreated, ops)
}

func (api *lessonApi) destroyOperation(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.DeleteOperation(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting lesson operation")
	}
	return okMessage(ctx, http.StatusOK, "Lesson operation deleted.")
}

// Lesson attendance

func (api *lessonApi) lessonAttendance(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.attendance.ListByLesson(ctx.Request().Context(), usr, id, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lesson attendance")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *lessonApi) excellentStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	best, err := api.attendance.ExcellentStudent(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "finding excellent student")
	}
	return ok(ctx, http.StatusOK, best)
}

func (api *lessonApi) lessonSeenCounts(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	return api.seenCounts(ctx, attendance.SeenFilter{Lesson: id})
}
