package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/enrollment"
)

type enrollmentApi struct {
	svc      enrollment.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := enrollmentApi{
		svc:      deps.EnrollmentSvc,
		auth:     auth,
		validate: deps.Validate,
	}

	eg := g.Group("/enrollments", jwt)
	eg.POST("", api.request, studentMiddleware())
	eg.POST("/accept", api.accept, teacherMiddleware())
	eg.POST("/decline", api.decline, teacherMiddleware())
	eg.POST("/transfer", api.transfer, teacherMiddleware())
	eg.POST("/add", api.add, teacherMiddleware())
	eg.PUT("/:id/status", api.changeStatus, teacherMiddleware())

	g.GET("/groups/:id/enrollments", api.groupEnrollments, jwt, teacherMiddleware())
}

func (api *enrollmentApi) request(ctx echo.Context) error {
	var data enrollment.Request
	if err := bind(ctx, api.validate, &data, "Request"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	e, err := api.svc.Request(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "requesting enrollment")
	}
	return ok(ctx, http.StatusCreated, e)
}

func (api *enrollmentApi) decide(ctx echo.Context, accept bool) error {
	var data enrollment.Decision
	if err := bind(ctx, api.validate, &data, "Decision"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var e enrollment.Enrollment
	if accept {
		e, err = api.svc.Accept(ctx.Request().Context(), usr, data)
	} else {
		e, err = api.svc.Decline(ctx.Request().Context(), usr, data)
	}
	if err != nil {
		return errors.Wrap(err, "deciding on enrollment")
	}
	return ok(ctx, http.StatusOK, e)
}

func (api *enrollmentApi) accept(ctx echo.Context) error  { return api.decide(ctx, true) }
func (api *enrollmentApi) decline(ctx echo.Context) error { return api.decide(ctx, false) }

func (api *enrollmentApi) changeStatus(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data enrollment.ChangeStatus
	if err = bind(ctx, api.validate, &data, "ChangeStatus"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	e, err := api.svc.ChangeStatus(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "changing enrollment status")
	}
	return ok(ctx, http.StatusOK, e)
}

func (api *enrollmentApi) transfer(ctx echo.Context) error {
	var data enrollment.Transfer
	if err := bind(ctx, api.validate, &data, "Transfer"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	e, err := api.svc.Transfer(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "transferring student")
	}
	return ok(ctx, http.StatusOK, e)
}

func (api *enrollmentApi) add(ctx echo.Context) error {
	var data enrollment.AddToGroup
	if err := bind(ctx, api.validate, &data, "AddToGroup"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	e, err := api.svc.AddToGroup(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "adding student to group")
	}
	return ok(ctx, http.StatusOK, e)
}

func (api *enrollmentApi) groupEnrollments(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	es, err := api.svc.GroupEnrollments(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "querying group enrollments")
	}
	return ok(ctx, http.StatusOK, es)
}
