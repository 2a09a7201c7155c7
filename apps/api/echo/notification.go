package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/notification"
)

type notificationApi struct {
	svc  notification.Service
	auth *authenticator
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := notificationApi{svc: deps.NotificationSvc, auth: auth}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.GET("/unseen-count", api.unseenCount)
	ng.POST("/:id/seen", api.markSeen)
}

func (api *notificationApi) query(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	page, err := api.svc.List(ctx.Request().Context(), usr, pageParam(ctx))
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ok(ctx, http.StatusOK, page)
}

func (api *notificationApi) unseenCount(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	count, err := api.svc.UnseenCount(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "counting unseen notifications")
	}
	return ok(ctx, http.StatusOK, echo.Map{"count": count})
}

func (api *notificationApi) markSeen(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	n, err := api.svc.MarkSeen(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "marking notification as seen")
	}
	return ok(ctx, http.StatusOK, n)
}
