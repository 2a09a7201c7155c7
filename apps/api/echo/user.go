package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/attendance"
	"github.com/trezcool/ratiba/core/user"
)

const passwordResetSent = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

type userApi struct {
	svc        user.Service
	attendance attendance.Service
	auth       *authenticator
	validate   *validator.Validate
	logger     core.Logger
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := userApi{
		svc:        deps.UserSvc,
		attendance: deps.AttendanceSvc,
		auth:       auth,
		validate:   deps.Validate,
		logger:     deps.Logger,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.PUT("/me/lesson-duration", api.setLessonDuration, teacherMiddleware())
	ag.POST("/:id/greeting", api.greet, teacherMiddleware())
	ag.POST("/register", api.create, adminMiddleware())
	ag.POST("/:id/parents", api.linkParent, adminMiddleware())
	ag.GET("/roles", api.queryRoles, adminMiddleware())
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bind(ctx, api.validate, &data, "LoginRequest"); err != nil {
		return err
	}

	claims, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.auth.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ok(ctx, http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ok(ctx, http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bind(ctx, api.validate, &data, "PasswordResetRequest"); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || core.IsNotFound(err)) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return okMessage(ctx, http.StatusOK, passwordResetSent)
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bind(ctx, api.validate, &data, "ResetUserPassword"); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return okMessage(ctx, http.StatusOK, "Password has been reset with the new password.")
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ok(ctx, http.StatusOK, usr)
}

func (api *userApi) setLessonDuration(ctx echo.Context) error {
	var data user.LessonDuration
	if err := bind(ctx, api.validate, &data, "LessonDuration"); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	usr, err = api.svc.SetLessonDuration(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "setting lesson duration")
	}
	ctx.Set(contextUserKey, usr)
	return ok(ctx, http.StatusOK, usr)
}

func (api *userApi) greet(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.attendance.GreetStudent(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "greeting student")
	}
	return okMessage(ctx, http.StatusOK, "Greeting sent.")
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bind(ctx, api.validate, &data, "NewUser"); err != nil {
		return err
	}

	// only owners can create admins
	if !contextHasAnyRole(ctx, []string{user.RoleAdminOwner}) {
		for _, role := range data.Roles {
			if role == user.RoleAdmin || role == user.RoleAdminOwner {
				return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
			}
		}
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ok(ctx, http.StatusCreated, usr)
}

func (api *userApi) linkParent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data LinkParentRequest
	if err = bind(ctx, api.validate, &data, "LinkParentRequest"); err != nil {
		return err
	}

	if err = api.svc.LinkParent(ctx.Request().Context(), id, data.Parent); err != nil {
		return errors.Wrap(err, "linking parent")
	}
	return okMessage(ctx, http.StatusOK, "Parent linked.")
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ok(ctx, http.StatusOK, user.Roles)
}

const errNoPermsToSetRoles = "not enough rights to set these roles"

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	LinkParentRequest struct {
		Parent int `json:"parent" validate:"required,min=1"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (lp LinkParentRequest) Validate(validate *validator.Validate) error { return validate.Struct(lp) }
