package echoapi

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// envelope wraps every response body.
type envelope struct {
	Status  bool        `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
	Message string      `json:"message,omitempty"`
}

type validatable interface {
	Validate(validate *validator.Validate) error
}

func ok(ctx echo.Context, code int, data interface{}) error {
	return ctx.JSON(code, envelope{Status: true, Data: data})
}

func okMessage(ctx echo.Context, code int, msg string) error {
	return ctx.JSON(code, envelope{Status: true, Message: msg})
}

// bind binds the request into data and validates it.
func bind(ctx echo.Context, validate *validator.Validate, data validatable, name string) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %s", name)
	}
	return data.Validate(validate)
}

// paramID reads a positive integer path parameter, "id" by default.
func paramID(ctx echo.Context, name ...string) (int, error) {
	key := "id"
	if len(name) > 0 {
		key = name[0]
	}
	id, err := strconv.Atoi(ctx.Param(key))
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// pageParam reads the "page" query parameter; invalid values select the first page.
func pageParam(ctx echo.Context) int {
	page, _ := strconv.Atoi(ctx.QueryParam("page"))
	return page
}
