package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func claimsMiddleware(allowed func(Claims) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if allowed(claims) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return claimsMiddleware(func(c Claims) bool {
			return c.IsAdmin
		})(func(ctx echo.Context) error {
			if !contextHasAnyRole(ctx, roles) {
				return errHttpForbidden
			}
			return next(ctx)
		})
	}
}

// teacherMiddleware also lets admins through.
func teacherMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsTeacher || c.IsAdmin })
}

func studentMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsStudent })
}

func parentMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsParent })
}

// familyMiddleware lets students and parents through.
func familyMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsStudent || c.IsParent })
}
