package handlers

import (
	"strings"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/gallerysync/pkg/api/types/errors"
	"github.com/opst/gallerysync/pkg/auth"
)

// key of echo.Context where the identity of the request is stored.
const IdentityKey = "gallery.identity"

// AdminOnly rejects requests not from admins.
//
// Identity is resolved from "Authorization: Bearer <token>" header by identify.
// It responds 401 when the token is missing or invalid, and 403 when authz does not admit the identity.
func AdminOnly(authz auth.Authorizer, identify func(token string) (auth.Identity, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scheme, token, ok := strings.Cut(c.Request().Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				c.Response().Header().Set("WWW-Authenticate", "Bearer")
				return apierr.Unauthorized("send \"Authorization: Bearer <token>\" header", nil)
			}

			id, err := identify(strings.TrimSpace(token))
			if err != nil {
				c.Response().Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				return apierr.Unauthorized("the token is invalid or expired", err)
			}
			if !authz.IsAdmin(id) {
				return apierr.Forbidden()
			}

			c.Set(IdentityKey, id)
			return next(c)
		}
	}
}
