package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/laundry_pos/pkg/tokens"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

type ValidatorFunc func(claims *tokens.AccessClaims) error

// BearerAuth validates the access token in the Authorization header.
type BearerAuth struct {
	JWTSecret []byte
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

func NewBearerAuth(secret []byte, now func() time.Time) *BearerAuth {
	return &BearerAuth{JWTSecret: secret, Now: now}
}

func (m *BearerAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

func (m *BearerAuth) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, func(claims *tokens.AccessClaims) error {
		if claims.Role != "admin" && claims.Role != "superadmin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return nil
	})
}

func (m *BearerAuth) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}

		var opts []jwt.ParserOption
		if m.Now != nil {
			opts = append(opts, jwt.WithTimeFunc(m.Now))
		}
		claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret, opts...)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Given token not valid for any token type").SetInternal(err)
		}

		if validator != nil {
			if err := validator(claims); err != nil {
				return err
			}
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
