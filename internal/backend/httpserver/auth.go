package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/laundry_pos/internal/backend/service"
	"github.com/Skotchmaster/laundry_pos/internal/logging"
	middleware "github.com/Skotchmaster/laundry_pos/pkg/middleware/auth"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type roleDTO struct {
	RoleName string `json:"role_name"`
}

type userDTO struct {
	ID       uint    `json:"id"`
	Username string  `json:"username"`
	Role     roleDTO `json:"role"`
}

func (h *AuthHTTP) Token(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "token_obtain")

	var req credentials
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	pair, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "No active account found with the given credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access":  pair.Access,
		"refresh": pair.Refresh,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "token_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "refresh is required")
	}

	access, err := h.Svc.Refresh(ctx, req.Refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Token is invalid or expired")
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"access": access})
}

func (h *AuthHTTP) Blacklist(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh is required")
	}
	if err := h.Svc.Revoke(c.Request().Context(), req.Refresh); err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Token is invalid or expired")
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *AuthHTTP) Me(c echo.Context) error {
	subject, _ := c.Get(middleware.ContextUserID).(string)
	user, err := h.Svc.Me(c.Request().Context(), subject)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not found").SetInternal(err)
	}
	return c.JSON(http.StatusOK, userDTO{
		ID:       user.ID,
		Username: user.Username,
		Role:     roleDTO{RoleName: user.Role},
	})
}

// Users lists every account; the route is admin only.
func (h *AuthHTTP) Users(c echo.Context) error {
	users, err := h.Svc.Users(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO{ID: u.ID, Username: u.Username, Role: roleDTO{RoleName: u.Role}})
	}
	return c.JSON(http.StatusOK, out)
}
