package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	authmw "github.com/Skotchmaster/laundry_pos/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/laundry_pos/pkg/middleware/logging"
)

type Deps struct {
	AuthHandler *AuthHTTP
	JWTSecret   []byte
	Logger      *slog.Logger
	// Now drives access token validation; nil means time.Now.
	Now func() time.Time
}

func Register(e *echo.Echo, d *Deps) {
	if d.Logger != nil {
		e.Use(loggingmw.RequestLogger(d.Logger))
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	authMw := authmw.NewBearerAuth(d.JWTSecret, d.Now)

	api := e.Group("/api")
	api.POST("/token/", d.AuthHandler.Token)
	api.POST("/token/refresh/", d.AuthHandler.Refresh)
	api.POST("/token/blacklist/", d.AuthHandler.Blacklist)

	private := api.Group("")
	private.Use(authMw.RequireAuth)
	private.GET("/users/me/", d.AuthHandler.Me)
	private.GET("/orders/today/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []any{})
	})

	admin := api.Group("")
	admin.Use(authMw.RequireAdmin)
	admin.GET("/users/", d.AuthHandler.Users)
}

// New builds a configured echo instance.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(middleware.Recover())
	Register(e, d)
	return e
}
