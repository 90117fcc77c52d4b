package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/laundry_pos/pkg/tokens"
)

var secret = []byte("test-jwt-secret")

func serve(t *testing.T, mw echo.MiddlewareFunc, header string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	e.GET("/p", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(ContextUserID).(string)+":"+c.Get(ContextRole).(string))
	}, mw)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	m := NewBearerAuth(secret, func() time.Time { return now })

	valid, err := tokens.SignAccessToken("3", "cashier", now.Add(time.Minute), secret)
	require.NoError(t, err)
	expired, err := tokens.SignAccessToken("3", "cashier", now.Add(-time.Second), secret)
	require.NoError(t, err)
	forged, err := tokens.SignAccessToken("3", "admin", now.Add(time.Minute), []byte("other"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "valid", header: "Bearer " + valid, code: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + valid, code: http.StatusOK},
		{name: "missing", header: "", code: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token " + valid, code: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, code: http.StatusUnauthorized},
		{name: "forged", header: "Bearer " + forged, code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, m.RequireAuth, tt.header)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "3:cashier", rec.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	m := NewBearerAuth(secret, nil)
	cashier, err := tokens.SignAccessToken("3", "cashier", time.Now().Add(time.Minute), secret)
	require.NoError(t, err)
	admin, err := tokens.SignAccessToken("1", "admin", time.Now().Add(time.Minute), secret)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(t, m.RequireAdmin, "Bearer "+cashier).Code)
	assert.Equal(t, http.StatusOK, serve(t, m.RequireAdmin, "Bearer "+admin).Code)
}
