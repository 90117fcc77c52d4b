// Package session holds the operator's persisted authentication state: the
// access/refresh token pair, the access token expiry and the cached identity.
package session

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Storage keys. They match the layout the web front-end kept in localStorage,
// so a store can be shared with it.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiry       = "token_expiry_time"
	KeyUsername     = "username"
	KeyRole         = "role"
	KeyLanguage     = "language"
)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiry, KeyUsername, KeyRole}

// Session is a snapshot of the stored state. Empty strings and a zero
// AccessExpiresAt mean the field is absent.
type Session struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	Username        string
	Role            string
}

func (s Session) Authenticated() bool { return s.AccessToken != "" }

// Role groups used to gate back-office pages.
var (
	StaffRoles = []string{"user", "admin", "superadmin"}
	AdminRoles = []string{"admin", "superadmin"}
)

// HasAnyRole reports whether the cached role is one of roles. An unknown
// role matches nothing.
func (s Session) HasAnyRole(roles ...string) bool {
	return s.Role != "" && slices.Contains(roles, s.Role)
}

func (s Session) IsZero() bool { return s == Session{} }

// Backend is a durable key-value substrate. Set and Delete must apply all
// given keys in one operation.
type Backend interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

type Option func(values map[string]string)

// WithAccessToken writes the token together with its expiry so the two never
// diverge in storage.
func WithAccessToken(token string, expiresAt time.Time) Option {
	return func(values map[string]string) {
		values[KeyAccessToken] = token
		if token == "" || expiresAt.IsZero() {
			values[KeyExpiry] = ""
			return
		}
		values[KeyExpiry] = strconv.FormatInt(expiresAt.UnixMilli(), 10)
	}
}

func WithRefreshToken(token string) Option {
	return func(values map[string]string) { values[KeyRefreshToken] = token }
}

func WithUsername(username string) Option {
	return func(values map[string]string) { values[KeyUsername] = username }
}

func WithRole(role string) Option {
	return func(values map[string]string) { values[KeyRole] = role }
}

type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
)

func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case English, Arabic:
		return Language(s), nil
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

func (l Language) Direction() string {
	if l == Arabic {
		return "rtl"
	}
	return "ltr"
}
