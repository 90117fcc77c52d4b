package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/laundry_pos/internal/backend/repo"
	"github.com/Skotchmaster/laundry_pos/internal/hash"
	"github.com/Skotchmaster/laundry_pos/internal/logging"
	"github.com/Skotchmaster/laundry_pos/internal/models"
	"github.com/Skotchmaster/laundry_pos/pkg/tokens"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidRefresh     = errors.New("refresh token is invalid or expired")
)

type AuthService struct {
	Repo          *repo.GormRepo
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now is the issuing and validating clock; nil means time.Now.
	Now func() time.Time
}

type TokenPair struct {
	Access  string
	Refresh string
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	user, err := s.Repo.UserByCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidCredentials) {
			l.Warn("login_failed", "reason", "invalid username or password")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "error", err)
		return nil, err
	}

	now := s.now()
	subject := strconv.FormatUint(uint64(user.ID), 10)
	access, err := tokens.SignAccessToken(subject, user.Role, now.Add(s.AccessTTL), s.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access: %w", err)
	}

	jti := uuid.NewString()
	refreshExp := now.Add(s.RefreshTTL)
	refresh, err := tokens.SignRefreshToken(subject, jti, refreshExp, s.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh: %w", err)
	}

	if err := s.Repo.SaveRefresh(ctx, &models.RefreshToken{
		JTI:       jti,
		UserID:    user.ID,
		ExpiresAt: refreshExp.Unix(),
	}); err != nil {
		return nil, fmt.Errorf("save refresh: %w", err)
	}

	l.Info("login_successful")
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh issues a new access token. The refresh token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")
	now := s.now()

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret, jwt.WithTimeFunc(s.now))
	if err != nil {
		l.Warn("refresh_rejected", "error", err)
		return "", ErrInvalidRefresh
	}

	usable, err := s.Repo.RefreshUsable(ctx, claims.ID, now.Unix())
	if errors.Is(err, repo.ErrRefreshNotFound) || err == nil && !usable {
		l.Warn("refresh_rejected", "jti", claims.ID, "reason", "unknown, revoked or expired")
		return "", ErrInvalidRefresh
	}
	if err != nil {
		return "", err
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return "", ErrInvalidRefresh
	}
	user, err := s.Repo.UserByID(ctx, uint(id))
	if err != nil {
		l.Warn("refresh_rejected", "user_id", id, "error", err)
		return "", ErrInvalidRefresh
	}

	access, err := tokens.SignAccessToken(claims.Subject, user.Role, now.Add(s.AccessTTL), s.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("sign access: %w", err)
	}
	l.Info("refresh_successful", "user_id", id)
	return access, nil
}

func (s *AuthService) Me(ctx context.Context, subject string) (*models.User, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad subject %q: %w", subject, err)
	}
	return s.Repo.UserByID(ctx, uint(id))
}

func (s *AuthService) Users(ctx context.Context) ([]models.User, error) {
	return s.Repo.ListUsers(ctx)
}

// Revoke invalidates a refresh token so later refreshes fail.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret, jwt.WithTimeFunc(s.now))
	if err != nil {
		return ErrInvalidRefresh
	}
	return s.Repo.RevokeRefresh(ctx, claims.ID)
}

// SeedUser creates the user when missing; an existing user is left as is.
func (s *AuthService) SeedUser(ctx context.Context, username, password, role string) error {
	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.Repo.CreateUserIfNotExists(ctx, &models.User{Username: username, PasswordHash: pwHash, Role: role})
	if err != nil && !errors.Is(err, repo.ErrUserAlreadyExist) {
		return err
	}
	return nil
}
