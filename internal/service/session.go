// Package service drives the operator session: login, silent refresh,
// renewal from the expiry warning, sign-out and forced logout.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/laundry_pos/internal/authclient"
	"github.com/Skotchmaster/laundry_pos/internal/authhttp"
	"github.com/Skotchmaster/laundry_pos/internal/events"
	"github.com/Skotchmaster/laundry_pos/internal/scheduler"
	"github.com/Skotchmaster/laundry_pos/internal/session"
	"github.com/Skotchmaster/laundry_pos/pkg/tokens"
)

// Reasons passed to the Navigator on forced logout.
const (
	ReasonNoRefreshToken = "no_refresh_token"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonMalformedToken = "malformed_token"
	ReasonExpired        = "session_expired"
	ReasonSignedOut      = "signed_out"
)

var ErrUserDetails = errors.New("fetch user details")

type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*authclient.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Me(ctx context.Context, accessToken string) (*authclient.User, error)
}

// Navigator sends the operator back to the login entry point.
type Navigator interface {
	RedirectToLogin(reason string)
}

type NavigatorFunc func(reason string)

func (f NavigatorFunc) RedirectToLogin(reason string) { f(reason) }

type Deps struct {
	Store     *session.Store
	Auth      AuthAPI
	Events    events.Publisher
	Navigator Navigator
	Logger    *slog.Logger
	// OnWarning is shown the pending expiry; the operator answers with
	// Renew or SignOut.
	OnWarning func(expiresAt time.Time)
	// Scheduler options such as WithClock and WithLead.
	Scheduler []scheduler.Option
}

type SessionService struct {
	store  *session.Store
	auth   AuthAPI
	events events.Publisher
	nav    Navigator
	log    *slog.Logger
	sched  *scheduler.Scheduler

	refreshGroup singleflight.Group
}

var _ authhttp.Session = (*SessionService)(nil)

func NewSessionService(d Deps) *SessionService {
	s := &SessionService{
		store:  d.Store,
		auth:   d.Auth,
		events: d.Events,
		nav:    d.Navigator,
		log:    d.Logger,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.nav == nil {
		s.nav = NavigatorFunc(func(string) {})
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	opts := append([]scheduler.Option{
		scheduler.WithLogger(s.log),
		scheduler.OnExpired(func() { s.ForceLogout(context.Background(), ReasonExpired) }),
	}, d.Scheduler...)
	if d.OnWarning != nil {
		opts = append(opts, scheduler.OnWarning(d.OnWarning))
	}
	s.sched = scheduler.New(opts...)
	return s
}

func (s *SessionService) Scheduler() *scheduler.Scheduler { return s.sched }

func (s *SessionService) Session(ctx context.Context) session.Session { return s.store.Get(ctx) }

func (s *SessionService) Login(ctx context.Context, username, password string) error {
	pair, err := s.auth.Login(ctx, username, password)
	if err != nil {
		var se *authclient.StatusError
		switch {
		case errors.Is(err, authclient.ErrInvalidCredentials):
			return err
		case errors.As(err, &se):
			return &authhttp.RequestFailedError{Status: se.Code, Body: []byte(se.Body)}
		}
		return fmt.Errorf("%w: %w", authhttp.ErrNetwork, err)
	}

	expiresAt, err := tokens.ExpiryTime(pair.Access)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := s.store.Set(ctx,
		session.WithAccessToken(pair.Access, expiresAt),
		session.WithRefreshToken(pair.Refresh),
		session.WithUsername(username),
		session.WithRole(""),
	); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	s.log.Info("login_succeeded", "username", username, "expires_at", expiresAt)

	var role string
	user, meErr := s.auth.Me(ctx, pair.Access)
	if meErr == nil {
		role = user.Role.RoleName
		if err := s.store.Set(ctx, session.WithRole(role)); err != nil {
			return fmt.Errorf("store role: %w", err)
		}
	}

	s.publish(ctx, events.Event{Kind: events.Login, Username: username, Role: role, ExpiresAt: &expiresAt})
	s.sched.Arm(expiresAt)

	if meErr != nil {
		return fmt.Errorf("%w: %w", ErrUserDetails, meErr)
	}
	return nil
}

// Resume arms the warning for a session persisted by an earlier run.
func (s *SessionService) Resume(ctx context.Context) session.Session {
	sess := s.store.Get(ctx)
	if sess.Authenticated() {
		s.sched.Arm(sess.AccessExpiresAt)
	}
	return sess
}

func (s *SessionService) AccessToken(ctx context.Context) string {
	return s.store.Get(ctx).AccessToken
}

// Refresh exchanges the stored refresh token for a new access token.
// Concurrent callers share one exchange. Every failure ends the session.
func (s *SessionService) Refresh(ctx context.Context) (string, error) {
	ch := s.refreshGroup.DoChan("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *SessionService) refresh(ctx context.Context) (string, error) {
	sess := s.store.Get(ctx)
	if sess.RefreshToken == "" {
		s.ForceLogout(ctx, ReasonNoRefreshToken)
		return "", fmt.Errorf("%w: %w", authhttp.ErrAuthorizationFailed, authhttp.ErrNoRefreshToken)
	}

	access, err := s.auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		s.log.Warn("refresh_failed", "username", sess.Username, "error", err)
		s.ForceLogout(ctx, ReasonRefreshFailed)
		return "", fmt.Errorf("%w: %w", authhttp.ErrRefreshFailed, err)
	}

	expiresAt, err := tokens.ExpiryTime(access)
	if err != nil {
		s.log.Warn("refresh_failed", "username", sess.Username, "error", err)
		s.ForceLogout(ctx, ReasonMalformedToken)
		return "", fmt.Errorf("%w: %w", authhttp.ErrRefreshFailed, err)
	}

	if err := s.store.Set(ctx, session.WithAccessToken(access, expiresAt)); err != nil {
		s.ForceLogout(ctx, ReasonRefreshFailed)
		return "", fmt.Errorf("%w: store token: %w", authhttp.ErrRefreshFailed, err)
	}
	s.log.Info("token_refreshed", "username", sess.Username, "expires_at", expiresAt)

	s.publish(ctx, events.Event{Kind: events.Refresh, Username: sess.Username, Role: sess.Role, ExpiresAt: &expiresAt})
	s.sched.Arm(expiresAt)
	return access, nil
}

// Renew is the "renew" answer to the expiry warning.
func (s *SessionService) Renew(ctx context.Context) error {
	s.sched.Acknowledge()
	_, err := s.Refresh(ctx)
	return err
}

// SignOut is an explicit logout, including the "sign out" answer to the
// expiry warning.
func (s *SessionService) SignOut(ctx context.Context) error {
	sess := s.store.Get(ctx)
	s.sched.Acknowledge()
	s.sched.Cancel()

	err := s.store.Clear(ctx)
	s.publish(ctx, events.Event{Kind: events.Logout, Username: sess.Username, Role: sess.Role})
	s.log.Info("signed_out", "username", sess.Username)
	s.nav.RedirectToLogin(ReasonSignedOut)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ForceLogout ends the session after a terminal authentication failure.
// It never fails; store errors are logged.
func (s *SessionService) ForceLogout(ctx context.Context, reason string) {
	sess := s.store.Get(ctx)
	s.sched.Cancel()
	if err := s.store.Clear(ctx); err != nil {
		s.log.Error("clear_session_failed", "error", err)
	}
	s.log.Warn("forced_logout", "username", sess.Username, "reason", reason)
	s.publish(ctx, events.Event{Kind: events.ForcedLogout, Username: sess.Username, Role: sess.Role, Reason: reason})
	s.nav.RedirectToLogin(reason)
}

func (s *SessionService) publish(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish_event_failed", "kind", ev.Kind, "error", err)
	}
}
