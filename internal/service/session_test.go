package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/laundry_pos/internal/authclient"
	"github.com/Skotchmaster/laundry_pos/internal/authhttp"
	"github.com/Skotchmaster/laundry_pos/internal/events"
	"github.com/Skotchmaster/laundry_pos/internal/logging"
	"github.com/Skotchmaster/laundry_pos/internal/scheduler"
	"github.com/Skotchmaster/laundry_pos/internal/scheduler/schedulertest"
	"github.com/Skotchmaster/laundry_pos/internal/session"
	"github.com/Skotchmaster/laundry_pos/internal/session/memory"
	"github.com/Skotchmaster/laundry_pos/pkg/tokens"
)

var (
	testNow    = time.Unix(1700000000, 0)
	testSecret = []byte("test-jwt-secret")
)

func accessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := tokens.SignAccessToken("1", "admin", exp, testSecret)
	require.NoError(t, err)
	return tok
}

type fakeAuth struct {
	mu         sync.Mutex
	pair       *authclient.TokenPair
	loginErr   error
	user       *authclient.User
	meErr      error
	access     string
	refreshErr error
	refreshes  atomic.Int32
	gotRefresh string
	block      chan struct{}
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (*authclient.TokenPair, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.pair, nil
}

func (f *fakeAuth) Refresh(_ context.Context, refreshToken string) (string, error) {
	f.refreshes.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotRefresh = refreshToken
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.access, nil
}

func (f *fakeAuth) Me(context.Context, string) (*authclient.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.user, nil
}

type harness struct {
	svc       *SessionService
	store     *session.Store
	auth      *fakeAuth
	clock     *schedulertest.FakeClock
	events    *events.Recorder
	redirects []string
	warnings  []time.Time
	mu        sync.Mutex
}

func newHarness(t *testing.T, auth *fakeAuth) *harness {
	t.Helper()

	h := &harness{
		store:  session.NewStore(memory.New(), logging.Discard()),
		auth:   auth,
		clock:  schedulertest.NewFakeClock(testNow),
		events: &events.Recorder{},
	}
	h.svc = NewSessionService(Deps{
		Store:  h.store,
		Auth:   auth,
		Events: h.events,
		Navigator: NavigatorFunc(func(reason string) {
			h.mu.Lock()
			h.redirects = append(h.redirects, reason)
			h.mu.Unlock()
		}),
		Logger:    logging.Discard(),
		OnWarning: func(exp time.Time) { h.warnings = append(h.warnings, exp) },
		Scheduler: []scheduler.Option{scheduler.WithClock(h.clock)},
	})
	return h
}

func (h *harness) seed(t *testing.T, access, refresh string, exp time.Time) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(),
		session.WithAccessToken(access, exp),
		session.WithRefreshToken(refresh),
		session.WithUsername("khalfan"),
		session.WithRole("admin"),
	))
}

func (h *harness) redirected() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.redirects...)
}

func TestLogin_StoresSessionAndArms(t *testing.T) {
	exp := testNow.Add(5 * time.Minute)
	auth := &fakeAuth{
		pair: &authclient.TokenPair{Access: accessToken(t, exp), Refresh: "R1"},
		user: &authclient.User{ID: 1, Username: "khalfan", Role: authclient.Role{RoleName: "admin"}},
	}
	h := newHarness(t, auth)
	ctx := context.Background()

	require.NoError(t, h.svc.Login(ctx, "khalfan", "secret"))

	sess := h.store.Get(ctx)
	assert.Equal(t, auth.pair.Access, sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)
	assert.Equal(t, "khalfan", sess.Username)
	assert.Equal(t, "admin", sess.Role)
	assert.True(t, exp.Equal(sess.AccessExpiresAt))

	assert.Equal(t, scheduler.Armed, h.svc.Scheduler().State())
	assert.Equal(t, exp.Add(-time.Minute), h.svc.Scheduler().FireAt())
	assert.Equal(t, []events.Kind{events.Login}, h.events.Kinds())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	auth := &fakeAuth{loginErr: authclient.ErrInvalidCredentials}
	h := newHarness(t, auth)

	err := h.svc.Login(context.Background(), "khalfan", "wrong")
	require.ErrorIs(t, err, authclient.ErrInvalidCredentials)
	assert.True(t, h.store.Get(context.Background()).IsZero())
	assert.Equal(t, scheduler.Idle, h.svc.Scheduler().State())
}

func TestLogin_UserDetailsFailureKeepsTokens(t *testing.T) {
	exp := testNow.Add(5 * time.Minute)
	auth := &fakeAuth{
		pair:  &authclient.TokenPair{Access: accessToken(t, exp), Refresh: "R1"},
		meErr: &authclient.StatusError{Code: http.StatusInternalServerError},
	}
	h := newHarness(t, auth)

	err := h.svc.Login(context.Background(), "khalfan", "secret")
	require.ErrorIs(t, err, ErrUserDetails)

	sess := h.store.Get(context.Background())
	assert.True(t, sess.Authenticated())
	assert.Empty(t, sess.Role)
}

func TestLogin_ResetsPreviousRole(t *testing.T) {
	exp := testNow.Add(5 * time.Minute)
	auth := &fakeAuth{
		pair:  &authclient.TokenPair{Access: accessToken(t, exp), Refresh: "R2"},
		meErr: &authclient.StatusError{Code: http.StatusInternalServerError},
	}
	h := newHarness(t, auth)
	h.seed(t, "A-old", "R-old", testNow.Add(time.Minute))

	err := h.svc.Login(context.Background(), "amina", "secret")
	require.ErrorIs(t, err, ErrUserDetails)

	sess := h.store.Get(context.Background())
	assert.Equal(t, "amina", sess.Username)
	assert.Equal(t, "R2", sess.RefreshToken)
	assert.Empty(t, sess.Role, "role of the previous operator must not survive")
}

func TestLogin_ServerErrorIsRequestFailed(t *testing.T) {
	auth := &fakeAuth{loginErr: &authclient.StatusError{Code: http.StatusServiceUnavailable, Body: "down"}}
	h := newHarness(t, auth)

	err := h.svc.Login(context.Background(), "khalfan", "secret")
	var rf *authhttp.RequestFailedError
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, http.StatusServiceUnavailable, rf.Status)
}

func TestRefresh_NoRefreshTokenForcesLogout(t *testing.T) {
	auth := &fakeAuth{}
	h := newHarness(t, auth)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, session.WithAccessToken("A1", testNow.Add(time.Hour))))

	_, err := h.svc.Refresh(ctx)
	require.ErrorIs(t, err, authhttp.ErrAuthorizationFailed)
	require.ErrorIs(t, err, authhttp.ErrNoRefreshToken)

	assert.Zero(t, auth.refreshes.Load(), "no exchange without a refresh token")
	assert.True(t, h.store.Get(ctx).IsZero())
	assert.Equal(t, []string{ReasonNoRefreshToken}, h.redirected())
	assert.Equal(t, []events.Kind{events.ForcedLogout}, h.events.Kinds())
}

func TestRefresh_SuccessStoresAndRearms(t *testing.T) {
	newExp := testNow.Add(10 * time.Minute)
	auth := &fakeAuth{access: accessToken(t, newExp)}
	h := newHarness(t, auth)
	ctx := context.Background()
	h.seed(t, "A1", "R1", testNow.Add(2*time.Minute))
	h.svc.Resume(ctx)

	got, err := h.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.access, got)
	assert.Equal(t, "R1", auth.gotRefresh)

	sess := h.store.Get(ctx)
	assert.Equal(t, auth.access, sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)
	assert.True(t, newExp.Equal(sess.AccessExpiresAt))
	assert.Equal(t, newExp.Add(-time.Minute), h.svc.Scheduler().FireAt())
	assert.Equal(t, 1, h.clock.Pending())
	assert.Empty(t, h.redirected())
}

func TestRefresh_RejectedForcesLogout(t *testing.T) {
	auth := &fakeAuth{refreshErr: &authclient.StatusError{Code: http.StatusUnauthorized}}
	h := newHarness(t, auth)
	ctx := context.Background()
	require.NoError(t, h.store.SetLanguage(ctx, session.Arabic))
	h.seed(t, "A1", "R1", testNow.Add(10*time.Minute))
	h.svc.Resume(ctx)

	_, err := h.svc.Refresh(ctx)
	require.ErrorIs(t, err, authhttp.ErrRefreshFailed)

	assert.True(t, h.store.Get(ctx).IsZero())
	assert.Equal(t, session.Arabic, h.store.Language(ctx))
	assert.Equal(t, scheduler.Idle, h.svc.Scheduler().State())
	assert.Zero(t, h.clock.Pending())
	assert.Equal(t, []string{ReasonRefreshFailed}, h.redirected())
}

func TestRefresh_MalformedTokenForcesLogout(t *testing.T) {
	auth := &fakeAuth{access: "not-a-jwt"}
	h := newHarness(t, auth)
	ctx := context.Background()
	h.seed(t, "A1", "R1", testNow.Add(10*time.Minute))

	_, err := h.svc.Refresh(ctx)
	require.ErrorIs(t, err, authhttp.ErrRefreshFailed)
	require.ErrorIs(t, err, tokens.ErrMalformedToken)
	assert.True(t, h.store.Get(ctx).IsZero())
	assert.Equal(t, []string{ReasonMalformedToken}, h.redirected())
}

func TestRefresh_ConcurrentCallersShareOneExchange(t *testing.T) {
	auth := &fakeAuth{access: accessToken(t, testNow.Add(10*time.Minute)), block: make(chan struct{})}
	h := newHarness(t, auth)
	ctx := context.Background()
	h.seed(t, "A1", "R1", testNow.Add(10*time.Minute))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := h.svc.Refresh(ctx)
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}

	require.Eventually(t, func() bool { return auth.refreshes.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(auth.block)
	wg.Wait()

	assert.Equal(t, int32(1), auth.refreshes.Load())
	for _, tok := range results {
		assert.Equal(t, auth.access, tok)
	}
}

func TestWarning_RenewRefreshes(t *testing.T) {
	exp := testNow.Add(3 * time.Minute)
	newExp := testNow.Add(30 * time.Minute)
	auth := &fakeAuth{access: accessToken(t, newExp)}
	h := newHarness(t, auth)
	ctx := context.Background()
	h.seed(t, "A1", "R1", exp)
	h.svc.Resume(ctx)

	h.clock.Advance(2 * time.Minute)
	require.Len(t, h.warnings, 1)
	assert.True(t, exp.Equal(h.warnings[0]))
	require.Equal(t, scheduler.WarningShown, h.svc.Scheduler().State())

	require.NoError(t, h.svc.Renew(ctx))
	assert.Equal(t, scheduler.Armed, h.svc.Scheduler().State())
	assert.Equal(t, newExp.Add(-time.Minute), h.svc.Scheduler().FireAt())
	assert.Equal(t, []events.Kind{events.Refresh}, h.events.Kinds())
}

func TestWarning_SignOut(t *testing.T) {
	auth := &fakeAuth{}
	h := newHarness(t, auth)
	ctx := context.Background()
	h.seed(t, "A1", "R1", testNow.Add(2*time.Minute))
	h.svc.Resume(ctx)
	h.clock.Advance(time.Minute)
	require.Equal(t, scheduler.WarningShown, h.svc.Scheduler().State())

	require.NoError(t, h.svc.SignOut(ctx))

	assert.True(t, h.store.Get(ctx).IsZero())
	assert.Equal(t, scheduler.Idle, h.svc.Scheduler().State())
	assert.Equal(t, []string{ReasonSignedOut}, h.redirected())
	assert.Equal(t, []events.Kind{events.Logout}, h.events.Kinds())
	assert.Zero(t, auth.refreshes.Load())
}

func TestResume_InsideWarningWindowForcesLogout(t *testing.T) {
	h := newHarness(t, &fakeAuth{})
	ctx := context.Background()
	h.seed(t, "A1", "R1", testNow.Add(30*time.Second))

	h.svc.Resume(ctx)

	assert.True(t, h.store.Get(ctx).IsZero())
	assert.Equal(t, []string{ReasonExpired}, h.redirected())
	assert.Empty(t, h.warnings)
}

func TestResume_NoSessionIsNoop(t *testing.T) {
	h := newHarness(t, &fakeAuth{})
	sess := h.svc.Resume(context.Background())
	assert.True(t, sess.IsZero())
	assert.Equal(t, scheduler.Idle, h.svc.Scheduler().State())
	assert.Empty(t, h.redirected())
}

func TestTransport_RetryWithRefreshedToken(t *testing.T) {
	newAccess := accessToken(t, testNow.Add(time.Hour))
	auth := &fakeAuth{access: newAccess}
	h := newHarness(t, auth)
	h.seed(t, "A1", "R1", testNow.Add(10*time.Minute))

	var seen []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+newAccess {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &authhttp.Transport{Session: h.svc, Logger: logging.Discard()}}
	resp, err := client.Get(srv.URL + "/api/orders/today/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1", "Bearer " + newAccess}, seen)
	assert.Equal(t, newAccess, h.store.Get(context.Background()).AccessToken)
}

func TestTransport_RefreshFailureSurfacesAndLogsOut(t *testing.T) {
	auth := &fakeAuth{refreshErr: errors.New("connection reset")}
	h := newHarness(t, auth)
	h.seed(t, "A1", "R1", testNow.Add(10*time.Minute))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &authhttp.Transport{Session: h.svc, Logger: logging.Discard()}}
	_, err := client.Get(srv.URL + "/api/orders/today/")
	require.ErrorIs(t, err, authhttp.ErrRefreshFailed)
	assert.True(t, h.store.Get(context.Background()).IsZero())
	assert.Equal(t, []string{ReasonRefreshFailed}, h.redirected())
}
