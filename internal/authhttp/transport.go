// Package authhttp decorates an http.RoundTripper with bearer authentication
// and a single refresh-and-retry on 401.
package authhttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/laundry_pos/internal/logging"
)

const HeaderRequestID = "X-Request-ID"

// Session is what the transport needs from the session layer. Refresh must
// handle terminal failures itself (clear the store, redirect to login) and
// report them as an error.
type Session interface {
	AccessToken(ctx context.Context) string
	Refresh(ctx context.Context) (string, error)
}

type Transport struct {
	Base    http.RoundTripper
	Session Session
	Logger  *slog.Logger
	// Host is the API host (host[:port]) the session belongs to. Requests to
	// any other host, such as a redirect target, go out without the token and
	// never trigger a refresh. Empty means every host.
	Host string
}

type retriedKey struct{}

// WithRetried marks ctx so that a 401 on requests made with it is returned
// without a refresh.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	l := t.logger(ctx).With("method", req.Method, "path", req.URL.Path)

	if !t.sameHost(req) {
		l.Debug("foreign_host", "host", req.URL.Host)
		return t.base().RoundTrip(t.prepare(req, ""))
	}

	if err := ensureReplayable(req); err != nil {
		return nil, err
	}

	out := t.prepare(req, t.Session.AccessToken(ctx))
	start := time.Now()
	resp, err := t.base().RoundTrip(out)
	if err != nil {
		l.Warn("request_failed", "error", err)
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || retried(ctx) {
		l.Debug("request_completed", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
		return resp, nil
	}

	drain(resp)
	l.Info("access_token_rejected")

	token, err := t.Session.Refresh(ctx)
	if err != nil {
		l.Warn("refresh_failed", "error", err)
		return nil, err
	}

	retry, err := t.clone(req.WithContext(WithRetried(ctx)))
	if err != nil {
		return nil, err
	}
	retry.Header.Set(HeaderRequestID, out.Header.Get(HeaderRequestID))
	retry = t.prepare(retry, token)

	resp, err = t.base().RoundTrip(retry)
	if err != nil {
		l.Warn("retry_failed", "error", err)
		return nil, err
	}
	l.Info("request_retried", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// prepare returns a copy of req carrying token; RoundTrippers must not
// modify the caller's request.
func (t *Transport) prepare(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}
	return out
}

func (t *Transport) clone(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

func (t *Transport) sameHost(req *http.Request) bool {
	return t.Host == "" || strings.EqualFold(req.URL.Host, t.Host)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger(ctx context.Context) *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return logging.FromContext(ctx)
}

// ensureReplayable buffers a body that cannot be produced twice.
func ensureReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
