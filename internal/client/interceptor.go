package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/jobboard/internal/pkg/idgen"
	"github.com/devilmonastery/jobboard/internal/pkg/logger"
	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
)

type retryMarker struct{}

// withRetried marks a request context as already retried after a 401
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMarker{}, true)
}

// IsRetry reports whether ctx belongs to a request re-issued after a refresh
func IsRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retryMarker{}).(bool)
	return v
}

// SessionExpiredError is returned when a 401 could not be recovered because the
// refresh failed. It matches both ErrUnauthorized and ErrSessionExpired.
type SessionExpiredError struct {
	Method string
	Path   string
	Cause  error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %s %s returned 401 and token refresh failed: %v", e.Method, e.Path, e.Cause)
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrUnauthorized || target == ErrSessionExpired
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Cause
}

// AuthTransport injects bearer tokens and recovers from a 401 by refreshing the
// token once and re-issuing the request. Requests to SkipPaths (the refresh and
// login endpoints) are passed through untouched, which keeps a failing refresh
// from recursing into another refresh.
type AuthTransport struct {
	Base      http.RoundTripper
	Session   *Session
	Refresher *RefreshCoordinator
	SkipPaths []string

	log *slog.Logger
}

// NewAuthTransport creates the auth round tripper
func NewAuthTransport(base http.RoundTripper, session *Session, refresher *RefreshCoordinator, skipPaths ...string) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{
		Base:      base,
		Session:   session,
		Refresher: refresher,
		SkipPaths: skipPaths,
		log:       slog.Default().With(slog.String("component", "auth_transport")),
	}
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", idgen.RequestID())
	}

	if t.skip(req) {
		return t.Base.RoundTrip(out)
	}

	var used string
	if tok, err := t.Session.Store().Token(); err == nil && tok.AccessToken != "" {
		tok.SetAuthHeader(out)
		used = tok.AccessToken
	}

	resp, err := t.Base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || IsRetry(req.Context()) {
		return resp, nil
	}

	// Retrying needs a fresh copy of the body.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.log.Warn("cannot retry request with non-replayable body",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path))
		return resp, nil
	}

	drainAndClose(resp.Body)

	t.log.Info("authentication failed, attempting token refresh",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("token_prefix", logger.TokenPreview(used)))

	fresh, err := t.Refresher.ObtainFreshToken(req.Context(), used)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		metrics.AuthRetries.WithLabelValues("refresh_failed").Inc()
		t.log.Error("token refresh failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()))
		if logoutErr := t.Session.Logout(ReasonRefreshFailed); logoutErr != nil {
			t.log.Warn("failed to clear session", slog.String("error", logoutErr.Error()))
		}
		return nil, &SessionExpiredError{Method: req.Method, Path: req.URL.Path, Cause: err}
	}

	retry := req.Clone(withRetried(req.Context()))
	retry.Header.Set("X-Request-ID", out.Header.Get("X-Request-ID"))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		retry.Body = body
	}
	(&oauth2.Token{AccessToken: fresh}).SetAuthHeader(retry)

	t.log.Debug("retrying request with refreshed token",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path))

	resp, err = t.Base.RoundTrip(retry)
	switch {
	case err != nil:
		metrics.AuthRetries.WithLabelValues("error").Inc()
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.AuthRetries.WithLabelValues("unauthorized").Inc()
	default:
		metrics.AuthRetries.WithLabelValues("success").Inc()
	}
	return resp, err
}

func (t *AuthTransport) skip(req *http.Request) bool {
	path := strings.TrimRight(req.URL.Path, "/")
	for _, p := range t.SkipPaths {
		p = strings.TrimRight(p, "/")
		if p != "" && (path == p || strings.HasSuffix(path, p)) {
			return true
		}
	}
	return false
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
