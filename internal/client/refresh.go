package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/devilmonastery/jobboard/internal/pkg/logger"
	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
)

// RefreshFunc exchanges a refresh token for a new pair
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

const refreshFlightKey = "refresh"

// RefreshCoordinator collapses concurrent demand for a fresh access token into
// a single backend call. Every caller that joins an in-flight refresh receives
// the same token or the same error.
type RefreshCoordinator struct {
	store   TokenStore
	refresh RefreshFunc
	group   singleflight.Group
	active  atomic.Bool
	log     *slog.Logger
}

// NewRefreshCoordinator creates a coordinator writing refreshed pairs to store
func NewRefreshCoordinator(store TokenStore, refresh RefreshFunc) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:   store,
		refresh: refresh,
		log:     slog.Default().With(slog.String("component", "refresh_coordinator")),
	}
}

// Refreshing reports whether a backend refresh is in flight
func (c *RefreshCoordinator) Refreshing() bool {
	return c.active.Load()
}

// ObtainFreshToken returns an access token newer than staleToken, refreshing
// through the backend if needed. staleToken is the token that was just rejected;
// pass "" to force a refresh.
//
// The refresh is not tied to ctx: a caller that gives up stops waiting, but the
// refresh continues for everyone else.
func (c *RefreshCoordinator) ObtainFreshToken(ctx context.Context, staleToken string) (string, error) {
	current, err := c.store.Token()
	if err != nil || current.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshFlightKey, func() (any, error) {
		return c.run(detached, staleToken)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.TokenRefreshWaiters.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *RefreshCoordinator) run(ctx context.Context, staleToken string) (string, error) {
	c.active.Store(true)
	defer c.active.Store(false)

	current, err := c.store.Token()
	if err != nil || current.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	// A refresh finished between the 401 and this flight; reuse its result.
	if staleToken != "" && current.AccessToken != "" && current.AccessToken != staleToken {
		c.log.Debug("access token already rotated, skipping refresh",
			slog.String("token_prefix", logger.TokenPreview(current.AccessToken)))
		return current.AccessToken, nil
	}

	c.log.Info("refreshing access token")
	start := time.Now()
	next, err := c.refresh(ctx, current.RefreshToken)
	metrics.RecordTokenRefresh(time.Since(start), err)
	if err != nil {
		c.log.Warn("token refresh failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if next == nil || next.AccessToken == "" {
		return "", errors.New("refresh access token: response carried no access token")
	}

	stored := cloneToken(next)
	if stored.RefreshToken == "" {
		stored.RefreshToken = current.RefreshToken
	}
	if stored.Expiry.IsZero() {
		stored.Expiry = TokenExpiry(stored.AccessToken)
	}
	if err := c.store.SaveToken(stored); err != nil {
		return "", fmt.Errorf("save refreshed token: %w", err)
	}

	c.log.Info("successfully refreshed token", slog.Duration("took", time.Since(start)))
	return stored.AccessToken, nil
}

// tokenResponse accepts both the camelCase body the portal returns and the
// OAuth-style snake_case one, optionally wrapped in {"data": ...}.
type tokenResponse struct {
	AccessToken       string `json:"accessToken"`
	RefreshToken      string `json:"refreshToken"`
	ExpiresIn         int64  `json:"expiresIn"`
	AccessTokenSnake  string `json:"access_token"`
	RefreshTokenSnake string `json:"refresh_token"`
	ExpiresInSnake    int64  `json:"expires_in"`
}

func (r tokenResponse) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  firstNonEmpty(r.AccessToken, r.AccessTokenSnake),
		RefreshToken: firstNonEmpty(r.RefreshToken, r.RefreshTokenSnake),
		TokenType:    "Bearer",
	}
	expiresIn := r.ExpiresIn
	if expiresIn == 0 {
		expiresIn = r.ExpiresInSnake
	}
	if expiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return tok
}

func decodeTokenResponse(body []byte) (*oauth2.Token, error) {
	var wrapped struct {
		Data *tokenResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data.token(), nil
	}
	var flat tokenResponse
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return flat.token(), nil
}

// NewHTTPRefresher returns a RefreshFunc posting {"refreshToken": ...} to refreshURL.
// The request goes out through httpClient; AuthTransport recognises the refresh
// path and sends it without the retry logic.
func NewHTTPRefresher(httpClient *http.Client, refreshURL string) RefreshFunc {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, decodeAPIError(resp)
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		return decodeTokenResponse(body)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
