package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/jobboard/internal/testutil/fakeportal"
)

func newTestClient(t *testing.T, portal *fakeportal.Server, tok *oauth2.Token) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: portal.APIURL(),
		Store:   NewMemoryTokenStore(tok),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestAuthTransport_AttachesBearer(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	if err := c.Do(context.Background(), http.MethodGet, "/me", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	headers := portal.AuthHeaders()
	if len(headers) != 1 || headers[0] != "Bearer "+access {
		t.Errorf("expected single bearer header for %s, got %v", access, headers)
	}
	if portal.Calls("/auth/refresh") != 0 {
		t.Errorf("expected no refresh for a valid token")
	}
}

func TestAuthTransport_RefreshesAndRetriesOnce(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	portal.ExpireAccessTokens()
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	var out map[string]string
	if err := c.Do(context.Background(), http.MethodGet, "/me", nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["email"] == "" {
		t.Errorf("expected decoded body, got %v", out)
	}
	if got := portal.Calls("/auth/refresh"); got != 1 {
		t.Errorf("expected 1 refresh, got %d", got)
	}
	if got := portal.Calls("/me"); got != 2 {
		t.Errorf("expected original plus one retry, got %d calls", got)
	}

	tok, err := c.Session().Store().Token()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if tok.AccessToken == access {
		t.Error("expected stored access token to be replaced")
	}
	if tok.RefreshToken != refresh {
		t.Errorf("expected refresh token %s to be kept, got %s", refresh, tok.RefreshToken)
	}
}

func TestAuthTransport_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	portal.ExpireAccessTokens()
	portal.RefreshGate = make(chan struct{})
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Do(context.Background(), http.MethodGet, "/me", nil, nil)
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for portal.Calls("/me") < callers && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(portal.RefreshGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if got := portal.Calls("/auth/refresh"); got != 1 {
		t.Fatalf("expected exactly 1 refresh, got %d", got)
	}

	tok, _ := c.Session().Store().Token()
	retried := 0
	for _, h := range portal.AuthHeaders() {
		switch h {
		case "Bearer " + access:
		case "Bearer " + tok.AccessToken:
			retried++
		default:
			t.Errorf("unexpected authorization header %q", h)
		}
	}
	if retried != callers {
		t.Errorf("expected %d retries with the refreshed token, got %d", callers, retried)
	}
}

func TestAuthTransport_RefreshFailureDoesNotRecurse(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	portal.ExpireAccessTokens()
	portal.RefreshStatus = http.StatusUnauthorized
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	var events []AuthEvent
	var mu sync.Mutex
	c.Session().Subscribe(func(ev AuthEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	err := c.Do(context.Background(), http.MethodGet, "/me", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected error to match ErrUnauthorized, got %v", err)
	}
	if got := portal.Calls("/auth/refresh"); got != 1 {
		t.Errorf("expected refresh to be attempted once, got %d", got)
	}
	if got := portal.Calls("/me"); got != 1 {
		t.Errorf("expected no retry after failed refresh, got %d calls", got)
	}
	if c.Session().Authenticated() {
		t.Error("expected session to be cleared")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Kind != LoggedOut || events[0].Reason != ReasonRefreshFailed {
		t.Errorf("expected one LoggedOut(refresh_failed) event, got %+v", events)
	}
}

func TestAuthTransport_AtMostOneRetry(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	err := c.Do(context.Background(), http.MethodGet, "/always-401", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("a rejected retry is not a failed refresh")
	}
	if got := portal.Calls("/always-401"); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}
	if got := portal.Calls("/auth/refresh"); got != 1 {
		t.Errorf("expected 1 refresh, got %d", got)
	}
	if !c.Session().Authenticated() {
		t.Error("session should survive a rejected retry")
	}
}

func TestAuthTransport_NoRefreshTokenSkipsNetwork(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	c := newTestClient(t, portal, &oauth2.Token{AccessToken: "stale"})

	err := c.Do(context.Background(), http.MethodGet, "/me", nil, nil)
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken cause, got %v", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if got := portal.Calls("/auth/refresh"); got != 0 {
		t.Errorf("expected zero refresh calls, got %d", got)
	}
}

func TestAuthTransport_ConcurrentTeardownEmitsOnce(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	portal.ExpireAccessTokens()
	portal.RevokeRefreshTokens()
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	var mu sync.Mutex
	loggedOut := 0
	c.Session().Subscribe(func(ev AuthEvent) {
		if ev.Kind == LoggedOut {
			mu.Lock()
			loggedOut++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Do(context.Background(), http.MethodGet, "/me", nil, nil); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if loggedOut != 1 {
		t.Errorf("expected exactly one LoggedOut event, got %d", loggedOut)
	}
}

func TestAuthTransport_ReplaysBody(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	access, refresh := portal.IssueTokens()
	portal.ExpireAccessTokens()
	c := newTestClient(t, portal, &oauth2.Token{AccessToken: access, RefreshToken: refresh})

	in := map[string]string{"cover_letter": "hello"}
	var out map[string]string
	if err := c.Do(context.Background(), http.MethodPost, "/echo", in, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["cover_letter"] != "hello" {
		t.Errorf("expected replayed body, got %v", out)
	}
}

func TestAuthTransport_SkipPaths(t *testing.T) {
	tr := &AuthTransport{SkipPaths: []string{"/api/auth/refresh", "/api/auth/login/"}}

	tests := []struct {
		path string
		want bool
	}{
		{"/api/auth/refresh", true},
		{"/api/auth/login", true},
		{"/api/auth/refresh/", true},
		{"/api/me", false},
		{"/api/notifications", false},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodPost, "http://portal.test"+tt.path, nil)
		if got := tr.skip(req); got != tt.want {
			t.Errorf("skip(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
