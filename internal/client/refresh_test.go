package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestObtainFreshToken_SingleFlight(t *testing.T) {
	store := NewMemoryTokenStore(&oauth2.Token{AccessToken: "old", RefreshToken: "r1"})

	var calls atomic.Int32
	gate := make(chan struct{})
	coord := NewRefreshCoordinator(store, func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		calls.Add(1)
		<-gate
		return &oauth2.Token{AccessToken: "new"}, nil
	})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.ObtainFreshToken(context.Background(), "old")
		}(i)
	}

	// Let the flight start before releasing it
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 refresh call, got %d", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != "new" {
			t.Errorf("caller %d: expected token new, got %q", i, results[i])
		}
	}

	tok, err := store.Token()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if tok.AccessToken != "new" {
		t.Errorf("expected stored access token new, got %q", tok.AccessToken)
	}
	if tok.RefreshToken != "r1" {
		t.Errorf("expected refresh token to be kept when not rotated, got %q", tok.RefreshToken)
	}
}

func TestObtainFreshToken_StaleTokenShortcut(t *testing.T) {
	store := NewMemoryTokenStore(&oauth2.Token{AccessToken: "rotated", RefreshToken: "r1"})

	var calls atomic.Int32
	coord := NewRefreshCoordinator(store, func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		calls.Add(1)
		return &oauth2.Token{AccessToken: "unexpected"}, nil
	})

	got, err := coord.ObtainFreshToken(context.Background(), "old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "rotated" {
		t.Errorf("expected already-rotated token, got %q", got)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no refresh call, got %d", calls.Load())
	}
}

func TestObtainFreshToken_NoRefreshToken(t *testing.T) {
	tests := []struct {
		name  string
		store TokenStore
	}{
		{"empty store", NewMemoryTokenStore(nil)},
		{"access only", NewMemoryTokenStore(&oauth2.Token{AccessToken: "a"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			coord := NewRefreshCoordinator(tt.store, func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
				calls.Add(1)
				return nil, errors.New("should not be called")
			})

			_, err := coord.ObtainFreshToken(context.Background(), "a")
			if !errors.Is(err, ErrNoRefreshToken) {
				t.Fatalf("expected ErrNoRefreshToken, got %v", err)
			}
			if calls.Load() != 0 {
				t.Errorf("expected zero refresh calls, got %d", calls.Load())
			}
		})
	}
}

func TestObtainFreshToken_FailureSharedByWaiters(t *testing.T) {
	store := NewMemoryTokenStore(&oauth2.Token{AccessToken: "old", RefreshToken: "r1"})
	refreshErr := errors.New("backend down")

	gate := make(chan struct{})
	var calls atomic.Int32
	coord := NewRefreshCoordinator(store, func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		calls.Add(1)
		<-gate
		return nil, refreshErr
	})

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.ObtainFreshToken(context.Background(), "old")
			errs <- err
		}()
	}
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, refreshErr) {
			t.Errorf("expected shared refresh error, got %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 refresh call, got %d", calls.Load())
	}
}

func TestObtainFreshToken_CallerCancelDoesNotAbortRefresh(t *testing.T) {
	store := NewMemoryTokenStore(&oauth2.Token{AccessToken: "old", RefreshToken: "r1"})

	gate := make(chan struct{})
	done := make(chan struct{})
	coord := NewRefreshCoordinator(store, func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		defer close(done)
		<-gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &oauth2.Token{AccessToken: "new"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := coord.ObtainFreshToken(ctx, "old")
		errCh <- err
	}()

	for !coord.Refreshing() {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(gate)
	<-done

	// The store write happens after the refresh func returns
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tok, err := store.Token(); err == nil && tok.AccessToken == "new" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected detached refresh to store the new token")
}

func TestDecodeTokenResponse(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantAccess  string
		wantRefresh string
		wantExpiry  bool
	}{
		{"camel case", `{"accessToken":"a","refreshToken":"r"}`, "a", "r", false},
		{"snake case", `{"access_token":"a","refresh_token":"r","expires_in":60}`, "a", "r", true},
		{"data wrapper", `{"data":{"accessToken":"a","expiresIn":60}}`, "a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := decodeTokenResponse([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tok.AccessToken != tt.wantAccess {
				t.Errorf("access token = %q, want %q", tok.AccessToken, tt.wantAccess)
			}
			if tok.RefreshToken != tt.wantRefresh {
				t.Errorf("refresh token = %q, want %q", tok.RefreshToken, tt.wantRefresh)
			}
			if tt.wantExpiry == tok.Expiry.IsZero() {
				t.Errorf("expiry set = %v, want %v", !tok.Expiry.IsZero(), tt.wantExpiry)
			}
		})
	}

	if _, err := decodeTokenResponse([]byte("not json")); err == nil {
		t.Error("expected error for invalid body")
	}
}
