package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/jobboard/internal/client"
)

func TestFileCredentials_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	store, err := NewFileCredentials("Staging EU")
	if err != nil {
		t.Fatalf("NewFileCredentials: %v", err)
	}
	wantPath := filepath.Join(dir, "jobboard", "credentials-staging-eu.json")
	if store.Path() != wantPath {
		t.Errorf("path = %s, want %s", store.Path(), wantPath)
	}

	if _, err := store.Token(); !errors.Is(err, client.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn before login, got %v", err)
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SigningString()
	access += ".sig"

	if err := store.SaveToken(&oauth2.Token{AccessToken: access, RefreshToken: "r1"}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	tok, err := store.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != access || tok.RefreshToken != "r1" {
		t.Errorf("unexpected token %+v", tok)
	}
	if !tok.Expiry.Equal(exp) {
		t.Errorf("expected expiry from JWT %v, got %v", exp, tok.Expiry)
	}

	if err := store.ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if _, err := store.Token(); !errors.Is(err, client.ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn after clear, got %v", err)
	}
	if err := store.ClearToken(); err != nil {
		t.Errorf("clearing twice should be a no-op, got %v", err)
	}
}

func TestCredentials_IsExpired(t *testing.T) {
	tests := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{"unknown", time.Time{}, false},
		{"future", time.Now().Add(time.Minute), false},
		{"past", time.Now().Add(-time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credentials{ExpiresAt: tt.exp}
			if got := c.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Minute, "1 hour and 30 minutes"},
		{49*time.Hour + 5*time.Minute, "2 days, 1 hour and 5 minutes"},
		{-2 * time.Minute, "2 minutes"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
