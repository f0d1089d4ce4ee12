package client

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
)

// AuthEventKind distinguishes auth-state transitions
type AuthEventKind int

const (
	// LoggedIn is emitted after an explicit login stores a new pair
	LoggedIn AuthEventKind = iota + 1
	// LoggedOut is emitted after an explicit logout or a forced teardown
	LoggedOut
)

func (k AuthEventKind) String() string {
	switch k {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// AuthEvent is delivered to auth-state listeners
type AuthEvent struct {
	Kind   AuthEventKind
	Reason string
	At     time.Time
}

// Session owns the token store's login and clearing paths and fans auth-state
// changes out to listeners. Token refreshes write to the store directly.
type Session struct {
	store TokenStore
	log   *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(AuthEvent)
	nextID    int
}

// NewSession wraps a token store
func NewSession(store TokenStore) *Session {
	return &Session{
		store:     store,
		log:       slog.Default().With(slog.String("component", "session")),
		listeners: make(map[int]func(AuthEvent)),
	}
}

// Store returns the underlying token store
func (s *Session) Store() TokenStore {
	return s.store
}

// Authenticated reports whether an access token is currently stored
func (s *Session) Authenticated() bool {
	return accessToken(s.store) != ""
}

// Login stores a freshly issued pair and notifies listeners
func (s *Session) Login(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return ErrNoToken
	}
	stored := cloneToken(tok)
	if stored.Expiry.IsZero() {
		stored.Expiry = TokenExpiry(stored.AccessToken)
	}

	s.mu.Lock()
	err := s.store.SaveToken(stored)
	listeners := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Info("session started", slog.Time("expires_at", stored.Expiry))
	s.emit(listeners, AuthEvent{Kind: LoggedIn, At: time.Now()})
	return nil
}

// Logout clears the stored pair. Listeners are notified only when there was a
// session to end, so concurrent teardowns produce a single LoggedOut event.
func (s *Session) Logout(reason string) error {
	s.mu.Lock()
	_, err := s.store.Token()
	hadSession := err == nil
	var clearErr error
	if hadSession {
		clearErr = s.store.ClearToken()
	}
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	if clearErr != nil {
		return clearErr
	}
	if !hadSession {
		return nil
	}

	s.log.Info("session ended", slog.String("reason", reason))
	metrics.SessionTeardowns.WithLabelValues(teardownLabel(reason)).Inc()
	s.emit(listeners, AuthEvent{Kind: LoggedOut, Reason: reason, At: time.Now()})
	return nil
}

// Subscribe registers an auth-state listener and returns its cancel func
func (s *Session) Subscribe(fn func(AuthEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) snapshotLocked() []func(AuthEvent) {
	out := make([]func(AuthEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func (s *Session) emit(listeners []func(AuthEvent), ev AuthEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}

const (
	ReasonUserLogout    = "user_logout"
	ReasonRefreshFailed = "refresh_failed"
)

func teardownLabel(reason string) string {
	switch reason {
	case ReasonUserLogout, ReasonRefreshFailed:
		return reason
	default:
		return "other"
	}
}
