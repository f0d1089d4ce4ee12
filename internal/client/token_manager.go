package client

import (
	"sync/atomic"

	"golang.org/x/oauth2"
)

// TokenStore holds the access/refresh token pair.
// Different implementations can store tokens in memory, files, sessions, etc.
// Every implementation also satisfies oauth2.TokenSource.
type TokenStore interface {
	// Token returns a snapshot of the current pair, or ErrNotLoggedIn
	Token() (*oauth2.Token, error)

	// SaveToken atomically replaces the stored pair
	SaveToken(tok *oauth2.Token) error

	// ClearToken removes stored credentials
	ClearToken() error
}

// MemoryTokenStore keeps the pair in process memory. Writes replace the whole
// pair, so reads never observe a half-updated value.
type MemoryTokenStore struct {
	current atomic.Pointer[oauth2.Token]
}

// NewMemoryTokenStore creates a store, optionally seeded with a pair
func NewMemoryTokenStore(initial *oauth2.Token) *MemoryTokenStore {
	s := &MemoryTokenStore{}
	if initial != nil {
		s.current.Store(cloneToken(initial))
	}
	return s
}

// Token returns a copy of the stored pair
func (s *MemoryTokenStore) Token() (*oauth2.Token, error) {
	tok := s.current.Load()
	if tok == nil {
		return nil, ErrNotLoggedIn
	}
	return cloneToken(tok), nil
}

// SaveToken replaces the stored pair
func (s *MemoryTokenStore) SaveToken(tok *oauth2.Token) error {
	if tok == nil {
		s.current.Store(nil)
		return nil
	}
	s.current.Store(cloneToken(tok))
	return nil
}

// ClearToken forgets the stored pair
func (s *MemoryTokenStore) ClearToken() error {
	s.current.Store(nil)
	return nil
}

// accessToken returns the stored access token or "" when there is none
func accessToken(store TokenStore) string {
	tok, err := store.Token()
	if err != nil || tok == nil {
		return ""
	}
	return tok.AccessToken
}

func cloneToken(tok *oauth2.Token) *oauth2.Token {
	// Extra data is dropped; the pair and expiry are all the client needs.
	return &oauth2.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
