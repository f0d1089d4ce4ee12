// Package fakeportal provides an in-process job portal backend for tests.
package fakeportal

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const (
	// APIPrefix is the path prefix of every API route
	APIPrefix = "/api"
	// Password accepted by the login endpoint
	Password = "secret"
)

// Notification mirrors the JSON record the portal serves
type Notification struct {
	ID          any            `json:"id"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	CreatedAt   string         `json:"createdAt"`
	IsRead      bool           `json:"isRead"`
	EventType   string         `json:"eventType"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
}

// Server is a scriptable portal backend
type Server struct {
	*httptest.Server
	Router *mux.Router

	mu            sync.Mutex
	issued        int
	accessTokens  map[string]bool
	refreshTokens map[string]bool
	calls         map[string]int
	authHeaders   []string

	// RefreshGate, when set, blocks refresh handling until it is closed.
	RefreshGate chan struct{}
	// RefreshDelay is slept before answering a refresh.
	RefreshDelay time.Duration
	// RefreshStatus forces the refresh endpoint to answer with this status.
	RefreshStatus int
	// RotateRefreshTokens issues a new refresh token on every refresh.
	RotateRefreshTokens bool

	notifications []Notification
	unread        int

	streamChunks   []string
	streamStatus   int
	streamHoldOpen bool
}

// New starts a fake portal
func New() *Server {
	s := &Server{
		Router:        mux.NewRouter(),
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
		calls:         make(map[string]int),
	}

	api := s.Router.PathPrefix(APIPrefix).Subrouter()
	api.Use(s.countCalls)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.requireAuth)
	protected.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	protected.HandleFunc("/echo", s.handleEcho).Methods(http.MethodPost)
	protected.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	protected.HandleFunc("/notifications/unread-count", s.handleUnreadCount).Methods(http.MethodGet)
	protected.HandleFunc("/notifications/read-all", s.handleReadAll).Methods(http.MethodPatch)
	protected.HandleFunc("/notifications/stream", s.handleStream).Methods(http.MethodGet)
	protected.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods(http.MethodPatch)

	api.HandleFunc("/always-401", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "token rejected")
	}).Methods(http.MethodGet)

	s.Server = httptest.NewServer(s.Router)
	return s
}

// APIURL returns the base URL clients should use
func (s *Server) APIURL() string {
	return s.URL + APIPrefix
}

// IssueTokens mints a valid access/refresh pair
func (s *Server) IssueTokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueAccessLocked(), s.issueRefreshLocked()
}

// ExpireAccessTokens invalidates every issued access token
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]bool)
}

// RevokeRefreshTokens invalidates every issued refresh token
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]bool)
}

// Calls returns how many requests reached path (relative to APIPrefix)
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[APIPrefix+path]
}

// AuthHeaders returns the Authorization headers seen by protected routes, in order
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders...)
}

// SetNotifications replaces the stored notification list and unread count
func (s *Server) SetNotifications(list []Notification, unread int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]Notification(nil), list...)
	s.unread = unread
}

// SetStream scripts the event stream: each chunk is written and flushed in
// order. With holdOpen the response stays open until the client goes away.
func (s *Server) SetStream(status int, holdOpen bool, chunks ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamStatus = status
	s.streamHoldOpen = holdOpen
	s.streamChunks = append([]string(nil), chunks...)
}

func (s *Server) issueAccessLocked() string {
	s.issued++
	tok := fmt.Sprintf("access-%d", s.issued)
	s.accessTokens[tok] = true
	return tok
}

func (s *Server) issueRefreshLocked() string {
	s.issued++
	tok := fmt.Sprintf("refresh-%d", s.issued)
	s.refreshTokens[tok] = true
	return tok
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")

		s.mu.Lock()
		s.authHeaders = append(s.authHeaders, header)
		valid := s.accessTokens[token]
		s.mu.Unlock()

		if !valid {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Password != Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	access, refresh := s.IssueTokens()
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         map[string]string{"email": req.Email},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.RefreshGate != nil {
		<-s.RefreshGate
	}
	if s.RefreshDelay > 0 {
		time.Sleep(s.RefreshDelay)
	}
	if s.RefreshStatus != 0 {
		writeError(w, s.RefreshStatus, "refresh rejected")
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	if !s.refreshTokens[req.RefreshToken] {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	body := map[string]string{"accessToken": s.issueAccessLocked()}
	if s.RotateRefreshTokens {
		delete(s.refreshTokens, req.RefreshToken)
		body["refreshToken"] = s.issueRefreshLocked()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": body})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	delete(s.refreshTokens, req.RefreshToken)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"email": "candidate@example.com", "role": "candidate"})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := append([]Notification(nil), s.notifications...)
	unread := s.unread
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":        list,
		"unreadCount": unread,
		"total":       len(list),
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	unread := s.unread
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"count": unread})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if fmt.Sprint(s.notifications[i].ID) == id {
			if !s.notifications[i].IsRead && s.unread > 0 {
				s.unread--
			}
			s.notifications[i].IsRead = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "notification not found")
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for i := range s.notifications {
		s.notifications[i].IsRead = true
	}
	s.unread = 0
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.streamStatus
	chunks := append([]string(nil), s.streamChunks...)
	holdOpen := s.streamHoldOpen
	s.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if status != http.StatusOK {
		writeError(w, status, "stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	for _, chunk := range chunks {
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if holdOpen {
		<-r.Context().Done()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
	})
}
