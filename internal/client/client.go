package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
	"github.com/devilmonastery/jobboard/internal/pkg/urlutil"
)

const (
	DefaultRefreshPath = "/auth/refresh"
	DefaultLoginPath   = "/auth/login"
	DefaultLogoutPath  = "/auth/logout"
	defaultUserAgent   = "jobboard-cli/0.1"
	maxResponseBody    = 8 << 20
)

// Config wires the API base URL, token storage, and transport for a Client
type Config struct {
	BaseURL     string
	RefreshPath string
	LoginPath   string
	LogoutPath  string
	Store       TokenStore

	// HTTPClient supplies the base transport and timeout. Its Transport is
	// wrapped, never replaced.
	HTTPClient *http.Client
	UserAgent  string
}

// Client is the authenticated portal API client
type Client struct {
	baseURL    string
	logoutPath string
	loginPath  string
	httpClient *http.Client
	session    *Session
	refresher  *RefreshCoordinator
	userAgent  string
	log        *slog.Logger
}

// NewClient validates the configuration and returns a ready-to-use Client
func NewClient(cfg Config) (*Client, error) {
	baseURL, err := urlutil.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	store := cfg.Store
	if store == nil {
		store = NewMemoryTokenStore(nil)
	}

	refreshPath := orDefault(cfg.RefreshPath, DefaultRefreshPath)
	loginPath := orDefault(cfg.LoginPath, DefaultLoginPath)
	logoutPath := orDefault(cfg.LogoutPath, DefaultLogoutPath)

	var base http.RoundTripper
	var timeout time.Duration
	if cfg.HTTPClient != nil {
		base = cfg.HTTPClient.Transport
		timeout = cfg.HTTPClient.Timeout
	}

	session := NewSession(store)
	httpClient := &http.Client{Timeout: timeout}

	refreshURL := urlutil.JoinPath(baseURL, refreshPath)
	refresher := NewRefreshCoordinator(store, NewHTTPRefresher(httpClient, refreshURL))
	httpClient.Transport = NewAuthTransport(
		metrics.NewTransport(base),
		session,
		refresher,
		pathOf(refreshURL),
		pathOf(urlutil.JoinPath(baseURL, loginPath)),
	)

	return &Client{
		baseURL:    baseURL,
		loginPath:  loginPath,
		logoutPath: logoutPath,
		httpClient: httpClient,
		session:    session,
		refresher:  refresher,
		userAgent:  orDefault(cfg.UserAgent, defaultUserAgent),
		log:        slog.Default().With(slog.String("component", "api_client")),
	}, nil
}

// BaseURL returns the normalized API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves an API path against the base URL
func (c *Client) URL(path string) string {
	return urlutil.JoinPath(c.baseURL, path)
}

// HTTPClient returns the authenticated http.Client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Session returns the auth session
func (c *Client) Session() *Session {
	return c.session
}

// Refresher returns the refresh coordinator shared by every request of this client
func (c *Client) Refresher() *RefreshCoordinator {
	return c.refresher
}

// Send issues req through the authenticated pipeline. Non-2xx responses are
// closed and returned as *APIError; a 401 that survived the single retry
// matches ErrUnauthorized.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var expired *SessionExpiredError
		if errors.As(err, &expired) {
			return nil, expired
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

// NewRequest builds a JSON request for an API path
func (c *Client) NewRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends a JSON request and decodes a JSON response into out (if non-nil)
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.Send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		drainAndClose(resp.Body)
		return nil
	}
	data, err := readBody(resp)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
