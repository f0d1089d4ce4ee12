package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// LoginRequest is the body of the login endpoint
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password and starts a session
func (c *Client) Login(ctx context.Context, email, password string) error {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodPost, c.loginPath, LoginRequest{Email: email, Password: password}, &raw); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	tok, err := decodeTokenResponse(raw)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("login: response carried no access token")
	}
	return c.session.Login(tok)
}

// Logout revokes the refresh token server-side (best effort) and clears the session
func (c *Client) Logout(ctx context.Context) error {
	tok, err := c.session.Store().Token()
	if err != nil {
		return nil
	}

	if tok.RefreshToken != "" {
		body := map[string]string{"refreshToken": tok.RefreshToken}
		if err := c.Do(ctx, http.MethodPost, c.logoutPath, body, nil); err != nil {
			c.log.Warn("server-side logout failed, clearing local session anyway",
				slog.String("error", err.Error()))
		}
	}

	return c.session.Logout(ReasonUserLogout)
}
