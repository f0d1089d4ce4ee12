package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is matched by every authorization failure surfaced to callers
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired is returned when a refresh failed and the session was torn down
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken is returned when a refresh is requested without a stored refresh token
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrNotLoggedIn is returned when no credentials are stored at all
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoToken is returned when a JWT helper receives an empty token
	ErrNoToken = errors.New("no token")

	// ErrInvalidToken is returned when a token cannot be parsed
	ErrInvalidToken = errors.New("invalid token")
)

// APIError captures a non-2xx response from the portal API.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, msg)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// decodeAPIError reads the body of a failed response. The portal answers either
// {"error":{"code":..,"message":..}} or {"message":..,"statusCode":..}.
func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get("X-Request-ID"),
	}
	if len(data) == 0 {
		apiErr.Message = resp.Status
		return apiErr
	}

	var payload struct {
		Error json.RawMessage `json:"error"`
		Code  string          `json:"code"`
		// message may be a string or a list of validation messages
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	apiErr.Code = payload.Code
	apiErr.Message = rawMessageText(payload.Message)

	if len(payload.Error) > 0 {
		var nested struct {
			Code    string          `json:"code"`
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil {
			if nested.Code != "" {
				apiErr.Code = nested.Code
			}
			if msg := rawMessageText(nested.Message); msg != "" {
				apiErr.Message = msg
			}
		} else if apiErr.Message == "" {
			apiErr.Message = rawMessageText(payload.Error)
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

func rawMessageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}
