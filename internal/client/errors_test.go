package client

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestDecodeAPIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"nested error", 404, `{"error":{"code":"not_found","message":"no such job"}}`, "not_found", "no such job"},
		{"flat message", 400, `{"statusCode":400,"message":"bad input"}`, "", "bad input"},
		{"validation list", 400, `{"message":["title is required","salary must be positive"]}`, "", "title is required; salary must be positive"},
		{"plain text", 502, "upstream unavailable\n", "", "upstream unavailable"},
		{"empty body", 503, "", "", "503 Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Status:     http.StatusText(tt.status),
				Header:     http.Header{"X-Request-Id": []string{"jb-1"}},
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			if tt.body == "" {
				resp.Status = "503 Service Unavailable"
			}

			var apiErr *APIError
			if !errors.As(decodeAPIError(resp), &apiErr) {
				t.Fatal("expected *APIError")
			}
			if apiErr.Status != tt.status {
				t.Errorf("status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.RequestID != "jb-1" {
				t.Errorf("request id = %q, want jb-1", apiErr.RequestID)
			}
		})
	}
}

func TestAPIError_IsUnauthorized(t *testing.T) {
	if !errors.Is(&APIError{Status: http.StatusUnauthorized}, ErrUnauthorized) {
		t.Error("401 should match ErrUnauthorized")
	}
	if errors.Is(&APIError{Status: http.StatusForbidden}, ErrUnauthorized) {
		t.Error("403 should not match ErrUnauthorized")
	}
}

func TestSessionExpiredError(t *testing.T) {
	cause := errors.New("refresh rejected")
	err := error(&SessionExpiredError{Method: "GET", Path: "/me", Cause: cause})

	for _, target := range []error{ErrUnauthorized, ErrSessionExpired, cause} {
		if !errors.Is(err, target) {
			t.Errorf("expected error to match %v", target)
		}
	}
}
