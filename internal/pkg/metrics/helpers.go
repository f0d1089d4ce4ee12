package metrics

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RecordTokenRefresh records a backend refresh call consistently
// duration: time taken by the refresh call
// err: error from the call (nil if successful)
func RecordTokenRefresh(duration time.Duration, err error) {
	TokenRefreshDuration.Observe(float64(duration.Milliseconds()))

	result := "success"
	if err != nil {
		result = "error"
	}
	TokenRefreshes.WithLabelValues(result).Inc()
}

// RecordFrame records a stream frame outcome
// status: "dispatched", "applied", "ignored", or "malformed"
func RecordFrame(event, status string) {
	StreamFrames.WithLabelValues(frameEventLabel(event), status).Inc()
}

// frameEventLabel keeps the event label bounded: names come from the server.
func frameEventLabel(event string) string {
	switch event {
	case "connected", "unread-count", "notification":
		return event
	case "":
		return "unknown"
	default:
		return "other"
	}
}

// SetStreamConnected flips the stream liveness gauge
func SetStreamConnected(connected bool) {
	if connected {
		StreamConnected.Set(1)
		return
	}
	StreamConnected.Set(0)
}

// classifyError categorizes transport and HTTP errors for metrics
func classifyError(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "canceled"
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout"
		}
		errStr := strings.ToLower(err.Error())
		switch {
		case strings.Contains(errStr, "timeout"):
			return "timeout"
		case strings.Contains(errStr, "connection"):
			return "connection"
		case strings.Contains(errStr, "tls"):
			return "tls"
		default:
			return "network"
		}
	}

	switch {
	case statusCode == 400:
		return "bad_request"
	case statusCode == 401:
		return "unauthorized"
	case statusCode == 403:
		return "forbidden"
	case statusCode == 404:
		return "not_found"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
