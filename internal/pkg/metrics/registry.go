package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Portal API Metrics
var (
	// APICalls tracks portal API calls
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_api_calls_total",
			Help: "Total portal API calls by method, route (normalized path), and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	// APIDuration tracks portal API latency
	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "jobboard_api_duration_ms",
			Help:                            "Portal API call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route"},
	)

	// APIErrors tracks portal API errors
	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_api_errors_total",
			Help: "Total portal API errors by route and error type",
		},
		[]string{"route", "error_type"},
	)

	// ActiveRequests tracks in-flight portal API requests
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobboard_api_active_requests",
			Help: "Number of in-flight portal API requests",
		},
	)
)

// Authentication Metrics
var (
	// TokenRefreshes tracks backend refresh calls by result
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_token_refreshes_total",
			Help: "Total token refresh calls made to the backend, by result",
		},
		[]string{"result"},
	)

	// TokenRefreshDuration tracks refresh call latency
	TokenRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:                            "jobboard_token_refresh_duration_ms",
			Help:                            "Token refresh call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
	)

	// TokenRefreshWaiters counts callers served by a refresh they did not start
	TokenRefreshWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobboard_token_refresh_shared_total",
			Help: "Total callers that received a token from a refresh started by another caller",
		},
	)

	// AuthRetries tracks request retries after a 401, by outcome
	AuthRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_auth_retries_total",
			Help: "Total requests re-issued after an authorization failure, by outcome",
		},
		[]string{"outcome"},
	)

	// SessionTeardowns tracks forced logouts
	SessionTeardowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_session_teardowns_total",
			Help: "Total session teardowns by reason",
		},
		[]string{"reason"},
	)
)

// Notification Stream Metrics
var (
	// StreamFrames tracks decoded stream frames by event and status
	StreamFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_stream_frames_total",
			Help: "Total notification stream frames by event name and status",
		},
		[]string{"event", "status"},
	)

	// StreamConnected tracks stream liveness (0=disconnected, 1=connected)
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobboard_stream_connected",
			Help: "Notification stream connection status (0=disconnected, 1=connected)",
		},
	)

	// StreamReconnects tracks caller-driven reconnections
	StreamReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_stream_reconnects_total",
			Help: "Total notification stream reconnections by reason",
		},
		[]string{"reason"},
	)

	// StreamBytes tracks bytes read from the stream
	StreamBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobboard_stream_bytes_total",
			Help: "Total bytes read from the notification stream",
		},
	)
)

// Inbox Metrics
var (
	// UnreadNotifications tracks the current unread counter
	UnreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobboard_unread_notifications",
			Help: "Current unread notification count as last reported",
		},
	)

	// RecentNotifications tracks the size of the bounded recent list
	RecentNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobboard_recent_notifications",
			Help: "Number of notifications held in the recent list",
		},
	)

	// NotificationEvictions tracks entries dropped from the recent list
	NotificationEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobboard_notification_evictions_total",
			Help: "Total notifications evicted from the bounded recent list",
		},
	)

	// RouteResolutions tracks notification route resolution by source
	RouteResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_route_resolutions_total",
			Help: "Total notification route resolutions by source (redirect, table, fallback, miss)",
		},
		[]string{"source"},
	)
)
