package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// apiMetricsTransport wraps an http.RoundTripper to collect metrics on portal API calls
type apiMetricsTransport struct {
	base http.RoundTripper
}

// NewTransport creates a transport wrapper that records call counts, latency, and
// errors for every request it carries.
func NewTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &apiMetricsTransport{base: base}
}

// RoundTrip implements http.RoundTripper, wrapping the base transport with metrics collection
func (t *apiMetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ActiveRequests.Inc()
	defer ActiveRequests.Dec()

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	route := NormalizeRoute(req.URL.Path)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	APICalls.WithLabelValues(req.Method, route, strconv.Itoa(statusCode)).Inc()
	// Streaming responses return once headers arrive, so this is time-to-headers.
	APIDuration.WithLabelValues(req.Method, route).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		APIErrors.WithLabelValues(route, classifyError(statusCode, err)).Inc()
	}

	return resp, err
}

var routePatterns = []struct {
	regex   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`/notifications/[0-9a-fA-F-]{1,64}(/|$)`), "/notifications/:id$1"},
	{regexp.MustCompile(`/jobs/[0-9a-fA-F-]{1,64}(/|$)`), "/jobs/:id$1"},
	{regexp.MustCompile(`/applications/[0-9a-fA-F-]{1,64}(/|$)`), "/applications/:id$1"},
	{regexp.MustCompile(`/companies/[0-9a-fA-F-]{1,64}(/|$)`), "/companies/:id$1"},
	{regexp.MustCompile(`/users/[0-9a-fA-F-]{1,64}(/|$)`), "/users/:id$1"},
}

// NormalizeRoute replaces identifiers in API paths with placeholders
// This prevents high cardinality in metrics while still providing useful aggregation
func NormalizeRoute(path string) string {
	normalized := path
	for _, p := range routePatterns {
		normalized = p.regex.ReplaceAllString(normalized, p.replace)
	}
	return normalized
}
