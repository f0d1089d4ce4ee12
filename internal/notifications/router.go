package notifications

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/devilmonastery/jobboard/internal/pkg/metrics"
)

// RoutingTableVersion identifies the event-type table below. Bump it whenever
// a destination changes; web and CLI clients compare it when sharing links.
const RoutingTableVersion = 3

const (
	HomeRoute         = "/"
	ApplicationsRoute = "/applications"
	jobDetailTemplate = "/jobs/{jobId}"
)

// Role is the audience an event type belongs to
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleRecruiter Role = "recruiter"
	RoleCandidate Role = "candidate"
	RoleBroadcast Role = "broadcast"
)

// Route is one row of the routing table
type Route struct {
	Role     Role
	Template string
}

// Every event type has exactly one destination. Placeholders name metadata ids.
var routes = map[string]Route{
	// admin
	"JOB_PENDING_APPROVAL":           {RoleAdmin, "/admin/jobs/pending"},
	"JOB_REPORTED":                   {RoleAdmin, "/admin/jobs/{jobId}"},
	"COMPANY_VERIFICATION_REQUESTED": {RoleAdmin, "/admin/companies/{companyId}"},
	"NEW_USER_REGISTERED":            {RoleAdmin, "/admin/users"},
	"BLOG_POST_SUBMITTED":            {RoleAdmin, "/admin/blogs"},

	// recruiter
	"APPLICATION_RECEIVED":  {RoleRecruiter, "/recruiter/jobs/{jobId}/applications"},
	"APPLICATION_WITHDRAWN": {RoleRecruiter, "/recruiter/jobs/{jobId}/applications"},
	"JOB_APPROVED":          {RoleRecruiter, "/recruiter/jobs/{jobId}"},
	"JOB_REJECTED":          {RoleRecruiter, "/recruiter/jobs/{jobId}"},
	"JOB_EXPIRING":          {RoleRecruiter, "/recruiter/jobs/{jobId}"},
	"COMPANY_VERIFIED":      {RoleRecruiter, "/recruiter/company"},
	"PACKAGE_EXPIRING":      {RoleRecruiter, "/recruiter/packages"},

	// candidate
	"APPLICATION_STATUS_CHANGED": {RoleCandidate, "/candidate/applications/{applicationId}"},
	"INTERVIEW_SCHEDULED":        {RoleCandidate, "/candidate/applications/{applicationId}"},
	"APPLICATION_VIEWED":         {RoleCandidate, "/candidate/applications"},
	"JOB_RECOMMENDATION":         {RoleCandidate, "/jobs/{jobId}"},
	"SAVED_JOB_CLOSING":          {RoleCandidate, "/jobs/{jobId}"},
	"PROFILE_INCOMPLETE":         {RoleCandidate, "/candidate/profile"},

	// broadcast
	"SYSTEM_ANNOUNCEMENT":   {RoleBroadcast, HomeRoute},
	"MAINTENANCE_SCHEDULED": {RoleBroadcast, HomeRoute},
}

// metadata keys accepted for each placeholder, camelCase first
var placeholderKeys = map[string][]string{
	"jobId":         {"jobId", "job_id"},
	"applicationId": {"applicationId", "application_id"},
	"companyId":     {"companyId", "company_id"},
}

var redirectKeys = []string{"redirectUrl", "redirect_url", "link"}

// Lookup returns the table row for an event type
func Lookup(eventType string) (Route, bool) {
	r, ok := routes[strings.ToUpper(strings.TrimSpace(eventType))]
	return r, ok
}

// Resolve maps a notification to an in-app route. Precedence: explicit
// redirect, then the event-type table, then legacy id heuristics. ok is false
// only for a nil notification, in which case the caller must not navigate.
func Resolve(n *Notification) (string, bool) {
	if n == nil {
		slog.Warn("cannot resolve route for nil notification")
		return "", false
	}

	if r := explicitRedirect(n); r != "" {
		metrics.RouteResolutions.WithLabelValues("explicit").Inc()
		return r, true
	}

	if route, ok := Lookup(n.EventType); ok {
		if path, ok := expand(route.Template, n); ok {
			metrics.RouteResolutions.WithLabelValues("table").Inc()
			return path, true
		}
		slog.Debug("route template missing metadata id, using fallback",
			slog.String("event_type", n.EventType),
			slog.String("notification_id", n.ID.String()))
	}

	metrics.RouteResolutions.WithLabelValues("legacy").Inc()
	return legacyRoute(n), true
}

func explicitRedirect(n *Notification) string {
	if r := strings.TrimSpace(n.RedirectURL); r != "" {
		return r
	}
	return n.MetadataString(redirectKeys...)
}

// expand substitutes {placeholders}; ok is false when an id is missing
func expand(template string, n *Notification) (string, bool) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		name := rest[open+1 : open+end]
		keys, known := placeholderKeys[name]
		if !known {
			keys = []string{name}
		}
		value := n.MetadataString(keys...)
		if value == "" {
			return "", false
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		rest = rest[open+end+1:]
	}
}

func legacyRoute(n *Notification) string {
	if n.MetadataString(placeholderKeys["applicationId"]...) != "" {
		return ApplicationsRoute
	}
	if path, ok := expand(jobDetailTemplate, n); ok {
		return path
	}
	return HomeRoute
}
