package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// JoinPath appends an API path to a base URL without doubling or dropping slashes.
// Returns a URL like: {baseURL}/{path}
func JoinPath(baseURL, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if path == "" {
		return baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// BuildWebURL builds an absolute web application URL for a resolved route.
// Absolute routes (already carrying a scheme) are returned unchanged.
// Returns a URL like: {baseURL}/candidate/applications?tab=all
func BuildWebURL(baseURL, route string) (string, error) {
	target, err := url.Parse(route)
	if err != nil {
		return "", fmt.Errorf("invalid route %q: %w", route, err)
	}
	if target.IsAbs() {
		return route, nil
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid web base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("web base URL %q must include scheme and host", baseURL)
	}

	// Resolve relative to the base path so a base of https://host/app keeps /app.
	target.Path = strings.TrimLeft(target.Path, "/")
	target.RawPath = strings.TrimLeft(target.RawPath, "/")
	return base.ResolveReference(target).String(), nil
}

// NormalizeBaseURL validates an API base URL and strips trailing slashes
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("base URL missing scheme (http/https)")
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return strings.TrimSuffix(u.String(), "/"), nil
}
