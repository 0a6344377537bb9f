package domain

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ResolveRoomID derives the stable room identifier for a page URL.
//
// It is pure and deterministic: the same normalized URL always yields the
// same identifier, so two clients viewing the same page resolve to the same
// room without any central allocator. The identifier is a name-based UUID
// (128-bit MD5 digest in the RFC 4122 URL namespace with version/variant
// bits overlaid), formatted as the canonical 8-4-4-4-12 hex string.
func ResolveRoomID(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(normalized)).String(), nil
}

// NormalizeURL canonicalizes a page URL before identity derivation:
// query string and fragment are stripped, the trailing slash is removed,
// scheme and host are lowercased, and the scheme is forced to https,
// except for loopback hosts, which keep http so local development pages
// do not collide with their deployed counterparts.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: missing scheme or host in %q", ErrInvalidURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.ToLower(u.Host)
	if isLoopbackHost(host) {
		scheme = "http"
	} else {
		scheme = "https"
	}

	path := strings.TrimSuffix(u.Path, "/")

	return scheme + "://" + host + path, nil
}

// isLoopbackHost reports whether host (possibly with a port) is local.
func isLoopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
