package session

import (
	"net/url"
	"strings"
)

// ReasonSessionExpired is the login page error code for a rejected session.
const ReasonSessionExpired = "session_expired"

// LoginURL builds the login location carrying the return path and an
// optional reason code.
func LoginURL(loginPath, redirect, reason string) string {
	q := url.Values{}
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	if reason != "" {
		q.Set("error", reason)
	}
	if len(q) == 0 {
		return loginPath
	}
	return loginPath + "?" + q.Encode()
}

// SafeRedirect returns target when it is a local absolute path, otherwise
// fallback. Scheme-relative and backslash forms are rejected.
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n\t") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return target
}
