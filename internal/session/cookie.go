package session

import (
	"net/http"
	"strings"
	"time"

	"chatdocs.app/internal/auth"
)

const DefaultCookieName = "access_token"

// Cookies reads and writes the HTTP-only session cookie.
type Cookies struct {
	Name   string
	Secure bool
}

func (c Cookies) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// Set stores the token; the cookie expires with the token.
func (c Cookies) Set(w http.ResponseWriter, tok auth.IssuedToken) {
	maxAge := int(time.Until(tok.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.ExpiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token returns the raw cookie value, if any.
func (c Cookies) Token(r *http.Request) (string, bool) {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(ck.Value)
	return v, v != ""
}

// Has reports token presence without verifying it. Only for UI hints.
func (c Cookies) Has(r *http.Request) bool {
	_, ok := c.Token(r)
	return ok
}
