package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatdocs.app/internal/auth"
)

func TestCookieRoundTrip(t *testing.T) {
	c := Cookies{Name: "sess", Secure: true}
	rr := httptest.NewRecorder()
	c.Set(rr, auth.IssuedToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != "sess" || !ck.HttpOnly || !ck.Secure || ck.Path != "/" || ck.MaxAge <= 0 {
		t.Fatalf("unexpected cookie: %+v", ck)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	if tok, ok := c.Token(req); !ok || tok != "tok" {
		t.Fatalf("unexpected token %q %v", tok, ok)
	}
	if !c.Has(req) {
		t.Fatal("expected Has to be true")
	}
}

func TestCookieClearAndAbsent(t *testing.T) {
	c := Cookies{}
	rr := httptest.NewRecorder()
	c.Clear(rr)
	ck := rr.Result().Cookies()[0]
	if ck.Name != DefaultCookieName || ck.MaxAge >= 0 || ck.Value != "" {
		t.Fatalf("unexpected clearing cookie: %+v", ck)
	}
	if c.Has(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatal("expected no token")
	}
}
