package httpapi

import (
	"errors"
	"net/http"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/session"
)

// requireSession guards the front end's own /api routes with the same
// cookie and verifier as the page gate, answering 401 JSON instead of
// redirecting.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		state, identity, token, err := a.gate.Check(r)
		switch state {
		case session.NoToken:
			w.Header().Set("WWW-Authenticate", `Bearer realm="chatdocs"`)
			writeError(w, r, http.StatusUnauthorized, "not authenticated")
			return
		case session.InvalidOrExpiredToken:
			a.gate.Cookies().Clear(w)
			w.Header().Set("WWW-Authenticate", `Bearer realm="chatdocs", error="invalid_token"`)
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "session expired"
			}
			writeError(w, r, http.StatusUnauthorized, msg)
			return
		}

		next.ServeHTTP(w, session.WithSession(r, identity, token))
	})
}
