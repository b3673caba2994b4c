// Package session gates navigation to protected pages on a verified session
// token carried in an HTTP-only cookie.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/obs"
)

// State is the outcome of inspecting a request's session token.
type State int

const (
	NoToken State = iota
	ValidToken
	InvalidOrExpiredToken
)

func (s State) String() string {
	switch s {
	case NoToken:
		return "no_token"
	case ValidToken:
		return "valid"
	case InvalidOrExpiredToken:
		return "invalid_or_expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Verifier checks a raw token. *auth.Tokens and *auth.Service satisfy it.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// Decision is the gate's verdict for one request.
type Decision struct {
	State     State
	Protected bool
	Identity  auth.Identity
	Token     string
	// Location is set when the request must be redirected.
	Location string
	Err      error
}

// Allowed reports whether the request may reach the handler.
func (d Decision) Allowed() bool {
	return !d.Protected || d.State == ValidToken
}

// Reason distinguishes expired from otherwise invalid tokens for logs and
// metrics. Empty unless the state is InvalidOrExpiredToken.
func (d Decision) Reason() string {
	if d.State != InvalidOrExpiredToken {
		return ""
	}
	if errors.Is(d.Err, auth.ErrTokenExpired) {
		return "expired"
	}
	return "invalid"
}

func (d Decision) label() string {
	if r := d.Reason(); r != "" {
		return r
	}
	return d.State.String()
}

var (
	DefaultProtectedPrefixes = []string{"/documents", "/profile", "/dashboard"}
	DefaultPublicPaths       = []string{"/", "/login", "/register"}
)

type Gate struct {
	verifier  Verifier
	cookies   Cookies
	loginPath string
	prefixes  []string
	public    map[string]struct{}
	logger    *slog.Logger
}

type Option func(*Gate)

func WithCookies(c Cookies) Option {
	return func(g *Gate) { g.cookies = c }
}

func WithLoginPath(p string) Option {
	return func(g *Gate) {
		if p != "" {
			g.loginPath = p
		}
	}
}

// WithProtectedPrefixes replaces the default allow-list.
func WithProtectedPrefixes(prefixes ...string) Option {
	return func(g *Gate) {
		g.prefixes = g.prefixes[:0]
		for _, p := range prefixes {
			if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
				g.prefixes = append(g.prefixes, p)
			}
		}
	}
}

// WithPublicPaths adds exact paths that are never gated.
func WithPublicPaths(paths ...string) Option {
	return func(g *Gate) {
		for _, p := range paths {
			g.public[path.Clean("/"+strings.TrimSpace(p))] = struct{}{}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGate(v Verifier, opts ...Option) (*Gate, error) {
	if v == nil {
		return nil, errors.New("session: verifier is required")
	}
	g := &Gate{
		verifier:  v,
		cookies:   Cookies{Name: DefaultCookieName, Secure: true},
		loginPath: "/login",
		prefixes:  append([]string(nil), DefaultProtectedPrefixes...),
		public:    map[string]struct{}{},
		logger:    obs.Logger(),
	}
	WithPublicPaths(DefaultPublicPaths...)(g)
	for _, opt := range opts {
		opt(g)
	}
	// the login page must stay reachable
	g.public[g.loginPath] = struct{}{}
	return g, nil
}

func (g *Gate) Cookies() Cookies { return g.cookies }

func (g *Gate) LoginPath() string { return g.loginPath }

// Protects reports whether navigation to p requires a valid session.
func (g *Gate) Protects(p string) bool {
	if p == "" {
		p = "/"
	}
	p = path.Clean(p)
	if _, ok := g.public[p]; ok {
		return false
	}
	for _, prefix := range g.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Check classifies the request's token without regard to the path.
func (g *Gate) Check(r *http.Request) (State, auth.Identity, string, error) {
	token, ok := g.cookies.Token(r)
	if !ok {
		return NoToken, auth.Identity{}, "", nil
	}
	id, err := g.verifier.Verify(token)
	if err != nil {
		return InvalidOrExpiredToken, auth.Identity{}, token, err
	}
	return ValidToken, id, token, nil
}

// Evaluate decides what to do with a navigation request.
func (g *Gate) Evaluate(r *http.Request) Decision {
	var d Decision
	d.Protected = g.Protects(r.URL.Path)
	d.State, d.Identity, d.Token, d.Err = g.Check(r)

	if !d.Protected {
		return d
	}
	switch d.State {
	case NoToken:
		d.Location = LoginURL(g.loginPath, r.URL.RequestURI(), "")
	case InvalidOrExpiredToken:
		d.Location = LoginURL(g.loginPath, r.URL.RequestURI(), ReasonSessionExpired)
	}
	return d
}

// Middleware enforces Evaluate. A valid session continues with the identity
// and token in the request context on every path, protected or not.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		if d.Protected {
			obs.ObserveGateDecision(d.label())
		}
		if d.Allowed() {
			if d.State == ValidToken {
				r = WithSession(r, d.Identity, d.Token)
			}
			next.ServeHTTP(w, r)
			return
		}
		if d.State == InvalidOrExpiredToken {
			g.logger.Info("session rejected", "path", r.URL.Path, "reason", d.Reason())
			g.cookies.Clear(w)
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
	})
}

// WithSession returns r carrying a verified identity and its raw token.
func WithSession(r *http.Request, id auth.Identity, token string) *http.Request {
	ctx := auth.ContextWithIdentity(r.Context(), id)
	return r.WithContext(auth.ContextWithToken(ctx, token))
}
