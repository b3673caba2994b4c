package httpapi

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/docs"
	"chatdocs.app/internal/obs"
	"chatdocs.app/internal/session"
)

// Pinger reports whether a backing store answers. *store.Handle satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Auth    *auth.Service
	Gate    *session.Gate
	Docs    *docs.Client
	Ready   Pinger // nil means always ready
	Version string
}

// Limits tune request hardening.
type Limits struct {
	MaxBodyBytes      int64
	RateBurst         int
	RatePerSecond     int
	TrustForwardedFor bool
}

// API is the web front end: pages, auth endpoints and the document proxy.
type API struct {
	router  *mux.Router
	auth    *auth.Service
	gate    *session.Gate
	docs    *docs.Client
	ready   Pinger
	version string
	limits  Limits
	limiter *RateLimiter
	pages   map[string]*template.Template
	started time.Time
}

func New(d Deps, limits Limits) (*API, error) {
	if d.Auth == nil || d.Gate == nil || d.Docs == nil {
		return nil, errors.New("httpapi: auth, gate and docs are required")
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	a := &API{
		router:  mux.NewRouter(),
		auth:    d.Auth,
		gate:    d.Gate,
		docs:    d.Docs,
		ready:   d.Ready,
		version: d.Version,
		limits:  limits,
		limiter: NewRateLimiter(limits.RateBurst, limits.RatePerSecond, limits.TrustForwardedFor),
		pages:   pages,
		started: time.Now(),
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	creds := a.limiter.Wrap

	// ops
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// pages
	obs.TrackPath(a.gate.LoginPath())
	r.HandleFunc("/", a.homePage).Methods(http.MethodGet)
	r.HandleFunc(a.gate.LoginPath(), a.loginPage).Methods(http.MethodGet)
	r.Handle(a.gate.LoginPath(), creds(http.HandlerFunc(a.loginSubmit))).Methods(http.MethodPost)
	r.HandleFunc("/register", a.registerPage).Methods(http.MethodGet)
	r.Handle("/register", creds(http.HandlerFunc(a.registerSubmit))).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.logoutSubmit).Methods(http.MethodPost)
	r.HandleFunc("/documents", a.sessionPage(a.documentsPage("Documents"))).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", a.sessionPage(a.documentsPage("Dashboard"))).Methods(http.MethodGet)
	r.HandleFunc("/profile", a.sessionPage(a.profilePage)).Methods(http.MethodGet)

	// auth API
	r.Handle("/api/auth/register", creds(http.HandlerFunc(a.apiRegister))).Methods(http.MethodPost)
	r.Handle("/api/auth/login", creds(http.HandlerFunc(a.apiLogin))).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", a.apiLogout).Methods(http.MethodPost)

	// session-checked API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.requireSession)
	api.HandleFunc("/documents", a.listDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/delete", a.deleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/rename", a.renameDocument).Methods(http.MethodPatch)
	api.HandleFunc("/upload-csv", a.forward("upload", func(map[string]string) string {
		return "/api/upload-csv"
	})).Methods(http.MethodPost)
	api.HandleFunc("/chat/{id}/history", a.forward("chat_history", func(v map[string]string) string {
		return "/api/chat/" + v["id"] + "/history"
	})).Methods(http.MethodGet)
	api.HandleFunc("/chat/{id}", a.forward("chat", func(v map[string]string) string {
		return "/api/chat/" + v["id"]
	})).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the fully wrapped handler. The gate sits in front of the
// router so every navigation is checked before any route runs.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.gate.Middleware(h)
	h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "chatdocs-web",
		"version": a.version,
		"uptime":  time.Since(a.started).Round(time.Second).String(),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.ready == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	if err := a.ready.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
