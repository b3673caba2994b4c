package httpapi

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/docs"
	"chatdocs.app/internal/obs"
	"chatdocs.app/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "login", "register", "documents", "profile"}

func parsePages() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}

type pageData struct {
	Title      string
	LoginPath  string
	DocsLink   string
	LoggedIn   bool
	Error      string
	Notice     string
	Redirect   string
	Email      string
	Identifier string
	ExpiresAt  time.Time
	Documents  []docs.Document
}

const (
	msgSessionExpired = "Your session has expired. Please log in again."
	msgBadCredentials = "Invalid email or password."
	msgAccountExists  = "An account with this email already exists."
	msgInvalidInput   = "Please enter an email and a password of at most 72 bytes."
	msgInternal       = "Something went wrong. Please try again."
	msgRegistered     = "Account created. Please log in."
	msgDocsDown       = "Documents are unavailable right now. Please try again later."
)

// render buffers the page so a template failure still yields a clean 500.
func (a *API) render(w http.ResponseWriter, r *http.Request, code int, name string, data pageData) {
	if !data.LoggedIn {
		data.LoggedIn = a.gate.Cookies().Has(r)
	}
	data.LoginPath = a.gate.LoginPath()
	// signed-out users reach documents through the login page
	data.DocsLink = "/documents"
	if !data.LoggedIn {
		data.DocsLink = session.LoginURL(data.LoginPath, "/documents", "")
	}
	var buf bytes.Buffer
	if err := a.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		obs.Logger().Error("render page", "page", name, "err", err, "request_id", RequestIDFromContext(r))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) homePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	a.render(w, r, http.StatusOK, "home", pageData{Title: "Home"})
}

func (a *API) loginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := pageData{
		Title:    "Log in",
		Redirect: session.SafeRedirect(q.Get("redirect"), ""),
	}
	if q.Get("error") == session.ReasonSessionExpired {
		data.Error = msgSessionExpired
	}
	if q.Get("registered") != "" {
		data.Notice = msgRegistered
	}
	a.render(w, r, http.StatusOK, "login", data)
}

func (a *API) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.render(w, r, http.StatusBadRequest, "login", pageData{Title: "Log in", Error: msgInvalidInput})
		return
	}
	email := r.PostForm.Get("username")
	if email == "" {
		email = r.PostForm.Get("email")
	}
	redirect := session.SafeRedirect(r.PostForm.Get("redirect"), "")

	issued, err := a.login(r, email, r.PostForm.Get("password"))
	if err != nil {
		data := pageData{Title: "Log in", Email: email, Redirect: redirect, Error: msgInternal}
		code := http.StatusInternalServerError
		if errors.Is(err, auth.ErrUnauthorized) {
			data.Error, code = msgBadCredentials, http.StatusUnauthorized
		}
		a.render(w, r, code, "login", data)
		return
	}
	a.gate.Cookies().Set(w, issued)
	http.Redirect(w, r, session.SafeRedirect(redirect, "/documents"), http.StatusSeeOther)
}

func (a *API) registerPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, "register", pageData{Title: "Register"})
}

func (a *API) registerSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.render(w, r, http.StatusBadRequest, "register", pageData{Title: "Register", Error: msgInvalidInput})
		return
	}
	email := r.PostForm.Get("email")
	if _, err := a.register(r, email, r.PostForm.Get("password")); err != nil {
		data := pageData{Title: "Register", Email: email, Error: msgInternal}
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrConflict):
			data.Error, code = msgAccountExists, http.StatusConflict
		case errors.Is(err, auth.ErrInvalidInput):
			data.Error, code = msgInvalidInput, http.StatusBadRequest
		}
		a.render(w, r, code, "register", data)
		return
	}
	http.Redirect(w, r, a.gate.LoginPath()+"?registered=1", http.StatusSeeOther)
}

func (a *API) logoutSubmit(w http.ResponseWriter, r *http.Request) {
	a.logout(w, r)
	http.Redirect(w, r, a.gate.LoginPath(), http.StatusSeeOther)
}

// sessionPage serves next only with a verified session. It checks the cookie
// itself when the gate did not, so a page left out of the protected prefixes
// stays reachable for signed-in users.
func (a *API) sessionPage(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.IdentityFromContext(r.Context()); ok {
			next(w, r)
			return
		}
		state, id, token, _ := a.gate.Check(r)
		reason := ""
		switch state {
		case session.ValidToken:
			next(w, session.WithSession(r, id, token))
			return
		case session.InvalidOrExpiredToken:
			a.gate.Cookies().Clear(w)
			reason = session.ReasonSessionExpired
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, session.LoginURL(a.gate.LoginPath(), r.URL.RequestURI(), reason), http.StatusTemporaryRedirect)
	}
}

// documentsPage serves /documents and /dashboard.
func (a *API) documentsPage(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.TokenFromContext(r.Context())
		data := pageData{Title: title, LoggedIn: true}
		list, err := a.docs.List(r.Context(), token)
		if err != nil {
			obs.Logger().Warn("list documents", "err", err, "request_id", RequestIDFromContext(r))
			data.Error = msgDocsDown
		}
		data.Documents = list
		a.render(w, r, http.StatusOK, "documents", data)
	}
}

func (a *API) profilePage(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	a.render(w, r, http.StatusOK, "profile", pageData{
		Title:      "Profile",
		LoggedIn:   true,
		Identifier: id.Identifier,
		ExpiresAt:  id.ExpiresAt,
	})
}
