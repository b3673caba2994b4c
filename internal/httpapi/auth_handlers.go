package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"chatdocs.app/internal/audit"
	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/obs"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Email   string `json:"email"`
}

type loginResponse struct {
	Message     string    `json:"message"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auth.ErrConflict):
		return "conflict"
	case errors.Is(err, auth.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

// register and login are shared by the form pages and the JSON API so both
// surfaces audit and count the same way.
func (a *API) register(r *http.Request, email, password string) (auth.Account, error) {
	acc, err := a.auth.Register(r.Context(), email, password)
	outcome := outcomeOf(err)
	obs.ObserveAuthAttempt("register", outcome)
	fields := map[string]any{"identifier": auth.NormalizeIdentifier(email), "outcome": outcome}
	if err == nil {
		fields["account_id"] = acc.ID
	} else if outcome == "error" {
		obs.Logger().Error("register", "err", err, "request_id", RequestIDFromContext(r))
	}
	_ = audit.LogEvent(r.Context(), "auth.register", fields)
	return acc, err
}

func (a *API) login(r *http.Request, email, password string) (auth.IssuedToken, error) {
	issued, err := a.auth.Login(r.Context(), email, password)
	outcome := outcomeOf(err)
	obs.ObserveAuthAttempt("login", outcome)
	fields := map[string]any{"identifier": auth.NormalizeIdentifier(email), "outcome": outcome}
	if err == nil {
		fields["expires_at"] = issued.ExpiresAt.UTC().Format(time.RFC3339)
	} else if outcome == "error" {
		obs.Logger().Error("login", "err", err, "request_id", RequestIDFromContext(r))
	}
	_ = audit.LogEvent(r.Context(), "auth.login", fields)
	return issued, err
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.gate.Cookies().Clear(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
}

func (a *API) apiRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.register(r, req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, registerResponse{Message: "User registered", ID: acc.ID, Email: acc.Identifier})
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "email and password are required; password must be at most 72 bytes")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// apiLogin accepts a JSON body or an OAuth2-style form with username and
// password fields.
func (a *API) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		var err error
		if ct == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid form body")
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	issued, err := a.login(r, req.Email, req.Password)
	switch {
	case err == nil:
		a.gate.Cookies().Set(w, issued)
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, loginResponse{
			Message:     "Login successful",
			AccessToken: issued.Token,
			TokenType:   "bearer",
			ExpiresAt:   issued.ExpiresAt.UTC(),
		})
	case errors.Is(err, auth.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", `Bearer realm="chatdocs"`)
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) apiLogout(w http.ResponseWriter, r *http.Request) {
	a.logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}
