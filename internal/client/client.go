// Package client is the command-line counterpart of the web front end. It
// keeps the session token in an authstate store and presents it as the
// session cookie.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatdocs.app/internal/authstate"
	"chatdocs.app/internal/docs"
	"chatdocs.app/internal/session"
)

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("session expired, please log in again")
	ErrBadCredentials = errors.New("invalid email or password")
	ErrAccountExists  = errors.New("an account with this email already exists")
)

// ServerError carries a non-success reply the client has no sentinel for.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	base       *url.URL
	http       *http.Client
	state      *authstate.State
	cookieName string
}

func New(baseURL string, state *authstate.State, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("client: invalid server url %q", baseURL)
	}
	if state == nil {
		return nil, errors.New("client: auth state is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: httpClient, state: state, cookieName: session.DefaultCookieName}, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password string) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": password}, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return ErrAccountExists
	default:
		return serverError(resp)
	}
}

// Login exchanges credentials for a session and stores the token.
func (c *Client) Login(ctx context.Context, email, password string) (time.Time, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, false)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return time.Time{}, ErrBadCredentials
	default:
		return time.Time{}, serverError(resp)
	}
	var body struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("decode login response: %w", err)
	}
	if body.AccessToken == "" {
		return time.Time{}, errors.New("login response carried no token")
	}
	if err := c.state.SignIn(body.AccessToken); err != nil {
		return time.Time{}, err
	}
	return body.ExpiresAt, nil
}

// Logout tells the server and always clears the local token.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/logout", nil, true)
	if err == nil {
		resp.Body.Close()
	}
	if clearErr := c.state.SignOut(); clearErr != nil {
		return clearErr
	}
	if errors.Is(err, ErrNotSignedIn) {
		return nil
	}
	return err
}

// Documents lists the signed-in user's documents. A 401 clears the stored
// token and reports ErrSessionExpired.
func (c *Client) Documents(ctx context.Context) ([]docs.Document, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/documents", nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		if err := c.state.SignOut(); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	default:
		return nil, serverError(resp)
	}
	var out []docs.Document
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, withSession bool) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withSession {
		tok, err := c.state.Token()
		if err != nil {
			return nil, err
		}
		if tok == "" {
			return nil, ErrNotSignedIn
		}
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: tok})
	}
	return c.http.Do(req)
}

func serverError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &ServerError{Status: resp.StatusCode, Message: body.Error}
}
