package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/docs"
	"chatdocs.app/internal/obs"
	"chatdocs.app/internal/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUpstream struct {
	mu       sync.Mutex
	lastAuth string
	lastPath string
	lastBody string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.lastAuth = r.Header.Get("Authorization")
	f.lastPath = r.Method + " " + r.URL.Path
	f.lastBody = string(body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/documents":
		_, _ = io.WriteString(w, `[{"id":"d1","filename":"sales.csv","uploaded_at":"2026-02-01T10:00:00Z"}]`)
	case r.URL.Path == "/api/documents/missing":
		w.WriteHeader(http.StatusNotFound)
	case strings.HasPrefix(r.URL.Path, "/api/documents/"):
		_, _ = io.WriteString(w, `{}`)
	case r.URL.Path == "/api/upload-csv":
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"d2","filename":"new.csv"}`)
	case strings.HasSuffix(r.URL.Path, "/history"):
		_, _ = io.WriteString(w, `[]`)
	case strings.HasPrefix(r.URL.Path, "/api/chat/"):
		_, _ = io.WriteString(w, `{"response":"42"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeUpstream) last() (auth, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth, f.lastPath, f.lastBody
}

type testEnv struct {
	t        *testing.T
	baseURL  string
	client   *http.Client
	clock    *testClock
	upstream *fakeUpstream
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithUpstream(t, "")
}

func newTestEnvWithUpstream(t *testing.T, upstreamURL string) *testEnv {
	t.Helper()
	return newTestEnvWith(t, envOptions{upstreamURL: upstreamURL})
}

type envOptions struct {
	upstreamURL string
	gate        []session.Option
	ready       Pinger
}

func newTestEnvWith(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	upstreamURL := o.upstreamURL
	t.Cleanup(obs.SetLogger(obs.NewLogger(io.Discard, "error")))

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	up := &fakeUpstream{}
	if upstreamURL == "" {
		upSrv := httptest.NewServer(up)
		t.Cleanup(upSrv.Close)
		upstreamURL = upSrv.URL
	}

	tokens, err := auth.NewTokens([]byte("0123456789abcdef0123456789abcdef"), auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	svc, err := auth.NewService(auth.NewMemoryStore(), tokens, auth.WithPasswordCost(bcrypt.MinCost), auth.WithServiceClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	gateOpts := append([]session.Option{session.WithCookies(session.Cookies{Name: session.DefaultCookieName})}, o.gate...)
	gate, err := session.NewGate(svc, gateOpts...)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	dc, err := docs.NewClient(upstreamURL, docs.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	api, err := New(Deps{Auth: svc, Gate: gate, Docs: dc, Ready: o.ready, Version: "test"}, Limits{
		MaxBodyBytes:  1 << 20,
		RateBurst:     1000,
		RatePerSecond: 1000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &testEnv{t: t, baseURL: srv.URL, client: client, clock: clock, upstream: up}
}

func (e *testEnv) do(method, path, contentType string, body io.Reader, cookie string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(method, e.baseURL+path, body)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: cookie})
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postJSON(path string, v any, cookie string) *http.Response {
	e.t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		e.t.Fatalf("marshal body: %v", err)
	}
	return e.do(http.MethodPost, path, "application/json", bytes.NewReader(payload), cookie)
}

func (e *testEnv) postForm(path string, form url.Values) *http.Response {
	e.t.Helper()
	return e.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), "")
}

func (e *testEnv) get(path, cookie string) *http.Response {
	e.t.Helper()
	return e.do(http.MethodGet, path, "", nil, cookie)
}

// signIn registers and logs in over the JSON API and returns the cookie value.
func (e *testEnv) signIn(email, password string) string {
	e.t.Helper()
	if resp := e.postJSON("/api/auth/register", map[string]string{"email": email, "password": password}, ""); resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("register: %d", resp.StatusCode)
	}
	resp := e.postJSON("/api/auth/login", map[string]string{"email": email, "password": password}, "")
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("login: %d", resp.StatusCode)
	}
	return sessionCookie(e.t, resp).Value
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	t.Fatalf("no session cookie set")
	return nil
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func readBody(t *testing.T, r *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func loginLocation(t *testing.T, resp *http.Response) url.Values {
	t.Helper()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.StatusCode)
	}
	u, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || u.Path != "/login" {
		t.Fatalf("unexpected location %q", resp.Header.Get("Location"))
	}
	return u.Query()
}

func TestRegisterLoginVerifyFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON("/api/auth/register", map[string]string{"email": "User@Example.com", "password": "pw"}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d", resp.StatusCode)
	}
	reg := decode[map[string]any](t, resp)
	if reg["email"] != "user@example.com" || reg["id"] == "" {
		t.Fatalf("unexpected register body: %v", reg)
	}

	resp = env.postJSON("/api/auth/register", map[string]string{"email": "user@example.com", "password": "other"}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: %d", resp.StatusCode)
	}

	resp = env.postJSON("/api/auth/login", map[string]string{"email": "user@example.com", "password": "wrong"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", resp.StatusCode)
	}
	if len(resp.Cookies()) != 0 {
		t.Fatal("no cookie may be set on failed login")
	}

	resp = env.postJSON("/api/auth/login", map[string]string{"email": "user@example.com", "password": "pw"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d", resp.StatusCode)
	}
	cookie := sessionCookie(t, resp)
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	body := decode[loginResponse](t, resp)
	if body.AccessToken != cookie.Value || body.Message != "Login successful" {
		t.Fatalf("unexpected login body: %+v", body)
	}

	resp = env.get("/profile", cookie.Value)
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "user@example.com") {
		t.Fatalf("profile: %d", resp.StatusCode)
	}

	resp = env.get("/documents", cookie.Value)
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "sales.csv") {
		t.Fatalf("documents: %d", resp.StatusCode)
	}
	if a, _, _ := env.upstream.last(); a != "Bearer "+cookie.Value {
		t.Fatalf("upstream saw %q", a)
	}
}

func TestGateRedirectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/documents", "/profile", "/dashboard"} {
		q := loginLocation(t, env.get(p, ""))
		if q.Get("redirect") != p || q.Has("error") {
			t.Fatalf("%s: unexpected query %v", p, q)
		}
	}
}

func TestGateRedirectsExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn("a@b.com", "pw")
	env.clock.Advance(time.Hour + time.Second)

	resp := env.get("/documents", cookie)
	q := loginLocation(t, resp)
	if q.Get("redirect") != "/documents" || q.Get("error") != session.ReasonSessionExpired {
		t.Fatalf("unexpected query %v", q)
	}

	resp = env.get("/login?"+q.Encode(), "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "Your session has expired") {
		t.Fatal("login page should explain the expired session")
	}
}

func TestPublicPathsNeverRedirect(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/", "/login", "/register"} {
		for _, c := range []string{"", "garbage"} {
			if resp := env.get(p, c); resp.StatusCode != http.StatusOK {
				t.Fatalf("%s (cookie %q): %d", p, c, resp.StatusCode)
			}
		}
	}
}

func TestNavLinksFollowCookiePresence(t *testing.T) {
	env := newTestEnv(t)
	if body := readBody(t, env.get("/", "")); !strings.Contains(body, `href="/login?redirect=%2Fdocuments"`) {
		t.Fatal("signed-out nav should route documents through login")
	}
	if body := readBody(t, env.get("/", "anything")); !strings.Contains(body, `action="/logout"`) {
		t.Fatal("signed-in nav should offer logout")
	}
}

func TestFormLoginRedirectsBack(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postForm("/register", url.Values{"email": {"a@b.com"}, "password": {"pw"}})
	if resp.StatusCode != http.StatusSeeOther || !strings.HasPrefix(resp.Header.Get("Location"), "/login") {
		t.Fatalf("register form: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = env.postForm("/register", url.Values{"email": {"A@B.com"}, "password": {"pw"}})
	if resp.StatusCode != http.StatusConflict || !strings.Contains(readBody(t, resp), "already exists") {
		t.Fatalf("duplicate register form: %d", resp.StatusCode)
	}

	resp = env.postForm("/login", url.Values{"username": {"a@b.com"}, "password": {"nope"}, "redirect": {"/profile"}})
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(readBody(t, resp), "Invalid email or password.") {
		t.Fatalf("bad form login: %d", resp.StatusCode)
	}

	resp = env.postForm("/login", url.Values{"username": {"a@b.com"}, "password": {"pw"}, "redirect": {"/profile"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/profile" {
		t.Fatalf("form login: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	cookie := sessionCookie(t, resp).Value

	resp = env.postForm("/login", url.Values{"username": {"a@b.com"}, "password": {"pw"}, "redirect": {"//evil.example/x"}})
	if resp.Header.Get("Location") != "/documents" {
		t.Fatalf("open redirect: %q", resp.Header.Get("Location"))
	}

	resp = env.do(http.MethodPost, "/logout", "", nil, cookie)
	if resp.StatusCode != http.StatusSeeOther || sessionCookie(t, resp).MaxAge >= 0 {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
}

func TestOAuthStyleFormLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signIn("a@b.com", "pw")
	resp := env.postForm("/api/auth/login", url.Values{"username": {"a@b.com"}, "password": {"pw"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("form api login: %d", resp.StatusCode)
	}
	if body := decode[loginResponse](t, resp); body.TokenType != "bearer" || body.AccessToken == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSessionAPI(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get("/api/documents", "")
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("Location") != "" {
		t.Fatalf("expected 401 without redirect, got %d", resp.StatusCode)
	}
	if resp := env.get("/api/documents", "garbage"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", resp.StatusCode)
	}

	cookie := env.signIn("a@b.com", "pw")
	resp = env.get("/api/documents", cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	if list := decode[[]docs.Document](t, resp); len(list) != 1 || list[0].ID != "d1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = env.do(http.MethodDelete, "/api/documents/d1/delete", "", nil, cookie)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, resp)["message"] != "Document deleted" {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if _, p, _ := env.upstream.last(); p != "DELETE /api/documents/d1" {
		t.Fatalf("upstream saw %q", p)
	}

	resp = env.do(http.MethodPatch, "/api/documents/d1/rename", "application/json", strings.NewReader(`{"filename":"q1.csv"}`), cookie)
	if resp.StatusCode != http.StatusOK || decode[map[string]string](t, resp)["message"] != "Document renamed" {
		t.Fatalf("rename: %d", resp.StatusCode)
	}
	if _, p, b := env.upstream.last(); p != "PATCH /api/documents/d1" || !strings.Contains(b, "q1.csv") {
		t.Fatalf("upstream saw %q %q", p, b)
	}

	resp = env.do(http.MethodDelete, "/api/documents/missing/delete", "", nil, cookie)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing delete: %d", resp.StatusCode)
	}

	resp = env.do(http.MethodPost, "/api/upload-csv", "text/csv", strings.NewReader("a,b\n1,2\n"), cookie)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d", resp.StatusCode)
	}
	if a, p, b := env.upstream.last(); a != "Bearer "+cookie || p != "POST /api/upload-csv" || b != "a,b\n1,2\n" {
		t.Fatalf("upload not proxied verbatim: %q %q %q", a, p, b)
	}

	resp = env.do(http.MethodPost, "/api/chat/d1", "application/json", strings.NewReader(`{"message":"hi"}`), cookie)
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "42") {
		t.Fatalf("chat: %d", resp.StatusCode)
	}
	if resp := env.get("/api/chat/d1/history", cookie); resp.StatusCode != http.StatusOK {
		t.Fatalf("history: %d", resp.StatusCode)
	}

	resp = env.do(http.MethodPost, "/api/auth/logout", "", nil, cookie)
	if resp.StatusCode != http.StatusNoContent || sessionCookie(t, resp).MaxAge >= 0 {
		t.Fatalf("api logout: %d", resp.StatusCode)
	}
}

func TestUpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	env := newTestEnvWithUpstream(t, deadURL)
	cookie := env.signIn("a@b.com", "pw")

	resp := env.get("/documents", cookie)
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "unavailable") {
		t.Fatalf("documents page should render an inline error, got %d", resp.StatusCode)
	}
	if resp := env.get("/api/documents", cookie); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if resp := env.do(http.MethodPost, "/api/chat/1", "application/json", strings.NewReader(`{}`), cookie); resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 from proxy, got %d", resp.StatusCode)
	}
}

func TestOpsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	if resp := env.get("/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	if resp := env.get("/readyz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}
	if resp := env.get("/metrics", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
	resp := env.get("/nope", "")
	if resp.StatusCode != http.StatusNotFound || resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("not found: %d", resp.StatusCode)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestReadyReportsStoreFailure(t *testing.T) {
	env := newTestEnvWith(t, envOptions{ready: failingPinger{}})
	resp := env.get("/readyz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}
	if body := decode[map[string]any](t, resp); body["error"] != "db down" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSessionPagesOutsideProtectedPrefixes(t *testing.T) {
	env := newTestEnvWith(t, envOptions{gate: []session.Option{session.WithProtectedPrefixes("/documents")}})
	cookie := env.signIn("a@b.com", "pw")

	resp := env.get("/profile", cookie)
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "a@b.com") {
		t.Fatalf("profile with a valid session: %d", resp.StatusCode)
	}
	if resp := env.get("/dashboard", cookie); resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard with a valid session: %d", resp.StatusCode)
	}

	q := loginLocation(t, env.get("/profile", ""))
	if q.Get("redirect") != "/profile" || q.Has("error") {
		t.Fatalf("unexpected query %v", q)
	}

	env.clock.Advance(time.Hour + time.Second)
	resp = env.get("/profile", cookie)
	q = loginLocation(t, resp)
	if q.Get("error") != session.ReasonSessionExpired {
		t.Fatalf("expired session should carry the reason, got %v", q)
	}
	if c := sessionCookie(t, resp); c.MaxAge >= 0 {
		t.Fatalf("stale cookie should be cleared, got %+v", c)
	}
}

func TestCustomLoginPath(t *testing.T) {
	env := newTestEnvWith(t, envOptions{gate: []session.Option{session.WithLoginPath("/signin")}})
	if resp := env.postJSON("/api/auth/register", map[string]string{"email": "a@b.com", "password": "pw"}, ""); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d", resp.StatusCode)
	}

	resp := env.get("/documents", "")
	loc, err := url.Parse(resp.Header.Get("Location"))
	if resp.StatusCode != http.StatusTemporaryRedirect || err != nil || loc.Path != "/signin" {
		t.Fatalf("expected redirect to /signin, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = env.get(loc.RequestURI(), "")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `action="/signin"`) {
		t.Fatalf("login page at the configured path: %d", resp.StatusCode)
	}
	if !strings.Contains(body, `href="/signin?redirect=%2Fdocuments"`) {
		t.Fatal("nav should route documents through the configured login path")
	}

	resp = env.postForm("/signin", url.Values{"username": {"a@b.com"}, "password": {"pw"}, "redirect": {"/documents"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/documents" {
		t.Fatalf("form login: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	sessionCookie(t, resp)

	if resp := env.get("/login", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("default login path should not be routed, got %d", resp.StatusCode)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, Limits{}); err == nil {
		t.Fatal("expected error")
	}
}
