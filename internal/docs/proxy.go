package docs

import (
	"context"
	"net/http"
	"net/http/httputil"
	"strings"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/obs"
)

// Proxy forwards the request verbatim to path on the upstream, replacing
// any inbound credentials with the session token as a bearer header. The
// client's timeout bounds each forwarded call.
func (c *Client) Proxy(op, path string) http.Handler {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(c.base)
			pr.Out.URL.Path = strings.TrimRight(c.base.Path, "/") + path
			pr.Out.URL.RawPath = ""
			pr.Out.URL.RawQuery = pr.In.URL.RawQuery
			pr.Out.Host = c.base.Host
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			if tok, ok := auth.TokenFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set("Authorization", "Bearer "+tok)
			}
		},
		Transport: c.http.Transport,
		ModifyResponse: func(resp *http.Response) error {
			obs.ObserveUpstream(op, outcome(classify(resp)))
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			obs.ObserveUpstream(op, "unreachable")
			obs.Logger().Warn("upstream unreachable", "op", op, "err", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
		},
	}
	timeout := c.http.Timeout
	if timeout <= 0 {
		return rp
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		rp.ServeHTTP(w, r.WithContext(ctx))
	})
}
