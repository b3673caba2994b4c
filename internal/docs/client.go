// Package docs talks to the external document/chat API on behalf of a
// signed-in user.
package docs

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

	"chatdocs.app/internal/obs"
)

var (
	ErrUnreachable = errors.New("docs: upstream unreachable")
	ErrNotFound    = errors.New("docs: not found")
	ErrUpstream    = errors.New("docs: upstream error")
)

// Document is one uploaded file as listed by the API.
type Document struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	CID        string `json:"cid,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}

type Client struct {
	base *url.URL
	http *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-call timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("docs: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("docs: base url %q must be absolute http(s)", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}


// List returns the caller's documents. A body that is not a JSON array is
// treated as an empty list.
func (c *Client) List(ctx context.Context, token string) ([]Document, error) {
	resp, err := c.do(ctx, "list", http.MethodGet, "/api/documents", token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return []Document{}, nil
	}
	var out []Document
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []Document{}, nil
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, token, id string) error {
	resp, err := c.do(ctx, "delete", http.MethodDelete, "/api/documents/"+url.PathEscape(id), token, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Rename(ctx context.Context, token, id, filename string) error {
	body, err := json.Marshal(map[string]string{"filename": filename})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "rename", http.MethodPatch, "/api/documents/"+url.PathEscape(id), token, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do issues the call and classifies the outcome. On success the caller owns
// resp.Body.
func (c *Client) do(ctx context.Context, op, method, path, token string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		obs.ObserveUpstream(op, "unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := classify(resp); err != nil {
		obs.ObserveUpstream(op, outcome(err))
		resp.Body.Close()
		return nil, err
	}
	obs.ObserveUpstream(op, "ok")
	return resp, nil
}

func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
