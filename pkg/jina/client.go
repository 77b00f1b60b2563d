// Package jina is a client for the Jina reader (r.jina.ai) and search
// (s.jina.ai) endpoints.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultReadURL   = "https://r.jina.ai"
	defaultSearchURL = "https://s.jina.ai"
)

// Client is the subset of Jina operations used for enrichment.
type Client interface {
	// Read returns the page at targetURL rendered as markdown.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search and returns the result list.
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// ReadResponse is the reader envelope.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the rendered page.
type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchResponse is the search envelope.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is one search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// StatusError is returned for non-2xx responses so callers can classify them.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "jina: unexpected status " + strconv.Itoa(e.Code) + ": " + e.Body
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.readURL = u }
}

// WithSearchBaseURL overrides the search base URL.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) { c.searchURL = u }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey    string
	readURL   string
	searchURL string
	http      *http.Client
}

// NewClient creates a Jina client. apiKey may be empty for the anonymous tier.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		readURL:   defaultReadURL,
		searchURL: defaultSearchURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	body, code, err := c.get(ctx, c.readURL+"/"+targetURL, map[string]string{"X-Return-Format": "markdown"})
	if err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}
	if code != http.StatusOK {
		return nil, &StatusError{Code: code, Body: truncate(body)}
	}

	var out ReadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: decode read response")
	}
	return &out, nil
}

func (c *httpClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	body, code, err := c.get(ctx, c.searchURL+"/"+url.PathEscape(query), nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}

	// 422 means the query produced no results.
	if code == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: code}, nil
	}
	if code != http.StatusOK {
		return nil, &StatusError{Code: code, Body: truncate(body)}
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: decode search response")
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, u string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "read response body")
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte) string {
	const maxBody = 300
	if len(b) > maxBody {
		return string(b[:maxBody])
	}
	return string(b)
}
