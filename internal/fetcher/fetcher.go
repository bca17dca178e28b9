// Package fetcher performs conditional HTTP fetches of feed sources.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"feedhub/internal/feed"
	"feedhub/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result holds the outcome of one conditional fetch.
// On a 304 response Skipped is true and ETag carries the stored token unchanged.
type Result struct {
	Articles []model.Article
	ETag     string
	Skipped  bool
}

// Fetcher downloads feed documents and hands them to the parser.
type Fetcher struct {
	client HTTPClient
	parser *feed.Parser
}

// New creates a Fetcher with the given HTTP client and parser.
func New(client HTTPClient, parser *feed.Parser) *Fetcher {
	return &Fetcher{client: client, parser: parser}
}

// Fetch performs one conditional GET for the source. The stored etag, if
// any, is sent as If-None-Match. A server-supplied etag replaces the stored
// one on any successful response, even when the body yields no articles.
func (f *Fetcher) Fetch(ctx context.Context, src model.Source, etag string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedhub/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{ETag: etag, Skipped: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		Articles: f.parser.Parse(body, src),
		ETag:     resp.Header.Get("ETag"),
	}, nil
}
