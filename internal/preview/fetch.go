package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"teamchat/internal/apperr"
)

// Fetcher downloads pages for preview extraction with a short timeout and a
// hard read cap: enough to capture <head>, never an unbounded body.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewFetcher(guard *Guard, timeout time.Duration, maxBytes int64, userAgent string) *Fetcher {
	client := &http.Client{
		Timeout: timeout,
		// Redirects can pivot onto internal addresses after the initial
		// check, so every hop is re-validated.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return guard.Validate(req.Context(), req.URL)
		},
	}
	return &Fetcher{client: client, maxBytes: maxBytes, userAgent: userAgent}
}

// FetchHTML retrieves the page and returns up to maxBytes of HTML. Non-2xx
// statuses and non-HTML content types are upstream errors.
func (f *Fetcher) FetchHTML(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperr.Upstream("invalid request", err)
	}
	// Some sites refuse non-browser agents outright.
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream("fetch failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, apperr.Upstream(fmt.Sprintf("fetch returned %s", res.Status), nil)
	}
	contentType := res.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return nil, apperr.Upstream(fmt.Sprintf("not an HTML page (%s)", contentType), nil)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes))
	if err != nil {
		return nil, apperr.Upstream("read failed", err)
	}
	return body, nil
}

// FetchBytes retrieves a binary resource (preview images) under the same
// read cap, returning the bytes and content type.
func (f *Fetcher) FetchBytes(ctx context.Context, resourceURL string) ([]byte, string, error) {
	u, err := url.Parse(resourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", apperr.Upstream("invalid resource url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, "", apperr.Upstream("invalid request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	res, err := f.client.Do(req)
	if err != nil {
		return nil, "", apperr.Upstream("fetch failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, "", apperr.Upstream(fmt.Sprintf("fetch returned %s", res.Status), nil)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes))
	if err != nil {
		return nil, "", apperr.Upstream("read failed", err)
	}
	return body, res.Header.Get("Content-Type"), nil
}
