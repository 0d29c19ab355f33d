package preview

import (
	"context"
	"io"
	"net/netip"
	"strings"
	"testing"
	"time"

	"teamchat/internal/apperr"
)

type memCache struct {
	entries map[string]*Entry
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*Entry)}
}

func (c *memCache) Get(_ context.Context, hash string) (*Entry, error) {
	e, ok := c.entries[hash]
	if !ok {
		return nil, apperr.NotFound("preview")
	}
	return e, nil
}

func (c *memCache) GetMany(_ context.Context, hashes []string) ([]*Entry, error) {
	var out []*Entry
	for _, h := range hashes {
		if e, ok := c.entries[h]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *memCache) SetPending(_ context.Context, hash, rawURL string, now time.Time) error {
	c.entries[hash] = &Entry{URLHash: hash, URL: rawURL, Status: StatusPending, CreatedAt: now}
	return nil
}

func (c *memCache) SetTerminal(_ context.Context, e *Entry) error {
	c.entries[e.URLHash] = e
	return nil
}

func (c *memCache) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	var keys []string
	for hash, e := range c.entries {
		if e.Expired(now) {
			if e.ImageFullKey != "" {
				keys = append(keys, e.ImageFullKey, e.ImageThumbKey)
			}
			delete(c.entries, hash)
		}
	}
	return keys, nil
}

type fakeFetcher struct {
	html    map[string]string
	image   []byte
	fetches int
	err     error
}

func (f *fakeFetcher) FetchHTML(_ context.Context, pageURL string) ([]byte, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.html[pageURL]
	if !ok {
		return nil, apperr.Upstream("fetch failed", nil)
	}
	return []byte(body), nil
}

func (f *fakeFetcher) FetchBytes(context.Context, string) ([]byte, string, error) {
	if f.image == nil {
		return nil, "", apperr.Upstream("image fetch failed", nil)
	}
	return f.image, "image/png", nil
}

type memBlobs struct {
	stored  map[string][]byte
	deleted []string
}

func newMemBlobs() *memBlobs { return &memBlobs{stored: make(map[string][]byte)} }

func (b *memBlobs) Put(_ context.Context, key, _ string, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.stored[key] = buf
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	delete(b.stored, key)
	return nil
}

func publicGuard() *Guard {
	return &Guard{
		lookup: func(context.Context, string) ([]netip.Addr, error) {
			return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
		},
	}
}

func newTestService(cache *memCache, fetcher *fakeFetcher, blobs BlobStore) *Service {
	return NewService(cache, fetcher, publicGuard(), DefaultRegistry(), blobs, 7*24*time.Hour, 3)
}

const articleHTML = `<html><head>
<title>Fallback</title>
<meta property="og:title" content="An Article">
<meta property="og:description" content="Worth reading">
<meta property="og:site_name" content="Example">
<meta property="og:image" content="https://example.com/cover.png">
</head><body></body></html>`

func TestProcessURLSuccess(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{
		html:  map[string]string{"https://example.com/article": articleHTML},
		image: []byte("png-bytes"),
	}
	blobs := newMemBlobs()
	svc := newTestService(cache, fetcher, blobs)

	entry, err := svc.ProcessURL(context.Background(), "https://example.com/article?utm_source=x")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Status != StatusSuccess {
		t.Fatalf("status = %s", entry.Status)
	}
	if entry.Title != "An Article" || entry.SiteName != "Example" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ImageFullKey == "" || entry.ImageThumbKey == "" {
		t.Fatal("image should be proxied into blob storage")
	}
	if len(blobs.stored) != 2 {
		t.Fatalf("expected 2 stored blobs, got %d", len(blobs.stored))
	}
	if !strings.HasPrefix(entry.ImageFullKey, "preview/") {
		t.Errorf("unexpected blob key %q", entry.ImageFullKey)
	}
}

func TestProcessURLCacheHit(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{html: map[string]string{"https://example.com/article": articleHTML}}
	svc := newTestService(cache, fetcher, newMemBlobs())
	ctx := context.Background()

	if _, err := svc.ProcessURL(ctx, "https://example.com/article"); err != nil {
		t.Fatalf("first process: %v", err)
	}
	fetches := fetcher.fetches

	// Tracking-parameter variants of the same URL hit the same cache row.
	entry, err := svc.ProcessURL(ctx, "https://example.com/article?fbclid=zzz")
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if entry.Status != StatusSuccess {
		t.Fatalf("status = %s", entry.Status)
	}
	if fetcher.fetches != fetches {
		t.Fatal("cache hit must not refetch")
	}
}

func TestProcessURLPendingCollapses(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{html: map[string]string{"https://example.com/slow": articleHTML}}
	svc := newTestService(cache, fetcher, newMemBlobs())
	ctx := context.Background()

	normalized, _ := Normalize("https://example.com/slow")
	hash := Hash(normalized)

	// A fresh pending row from a concurrent worker is respected.
	base := time.Now()
	cache.SetPending(ctx, hash, normalized, base)
	entry, err := svc.ProcessURL(ctx, "https://example.com/slow")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Status != StatusPending || fetcher.fetches != 0 {
		t.Fatalf("fresh pending should collapse, status=%s fetches=%d", entry.Status, fetcher.fetches)
	}

	// A stale pending row means the worker died; re-claim it.
	cache.entries[hash].CreatedAt = base.Add(-2 * pendingStale)
	entry, err = svc.ProcessURL(ctx, "https://example.com/slow")
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if entry.Status != StatusSuccess || fetcher.fetches != 1 {
		t.Fatalf("stale pending should refetch, status=%s fetches=%d", entry.Status, fetcher.fetches)
	}
}

func TestProcessURLBlockedByPolicy(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{}
	svc := newTestService(cache, fetcher, newMemBlobs())

	entry, err := svc.ProcessURL(context.Background(), "http://192.168.1.10/admin")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Status != StatusError {
		t.Fatalf("status = %s", entry.Status)
	}
	if !strings.Contains(entry.ErrorMessage, "blocked by fetch policy") {
		t.Fatalf("error message = %q", entry.ErrorMessage)
	}
	if fetcher.fetches != 0 {
		t.Fatal("unsafe URL must never be fetched")
	}
}

func TestProcessURLFetchFailure(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{err: apperr.Upstream("fetch failed: connection refused", nil)}
	svc := newTestService(cache, fetcher, newMemBlobs())

	entry, err := svc.ProcessURL(context.Background(), "https://example.com/down")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Status != StatusError || entry.ErrorMessage == "" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ExpiresAt == nil {
		t.Fatal("error entries expire and retry after TTL like any other")
	}
}

func TestProcessURLNoPreview(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{html: map[string]string{
		"https://example.com/bare": "<html><head></head><body>nothing</body></html>",
	}}
	svc := newTestService(cache, fetcher, newMemBlobs())

	entry, err := svc.ProcessURL(context.Background(), "https://example.com/bare")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Status != StatusNoPreview {
		t.Fatalf("status = %s", entry.Status)
	}
}

func TestProcessURLImageFailureDegrades(t *testing.T) {
	cache := newMemCache()
	fetcher := &fakeFetcher{
		html: map[string]string{"https://example.com/article": articleHTML},
		// image stays nil: FetchBytes fails
	}
	svc := newTestService(cache, fetcher, newMemBlobs())

	entry, err := svc.ProcessURL(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Status != StatusSuccess {
		t.Fatalf("status = %s", entry.Status)
	}
	if entry.Title == "" || entry.ImageFullKey != "" {
		t.Fatalf("expected text-only success, got %+v", entry)
	}
}

func TestSweepReleasesBlobs(t *testing.T) {
	cache := newMemCache()
	blobs := newMemBlobs()
	svc := newTestService(cache, &fakeFetcher{}, blobs)

	past := time.Now().Add(-time.Hour)
	cache.entries["aaa"] = &Entry{
		URLHash:       "aaa",
		Status:        StatusSuccess,
		ImageFullKey:  "preview/aaa/full",
		ImageThumbKey: "preview/aaa/thumb",
		ExpiresAt:     &past,
	}
	svc.Sweep(context.Background())

	if len(cache.entries) != 0 {
		t.Fatal("expired entry should be gone")
	}
	if len(blobs.deleted) != 2 {
		t.Fatalf("expected 2 blob deletes, got %v", blobs.deleted)
	}
}
