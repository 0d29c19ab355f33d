package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"teamchat/internal/apperr"
	"teamchat/internal/logging"
	"teamchat/internal/metrics"
)

// Store is the cache repository slice the engine consumes.
type Store interface {
	Get(ctx context.Context, hash string) (*Entry, error)
	GetMany(ctx context.Context, hashes []string) ([]*Entry, error)
	SetPending(ctx context.Context, hash, rawURL string, now time.Time) error
	SetTerminal(ctx context.Context, e *Entry) error
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}

// PageFetcher is satisfied by *Fetcher.
type PageFetcher interface {
	FetchHTML(ctx context.Context, pageURL string) ([]byte, error)
	FetchBytes(ctx context.Context, resourceURL string) ([]byte, string, error)
}

// BlobStore is the slice of blob storage used to proxy preview images.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data io.Reader) error
	Delete(ctx context.Context, key string) error
}

// A pending row older than this is treated as a crashed fetch and
// re-claimed rather than waited on.
const pendingStale = time.Minute

type Service struct {
	store    Store
	fetcher  PageFetcher
	guard    *Guard
	registry *Registry
	blobs    BlobStore
	ttl      time.Duration
	maxURLs  int

	now func() time.Time
}

func NewService(store Store, fetcher PageFetcher, guard *Guard, registry *Registry, blobs BlobStore, ttl time.Duration, maxURLs int) *Service {
	return &Service{
		store:    store,
		fetcher:  fetcher,
		guard:    guard,
		registry: registry,
		blobs:    blobs,
		ttl:      ttl,
		maxURLs:  maxURLs,
		now:      time.Now,
	}
}

// ProcessMessageBody enriches every URL found in a message body. Runs as a
// background job; failures end up in the cache as terminal states, never
// back at the sender.
func (s *Service) ProcessMessageBody(ctx context.Context, body string) {
	for _, rawURL := range ExtractURLs(body, s.maxURLs) {
		if _, err := s.ProcessURL(ctx, rawURL); err != nil {
			logging.Error().Err(err).Str("url", rawURL).Msg("preview processing failed")
		}
	}
}

// ProcessURL drives the cache state machine for one URL:
// (absent) -> pending -> success | error | no_preview, with expiry looping
// back to pending on next demand.
func (s *Service) ProcessURL(ctx context.Context, rawURL string) (*Entry, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return nil, apperr.Validation("malformed url: %v", err)
	}
	hash := Hash(normalized)
	now := s.now()

	existing, err := s.store.Get(ctx, hash)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}
	if existing != nil && !existing.Expired(now) {
		if existing.Terminal() {
			metrics.PreviewCacheHits.Inc()
			return existing, nil
		}
		// Another fetch is in flight; let it finish unless it looks dead.
		if now.Sub(existing.CreatedAt) < pendingStale {
			return existing, nil
		}
	}

	parsed, err := url.Parse(normalized)
	if err != nil {
		return nil, apperr.Validation("malformed url: %v", err)
	}

	// Unsafe URLs are cached as errors and never fetched.
	if err := s.guard.Validate(ctx, parsed); err != nil {
		entry := s.terminal(hash, normalized, StatusError, now)
		entry.ErrorMessage = fmt.Sprintf("blocked by fetch policy: %v", err)
		metrics.PreviewFetches.WithLabelValues("unsafe").Inc()
		return entry, s.store.SetTerminal(ctx, entry)
	}

	// The pending write, before any network call, is what collapses
	// concurrent requests for the same URL. Advisory: a rare double fetch
	// resolves as last writer wins.
	if err := s.store.SetPending(ctx, hash, normalized, now); err != nil {
		return nil, err
	}

	body, err := s.fetcher.FetchHTML(ctx, normalized)
	if err != nil {
		entry := s.terminal(hash, normalized, StatusError, now)
		entry.ErrorMessage = err.Error()
		metrics.PreviewFetches.WithLabelValues("error").Inc()
		return entry, s.store.SetTerminal(ctx, entry)
	}

	meta, err := ParseMeta(body)
	if err != nil {
		meta = &PageMeta{Meta: map[string]string{}}
	}
	provider := s.registry.Select(parsed)
	data := provider.Extract(meta, parsed)

	if data.Empty() {
		entry := s.terminal(hash, normalized, StatusNoPreview, now)
		metrics.PreviewFetches.WithLabelValues("no_preview").Inc()
		return entry, s.store.SetTerminal(ctx, entry)
	}

	entry := s.terminal(hash, normalized, StatusSuccess, now)
	entry.Title = data.Title
	entry.Description = data.Description
	entry.SiteName = data.SiteName
	entry.FaviconURL = data.FaviconURL
	entry.ImageURL = data.ImageURL
	entry.VideoID = data.VideoID
	entry.VideoProvider = data.VideoProvider

	if data.ImageURL != "" && s.blobs != nil {
		fullKey, thumbKey, err := s.proxyImage(ctx, hash, data.ImageURL)
		if err != nil {
			// Text metadata still makes a useful preview.
			logging.Warn().Err(err).Str("image_url", data.ImageURL).Msg("preview image proxy failed")
		} else {
			entry.ImageFullKey = fullKey
			entry.ImageThumbKey = thumbKey
		}
	}

	metrics.PreviewFetches.WithLabelValues("success").Inc()
	return entry, s.store.SetTerminal(ctx, entry)
}

func (s *Service) terminal(hash, normalized string, status Status, now time.Time) *Entry {
	fetched := now
	expires := now.Add(s.ttl)
	return &Entry{
		URLHash:   hash,
		URL:       normalized,
		Status:    status,
		FetchedAt: &fetched,
		ExpiresAt: &expires,
		CreatedAt: now,
	}
}

// proxyImage stores the preview image through the blob store so clients
// never hit the third-party host directly.
func (s *Service) proxyImage(ctx context.Context, hash, imageURL string) (string, string, error) {
	imgURL, err := url.Parse(imageURL)
	if err != nil {
		return "", "", err
	}
	if err := s.guard.Validate(ctx, imgURL); err != nil {
		return "", "", err
	}

	data, contentType, err := s.fetcher.FetchBytes(ctx, imageURL)
	if err != nil {
		return "", "", err
	}

	fullKey := fmt.Sprintf("preview/%s/full", hash)
	thumbKey := fmt.Sprintf("preview/%s/thumb", hash)
	if err := s.blobs.Put(ctx, fullKey, contentType, bytes.NewReader(data)); err != nil {
		return "", "", err
	}
	if err := s.blobs.Put(ctx, thumbKey, contentType, bytes.NewReader(data)); err != nil {
		s.blobs.Delete(ctx, fullKey)
		return "", "", err
	}
	return fullKey, thumbKey, nil
}

// GetByHash returns a cached entry.
func (s *Service) GetByHash(ctx context.Context, hash string) (*Entry, error) {
	return s.store.Get(ctx, hash)
}

// GetByHashes returns the cached entries that exist among the given hashes.
func (s *Service) GetByHashes(ctx context.Context, hashes []string) ([]*Entry, error) {
	return s.store.GetMany(ctx, hashes)
}

// Sweep deletes entries past expiry, releasing their stored blobs first.
func (s *Service) Sweep(ctx context.Context) {
	keys, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		logging.Error().Err(err).Msg("preview sweep failed")
		return
	}
	for _, key := range keys {
		if s.blobs == nil {
			break
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			logging.Error().Err(err).Str("key", key).Msg("preview blob release failed")
		}
	}
	if len(keys) > 0 {
		logging.Info().Int("blobs", len(keys)).Msg("swept expired link previews")
	}
}

// RunSweeper runs Sweep on the given interval until ctx is canceled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
