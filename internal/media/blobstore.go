package media

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"teamchat/internal/apperr"
)

// BlobStore is the opaque binary storage collaborator. The server never
// processes image bytes itself; clients compress and upload directly against
// signed URLs.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	SignedUploadURL(key string, ttl time.Duration) (string, error)
	SignedGetURL(key string, ttl time.Duration) (string, error)
}

// HTTPStore talks to a blob storage HTTP API using HMAC-signed URLs, in the
// style of hosted image services: every URL carries an expiry and a
// signature over (key, expiry).
type HTTPStore struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

func NewHTTPStore(baseURL, key, secret string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		key:     key,
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	fmt.Fprintf(mac, "%s:%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *HTTPStore) signedURL(key string, ttl time.Duration, upload bool) string {
	expires := time.Now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("api_key", s.key)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.sign(key, expires))
	path := "/blobs/"
	if upload {
		path = "/upload/"
	}
	return s.baseURL + path + url.PathEscape(key) + "?" + q.Encode()
}

func (s *HTTPStore) SignedUploadURL(key string, ttl time.Duration) (string, error) {
	return s.signedURL(key, ttl, true), nil
}

func (s *HTTPStore) SignedGetURL(key string, ttl time.Duration) (string, error) {
	return s.signedURL(key, ttl, false), nil
}

func (s *HTTPStore) Put(ctx context.Context, key, contentType string, data io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.signedURL(key, time.Minute, true), data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("blob upload failed: %s", res.Status)
	}
	return nil
}

func (s *HTTPStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.signedURL(key, time.Minute, false), nil)
	if err != nil {
		return nil, "", err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil, "", apperr.NotFound("blob")
	}
	if res.StatusCode >= 300 {
		res.Body.Close()
		return nil, "", fmt.Errorf("blob fetch failed: %s", res.Status)
	}
	return res.Body, res.Header.Get("Content-Type"), nil
}

func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.signedURL(key, time.Minute, false), nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("blob delete failed: %s", res.Status)
	}
	return nil
}

// MemoryStore keeps blobs in memory. Used in tests and as the dev fallback
// when no blob backend is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = memoryBlob{data: b, contentType: contentType}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", apperr.NotFound("blob")
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) SignedUploadURL(key string, ttl time.Duration) (string, error) {
	return "/upload/" + url.PathEscape(key), nil
}

func (s *MemoryStore) SignedGetURL(key string, ttl time.Duration) (string, error) {
	return "/blobs/" + url.PathEscape(key), nil
}

// Len reports the stored blob count.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
