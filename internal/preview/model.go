package preview

import "time"

type Status string

const (
	// StatusPending is written before any network call so concurrent
	// requests for the same URL collapse onto one in-flight fetch.
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	// StatusNoPreview means the URL was reachable but had nothing worth
	// showing.
	StatusNoPreview Status = "no_preview"
)

// Entry is one cached preview, keyed by the normalized-URL hash.
type Entry struct {
	URLHash       string     `json:"url_hash"`
	URL           string     `json:"url"`
	Status        Status     `json:"status"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	SiteName      string     `json:"site_name,omitempty"`
	FaviconURL    string     `json:"favicon_url,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	ImageFullKey  string     `json:"image_full_key,omitempty"`
	ImageThumbKey string     `json:"image_thumb_key,omitempty"`
	VideoID       string     `json:"video_id,omitempty"`
	VideoProvider string     `json:"video_provider,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Expired reports whether the entry's TTL has passed.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Terminal reports whether the entry reached a final state.
func (e *Entry) Terminal() bool { return e.Status != StatusPending }

// Data is what a provider extracts from a fetched page.
type Data struct {
	Title         string
	Description   string
	SiteName      string
	FaviconURL    string
	ImageURL      string
	VideoID       string
	VideoProvider string
}

// Empty reports whether the extraction found nothing worth showing.
func (d *Data) Empty() bool {
	return d == nil || (d.Title == "" && d.Description == "" && d.ImageURL == "")
}
