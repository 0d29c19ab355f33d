package preview

import "net/url"

// Provider extracts preview data for the URLs it recognizes. Domain-specific
// providers outrank the catch-all scraper; which providers exist is a
// composition-time decision, not a runtime mutation.
type Provider interface {
	Name() string
	Matches(u *url.URL) bool
	Extract(meta *PageMeta, pageURL *url.URL) *Data
}

// Registry is an immutable priority-ordered provider table built once at
// startup. Providers are tried in the order given; the catch-all goes last
// and always matches, so Select never returns nil when it is present.
type Registry struct {
	providers []Provider
}

func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// DefaultRegistry wires the known platform providers above the Open Graph
// catch-all.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&YouTubeProvider{},
		&VimeoProvider{},
		&OpenGraphProvider{},
	)
}

// Select returns the highest-priority provider matching the URL.
func (r *Registry) Select(u *url.URL) Provider {
	for _, p := range r.providers {
		if p.Matches(u) {
			return p
		}
	}
	return nil
}
