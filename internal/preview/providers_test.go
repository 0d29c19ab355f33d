package preview

import (
	"net/url"
	"testing"
)

func TestYouTubeVideoID(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                "dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=abc123":        "abc123",
		"https://www.youtube.com/shorts/xyz789":       "xyz789",
		"https://www.youtube.com/embed/xyz789":        "xyz789",
		"https://www.youtube.com/feed/subscriptions":  "",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got := youtubeVideoID(u); got != want {
			t.Errorf("youtubeVideoID(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestRegistrySelect(t *testing.T) {
	registry := DefaultRegistry()
	cases := map[string]string{
		"https://www.youtube.com/watch?v=abc": "youtube",
		"https://youtu.be/abc":                "youtube",
		"https://vimeo.com/12345":             "vimeo",
		"https://example.com/blog/post":       "opengraph",
	}
	for raw, want := range cases {
		u, _ := url.Parse(raw)
		if got := registry.Select(u).Name(); got != want {
			t.Errorf("Select(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestVimeoExtract(t *testing.T) {
	u, _ := url.Parse("https://vimeo.com/348493721")
	meta := &PageMeta{
		Title: "A film",
		Meta:  map[string]string{"og:title": "A film", "og:description": "About something"},
	}
	p := &VimeoProvider{}
	data := p.Extract(meta, u)
	if data.VideoID != "348493721" || data.VideoProvider != "vimeo" {
		t.Fatalf("unexpected data %+v", data)
	}
	if data.SiteName != "Vimeo" {
		t.Errorf("site name = %q", data.SiteName)
	}
}

func TestOpenGraphFallbackChain(t *testing.T) {
	u, _ := url.Parse("https://example.com/post")
	p := &OpenGraphProvider{}

	// Twitter-card tags fill in for missing Open Graph ones.
	data := p.Extract(&PageMeta{
		Title: "Plain title",
		Meta: map[string]string{
			"twitter:title":       "Card title",
			"twitter:description": "Card description",
		},
	}, u)
	if data.Title != "Card title" || data.Description != "Card description" {
		t.Fatalf("unexpected data %+v", data)
	}

	// Plain <title> is the last resort.
	data = p.Extract(&PageMeta{Title: "Plain title", Meta: map[string]string{}}, u)
	if data.Title != "Plain title" {
		t.Fatalf("unexpected data %+v", data)
	}

	// Relative image and default favicon resolve against the page URL.
	data = p.Extract(&PageMeta{
		Title: "t",
		Meta:  map[string]string{"og:image": "/img/cover.png"},
	}, u)
	if data.ImageURL != "https://example.com/img/cover.png" {
		t.Errorf("image url = %q", data.ImageURL)
	}
	if data.FaviconURL != "https://example.com/favicon.ico" {
		t.Errorf("favicon url = %q", data.FaviconURL)
	}
}
