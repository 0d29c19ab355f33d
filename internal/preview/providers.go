package preview

import (
	"net/url"
	"strings"
)

// YouTubeProvider recognizes watch, short-link, shorts and embed URLs and
// attaches the embeddable video id alongside the scraped metadata.
type YouTubeProvider struct{}

func (p *YouTubeProvider) Name() string { return "youtube" }

func (p *YouTubeProvider) Matches(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	switch host {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be":
		return true
	}
	return false
}

func (p *YouTubeProvider) Extract(meta *PageMeta, pageURL *url.URL) *Data {
	videoID := youtubeVideoID(pageURL)
	data := scrape(meta, pageURL)
	if data.SiteName == "" {
		data.SiteName = "YouTube"
	}
	if videoID != "" {
		data.VideoID = videoID
		data.VideoProvider = "youtube"
	}
	return data
}

func youtubeVideoID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	if host == "youtu.be" {
		if len(segments) > 0 {
			return segments[0]
		}
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if len(segments) == 2 && (segments[0] == "shorts" || segments[0] == "embed") {
		return segments[1]
	}
	return ""
}

// VimeoProvider recognizes vimeo video pages by their numeric path id.
type VimeoProvider struct{}

func (p *VimeoProvider) Name() string { return "vimeo" }

func (p *VimeoProvider) Matches(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "vimeo.com" || host == "www.vimeo.com" || host == "player.vimeo.com"
}

func (p *VimeoProvider) Extract(meta *PageMeta, pageURL *url.URL) *Data {
	data := scrape(meta, pageURL)
	if data.SiteName == "" {
		data.SiteName = "Vimeo"
	}
	for _, segment := range strings.Split(strings.Trim(pageURL.Path, "/"), "/") {
		if segment != "" && isDigits(segment) {
			data.VideoID = segment
			data.VideoProvider = "vimeo"
			break
		}
	}
	return data
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// OpenGraphProvider is the catch-all: Open Graph tags first, Twitter-card
// tags second, plain <title> and description meta last. Matches every URL.
type OpenGraphProvider struct{}

func (p *OpenGraphProvider) Name() string { return "opengraph" }

func (p *OpenGraphProvider) Matches(u *url.URL) bool { return true }

func (p *OpenGraphProvider) Extract(meta *PageMeta, pageURL *url.URL) *Data {
	return scrape(meta, pageURL)
}

func scrape(meta *PageMeta, pageURL *url.URL) *Data {
	if meta == nil {
		return &Data{}
	}
	data := &Data{
		Title:       meta.Get("og:title", "twitter:title"),
		Description: meta.Get("og:description", "twitter:description", "description"),
		SiteName:    meta.Get("og:site_name"),
		ImageURL:    resolveRef(pageURL, meta.Get("og:image", "og:image:url", "twitter:image")),
		FaviconURL:  resolveRef(pageURL, meta.IconHref),
	}
	if data.Title == "" {
		data.Title = meta.Title
	}
	if data.FaviconURL == "" {
		data.FaviconURL = resolveRef(pageURL, "/favicon.ico")
	}
	return data
}
