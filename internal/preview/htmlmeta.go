package preview

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// PageMeta is the head metadata pulled out of a fetched page, handed to
// providers for extraction.
type PageMeta struct {
	Title string
	// Meta maps a tag's property (or name) to its content; first
	// occurrence wins, matching how browsers treat duplicated tags.
	Meta map[string]string
	// IconHref is the raw favicon link, possibly relative.
	IconHref string
}

// Get returns the first non-empty value among the given meta keys.
func (p *PageMeta) Get(keys ...string) string {
	for _, key := range keys {
		if v := p.Meta[key]; v != "" {
			return v
		}
	}
	return ""
}

// ParseMeta parses HTML and collects <title>, <meta> and icon <link> tags.
// Parsing never fails on malformed markup; x/net/html recovers the way
// browsers do.
func ParseMeta(body []byte) (*PageMeta, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	meta := &PageMeta{Meta: make(map[string]string)}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if meta.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				content := attr(n, "content")
				if key != "" && content != "" {
					key = strings.ToLower(key)
					if _, exists := meta.Meta[key]; !exists {
						meta.Meta[key] = strings.TrimSpace(content)
					}
				}
			case "link":
				rel := strings.ToLower(attr(n, "rel"))
				if meta.IconHref == "" && strings.Contains(rel, "icon") {
					meta.IconHref = attr(n, "href")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// resolveRef makes a possibly relative reference absolute against the page
// URL. Returns "" when the reference cannot be resolved.
func resolveRef(pageURL *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := pageURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
