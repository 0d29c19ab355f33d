package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Tracking parameters stripped during normalization so the same shared link
// hashes identically regardless of where it was copied from.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"ref_src": true,
	"_hsenc":  true,
	"_hsmi":   true,
}

// Normalize canonicalizes a URL for cache keying: lowercased scheme/host,
// default ports dropped, tracking query parameters and the fragment
// stripped, remaining parameters sorted, trailing slash removed.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	if len(q) == 0 {
		u.RawQuery = ""
	} else {
		// Encode sorts keys, so equivalent URLs hash identically.
		u.RawQuery = q.Encode()
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// Hash returns the stable cache key for a normalized URL.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURLs pulls up to max HTTP(S) URLs out of a message body, in order
// of appearance, deduplicated, with trailing punctuation trimmed.
func ExtractURLs(body string, max int) []string {
	if body == "" || max <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, match := range urlPattern.FindAllString(body, -1) {
		match = strings.TrimRight(match, ".,;:!?)]}")
		if match == "" || seen[match] {
			continue
		}
		seen[match] = true
		out = append(out, match)
		if len(out) == max {
			break
		}
	}
	return out
}
