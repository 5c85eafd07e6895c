// Package youtube resolves video identifiers and fetches caption tracks
// from YouTube watch pages.
package youtube

import (
	"net/url"
	"regexp"
	"strings"
)

// idPattern matches the characters YouTube uses in video identifiers.
const idPattern = `([A-Za-z0-9_-]+)`

// urlRule is one URL shape that can carry a video ID.
type urlRule struct {
	name    string
	pattern *regexp.Regexp
}

// urlRules are checked in order; the first match wins.
// Short links come first, then the long-form variants. The watch rule
// covers every youtube.com subdomain (www, m, music).
var urlRules = []urlRule{
	{"short", regexp.MustCompile(`(?:^|//|\.)youtu\.be/` + idPattern)},
	{"watch", regexp.MustCompile(`(?:^|//|\.)youtube\.com/watch\?(?:[^#\s]*&)?v=` + idPattern)},
	{"embed", regexp.MustCompile(`youtube(?:-nocookie)?\.com/embed/` + idPattern)},
	{"v", regexp.MustCompile(`youtube\.com/v/` + idPattern)},
	{"live", regexp.MustCompile(`youtube\.com/live/` + idPattern)},
	{"shorts", regexp.MustCompile(`youtube\.com/shorts/` + idPattern)},
}

// ResolveVideoID extracts the canonical video ID from a YouTube URL.
// Returns false if no known URL shape matches.
func ResolveVideoID(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	for _, rule := range urlRules {
		if m := rule.pattern.FindStringSubmatch(rawURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// WatchURL returns the canonical watch page URL for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}
