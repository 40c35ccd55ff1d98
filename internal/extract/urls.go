package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const retailerBaseURL = "https://www.barnesandnoble.com"

// resolveImageURL makes an image reference absolute. Protocol-relative URLs get
// https, relative paths are resolved against sourceURL and anything that cannot
// be resolved is returned unchanged.
func resolveImageURL(raw, sourceURL string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(strings.ToLower(raw), "http"):
		return raw
	case sourceURL == "":
		return raw
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// retailerImageURL applies the retailer's CDN conventions before falling back
// to generic resolution.
func retailerImageURL(raw, sourceURL string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return retailerBaseURL + raw
	}
	return resolveImageURL(raw, sourceURL)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
