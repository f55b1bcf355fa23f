package common

import (
	"fmt"
	"net/url"
	"strings"
)

// SiteRoot returns the scheme://host origin of rawURL.
func SiteRoot(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q has no scheme or host", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// ResolveURL makes href absolute. Relative hrefs are resolved against the
// site root of baseURL, which is how board platforms emit their detail
// links. Already-absolute hrefs pass through untouched.
func ResolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}

	root, err := SiteRoot(baseURL)
	if err != nil {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return root + href
}
