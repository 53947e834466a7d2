package scraper

import (
	"context"
	"net/url"
	"strings"
)

// Site resolves media for hosts that need more than generic page extraction.
type Site interface {
	Name() string
	Match(u *url.URL) bool
	Resolve(ctx context.Context, req Request) (*Media, error)
}

var registry = map[string]Site{}

// Register adds a site; later registrations with the same name replace earlier ones.
func Register(s Site) {
	registry[strings.ToLower(s.Name())] = s
}

// Get looks a site up by name.
func Get(name string) (Site, bool) {
	s, ok := registry[strings.ToLower(name)]
	return s, ok
}

// ForURL returns the first registered site matching rawURL.
func ForURL(rawURL string) (Site, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	for _, s := range registry {
		if s.Match(u) {
			return s, true
		}
	}
	return nil, false
}

// hostIs reports whether host is domain or a subdomain of it.
func hostIs(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
