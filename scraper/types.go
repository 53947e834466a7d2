package scraper

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoMedia is returned when a page was fetched but no media URL could be found on it.
var ErrNoMedia = errors.New("no media url found")

// Kind tells the downloader how to fetch the media.
type Kind string

const (
	KindFile   Kind = "file"
	KindHLS    Kind = "hls"
	KindStream Kind = "stream"
)

// Page is a fetched document.
type Page struct {
	URL      string
	FinalURL string
	Status   int
	Title    string
	HTML     string
	Cookies  []*http.Cookie
	// Sniffed holds media URLs observed on the network (browser fetches only).
	Sniffed []string
}

// Base returns the URL relative links resolve against.
func (p *Page) Base() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// interstitialTitles are the titles of Cloudflare's challenge pages. Scripts
// such as /cdn-cgi/challenge-platform/ also load on ordinary pages, so a title
// only counts together with a cf-chl- marker.
var interstitialTitles = []string{
	"Just a moment...",
	"Attention Required!",
}

// Blocked reports whether the response looks like a bot wall rather than content.
func (p *Page) Blocked() bool {
	switch p.Status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	if !strings.Contains(p.HTML, "cf-chl-") {
		return false
	}
	for _, t := range interstitialTitles {
		if strings.Contains(p.Title, t) || strings.Contains(p.HTML, "<title>"+t) {
			return true
		}
	}
	return false
}

// Media is a resolved, downloadable video.
type Media struct {
	URL     string
	Kind    Kind
	Title   string
	Referer string
	Headers map[string]string
	Cookies []*http.Cookie
	// Stealth asks the downloader to reuse the TLS-fingerprinting transport.
	Stealth bool
	// Open streams the media directly (KindStream).
	Open func(ctx context.Context) (io.ReadCloser, int64, error)
}

// Request describes what to scrape.
type Request struct {
	URL     string
	Title   string
	Site    string
	Mode    string
	Pattern string
	Headers map[string]string
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*Page, error)
}
