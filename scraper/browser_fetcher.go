package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/reelpost/reelpost/browser"
)

// BrowserFetcher renders pages in a stealth Chrome launched for each fetch.
type BrowserFetcher struct {
	opts   browser.Options
	settle time.Duration
}

// NewBrowserFetcher returns a fetcher; settle is how long the page may run scripts
// before and after playback is started.
func NewBrowserFetcher(opts browser.Options, settle time.Duration) *BrowserFetcher {
	return &BrowserFetcher{opts: opts, settle: settle}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Page, error) {
	b, err := browser.NewCleanBrowser(f.opts)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	snap, err := b.Fetch(ctx, url, headers, f.settle)
	if err != nil {
		return nil, err
	}

	return &Page{
		URL:      url,
		FinalURL: snap.URL,
		Status:   http.StatusOK,
		Title:    snap.Title,
		HTML:     snap.HTML,
		Cookies:  snap.Cookies,
		Sniffed:  snap.Media,
	}, nil
}
