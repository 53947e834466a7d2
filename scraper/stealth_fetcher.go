package scraper

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/sirupsen/logrus"
)

// StealthFetcher fetches pages through the Chrome-fingerprinted TLS client.
type StealthFetcher struct {
	client *stealthhttp.Client
}

// NewStealthFetcher wraps an existing stealth client so its cookies can be shared with downloads.
func NewStealthFetcher(client *stealthhttp.Client) *StealthFetcher {
	return &StealthFetcher{client: client}
}

// Fetch GETs url; like HTTPFetcher, statuses are reported on the page.
func (f *StealthFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Page, error) {
	logrus.Infof("Fetching page with TLS fingerprint: %s", url)

	resp, err := f.client.Get(ctx, url, headers, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch page")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read page")
	}

	page := &Page{
		URL:      url,
		FinalURL: resp.FinalURL,
		Status:   resp.StatusCode,
		HTML:     string(body),
		Cookies:  f.client.Cookies(resp.FinalURL),
	}
	page.Title = PageTitle(page)
	logrus.Debugf("Stealth fetch done: status=%d, bytes=%d", page.Status, len(body))
	return page, nil
}
