package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/sirupsen/logrus"
)

const maxPageBytes = 16 << 20

// HTTPFetcher fetches pages with the standard library client and browser headers.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher; proxyURL may be empty.
func NewHTTPFetcher(proxyURL string, timeout time.Duration) (*HTTPFetcher, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid proxy url")
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// Fetch GETs url. Non-2xx statuses are returned on the page, not as errors,
// so callers can tell a bot wall from a dead link.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Page, error) {
	logrus.Infof("Fetching page over HTTP: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	for k, v := range stealthhttp.ChromeHeaders() {
		if k == "accept-encoding" {
			// let net/http negotiate gzip so it can decode it
			continue
		}
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
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
		FinalURL: resp.Request.URL.String(),
		Status:   resp.StatusCode,
		HTML:     string(body),
		Cookies:  resp.Cookies(),
	}
	page.Title = PageTitle(page)
	logrus.Debugf("HTTP fetch done: status=%d, bytes=%d", page.Status, len(body))
	return page, nil
}
