package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/browser"
	"github.com/reelpost/reelpost/configs"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/sirupsen/logrus"
)

// Options configures the fetchers a Resolver builds.
type Options struct {
	ProxyURL   string
	Headless   bool
	BrowserBin string
	Timeout    time.Duration
	// Settle is how long the browser lets a page run before snapshotting it.
	Settle time.Duration
}

// Resolver turns a page URL into downloadable media.
type Resolver struct {
	fetchers map[string]Fetcher
}

// NewResolver builds one fetcher per mode. The stealth client is shared so
// cookies earned on the page are reused for the download.
func NewResolver(opts Options, stealthClient *stealthhttp.Client) (*Resolver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 5 * time.Second
	}

	httpFetcher, err := NewHTTPFetcher(opts.ProxyURL, opts.Timeout)
	if err != nil {
		return nil, err
	}

	r := &Resolver{fetchers: map[string]Fetcher{
		configs.FetchHTTP: httpFetcher,
		configs.FetchBrowser: NewBrowserFetcher(browser.Options{
			Headless: opts.Headless,
			ProxyURL: opts.ProxyURL,
			Bin:      opts.BrowserBin,
		}, opts.Settle),
	}}
	if stealthClient != nil {
		r.fetchers[configs.FetchStealth] = NewStealthFetcher(stealthClient)
	}
	return r, nil
}

// NewResolverWith builds a Resolver from explicit fetchers keyed by fetch mode.
func NewResolverWith(fetchers map[string]Fetcher) *Resolver {
	return &Resolver{fetchers: fetchers}
}

// Resolve finds the media for req. A named or matching site takes precedence
// over generic page extraction.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Media, error) {
	media, err := r.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if t := strings.TrimSpace(req.Title); t != "" {
		media.Title = t
	}
	if media.Title == "" {
		media.Title = "video"
	}
	if media.Headers == nil {
		media.Headers = map[string]string{}
	}
	for k, v := range req.Headers {
		media.Headers[k] = v
	}
	if _, ok := media.Headers["User-Agent"]; !ok {
		media.Headers["User-Agent"] = stealthhttp.UserAgent
	}
	return media, nil
}

func (r *Resolver) resolve(ctx context.Context, req Request) (*Media, error) {
	if site, ok := r.site(req); ok {
		logrus.Infof("Resolving with site extractor: site=%s, url=%s", site.Name(), req.URL)
		return site.Resolve(ctx, req)
	}

	mode := strings.ToLower(req.Mode)
	if mode == "" {
		mode = configs.FetchAuto
	}
	if mode != configs.FetchAuto {
		return r.withMode(ctx, mode, req)
	}

	var lastErr error
	for _, m := range []string{configs.FetchHTTP, configs.FetchStealth, configs.FetchBrowser} {
		if _, ok := r.fetchers[m]; !ok {
			continue
		}
		media, err := r.withMode(ctx, m, req)
		if err == nil {
			return media, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logrus.Warnf("Fetch mode %s gave no media, falling back: %v", m, err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no fetchers configured")
	}
	return nil, lastErr
}

func (r *Resolver) site(req Request) (Site, bool) {
	name := strings.ToLower(strings.TrimSpace(req.Site))
	switch name {
	case "generic":
		return nil, false
	case "":
		return ForURL(req.URL)
	default:
		return Get(name)
	}
}

func (r *Resolver) withMode(ctx context.Context, mode string, req Request) (*Media, error) {
	f, ok := r.fetchers[mode]
	if !ok {
		return nil, errors.Errorf("fetch mode %q is not available", mode)
	}

	page, err := f.Fetch(ctx, req.URL, req.Headers)
	if err != nil {
		return nil, err
	}

	media, err := Extract(page, req.Pattern)
	if errors.Is(err, ErrNoMedia) {
		if page.Blocked() {
			return nil, errors.Errorf("page blocked: status=%d", page.Status)
		}
		media, err = r.followIframe(ctx, f, page, req)
	}
	if err != nil {
		return nil, err
	}
	media.Stealth = mode != configs.FetchHTTP
	if media.Title == "" {
		media.Title = page.Title
	}
	logrus.Infof("Media found: mode=%s, kind=%s, url=%s", mode, media.Kind, media.URL)
	return media, nil
}

// followIframe looks one level into an embedded player.
func (r *Resolver) followIframe(ctx context.Context, f Fetcher, page *Page, req Request) (*Media, error) {
	src := FirstIframe(page)
	if src == "" {
		return nil, ErrNoMedia
	}
	logrus.Infof("No media on page, following iframe: %s", src)

	headers := map[string]string{"referer": page.Base()}
	for k, v := range req.Headers {
		headers[k] = v
	}
	inner, err := f.Fetch(ctx, src, headers)
	if err != nil {
		return nil, err
	}
	media, err := Extract(inner, req.Pattern)
	if err != nil {
		if errors.Is(err, ErrNoMedia) && inner.Blocked() {
			return nil, errors.Errorf("embedded player blocked: status=%d", inner.Status)
		}
		return nil, err
	}
	if media.Title == "" || media.Title == inner.Title {
		media.Title = page.Title
	}
	return media, nil
}
