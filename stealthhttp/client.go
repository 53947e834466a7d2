// Package stealthhttp wraps tls-client so requests carry a Chrome TLS
// fingerprint (JA3) and header order, which gets past most bot walls that
// only inspect the handshake.
package stealthhttp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/pkg/errors"
)

// Options configures the client.
type Options struct {
	ProxyURL       string
	TimeoutSeconds int
}

// Response is the subset of the upstream response callers need.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	FinalURL      string
	Body          io.ReadCloser
}

// Client impersonates Chrome 131 and keeps cookies between requests.
type Client struct {
	client tls_client.HttpClient
	jar    tls_client.CookieJar
	opts   Options
	// headerTimeout bounds the wait for response headers on clients
	// without a total timeout.
	headerTimeout time.Duration
}

// New builds a client. A zero timeout means 60 seconds.
func New(opts Options) (*Client, error) {
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 60
	}

	jar := tls_client.NewCookieJar()
	client, err := newHTTPClient(opts.ProxyURL, jar, opts.TimeoutSeconds)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, jar: jar, opts: opts}, nil
}

// Streaming returns a client sharing c's cookie jar and fingerprint with no
// total timeout, for transfers that outlive the page timeout. Only the wait
// for response headers is bounded; the body runs until ctx is done.
func (c *Client) Streaming() (*Client, error) {
	client, err := newHTTPClient(c.opts.ProxyURL, c.jar, 0)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:        client,
		jar:           c.jar,
		opts:          c.opts,
		headerTimeout: time.Duration(c.opts.TimeoutSeconds) * time.Second,
	}, nil
}

func newHTTPClient(proxyURL string, jar tls_client.CookieJar, timeoutSeconds int) (tls_client.HttpClient, error) {
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(timeoutSeconds),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithCookieJar(jar),
	}
	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, errors.Wrap(err, "tls-client init")
	}
	return client, nil
}

// Get issues a GET with Chrome-like header order. The caller closes Body.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, cookies []*http.Cookie) (*Response, error) {
	req, err := fhttp.NewRequest(fhttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	cancel := context.CancelFunc(func() {})
	var timer *time.Timer
	if c.headerTimeout > 0 {
		ctx, cancel = context.WithCancel(ctx)
		timer = time.AfterFunc(c.headerTimeout, cancel)
	}
	req = req.WithContext(ctx)

	for k, v := range ChromeHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(&fhttp.Cookie{Name: ck.Name, Value: ck.Value})
	}

	req.Header[fhttp.HeaderOrderKey] = []string{
		"accept",
		"accept-language",
		"accept-encoding",
		"range",
		"referer",
		"cookie",
		"user-agent",
	}

	resp, err := c.client.Do(req)
	if timer != nil && !timer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, errors.Errorf("tls request: no response headers within %s", c.headerTimeout)
	}
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "tls request")
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        http.Header(resp.Header),
		ContentLength: resp.ContentLength,
		FinalURL:      finalURL,
		Body:          &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// cancelOnClose releases the request context once the body is done with.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Cookies returns the jar's cookies for rawURL as net/http cookies.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var out []*http.Cookie
	for _, ck := range c.jar.Cookies(u) {
		out = append(out, &http.Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: ck.Domain,
			Path:   ck.Path,
		})
	}
	return out
}

// ChromeHeaders returns the navigation headers Chrome sends for a top-level document.
func ChromeHeaders() map[string]string {
	return map[string]string{
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.9",
		"accept-encoding": "gzip, deflate, br",
		"user-agent":      UserAgent,
	}
}

// UserAgent matches the tls-client Chrome 131 profile.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
