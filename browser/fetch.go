package browser

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PageSnapshot is what a rendered page leaves behind for extraction and download.
type PageSnapshot struct {
	URL     string
	Title   string
	HTML    string
	Cookies []*http.Cookie
	// Media lists media URLs seen on the network, in the order they were requested.
	Media []string
}

var mediaURLRe = regexp.MustCompile(`(?i)\.(mp4|m3u8|webm|mkv|mov)(\?|#|$)`)

// IsMediaURL reports whether a request URL looks like a video file or playlist.
func IsMediaURL(u string) bool {
	return mediaURLRe.MatchString(u)
}

// IsMediaType reports whether a response Content-Type is a video or an HLS playlist.
func IsMediaType(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return strings.HasPrefix(mt, "video/") || strings.HasSuffix(mt, "mpegurl")
}

// Fetch renders url, lets it settle for settle, pokes any <video> into playing
// and returns the document together with the media requests it made.
func (sb *StealthBrowser) Fetch(ctx context.Context, url string, headers map[string]string, settle time.Duration) (*PageSnapshot, error) {
	page, err := sb.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	page = page.Context(ctx)

	if len(headers) > 0 {
		list := make([]string, 0, len(headers)*2)
		for k, v := range headers {
			list = append(list, k, v)
		}
		cleanup, err := page.SetExtraHeaders(list)
		if err != nil {
			return nil, errors.Wrap(err, "failed to set headers")
		}
		defer cleanup()
	}

	sniffer := newMediaSniffer()
	router := page.HijackRequests()
	defer router.Stop()

	router.MustAdd("*", func(h *rod.Hijack) {
		u := h.Request.URL().String()
		if h.Request.Type() == proto.NetworkResourceTypeMedia || IsMediaURL(u) {
			sniffer.add(u)
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	// URLs without a telling extension are caught by their response type.
	eventCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	go page.Context(eventCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response == nil || !strings.HasPrefix(e.Response.URL, "http") {
			return
		}
		if e.Type == proto.NetworkResourceTypeMedia || IsMediaType(e.Response.MIMEType) {
			sniffer.add(e.Response.URL)
		}
	})()

	logrus.Infof("Navigating to %s", url)
	if err := page.Navigate(url); err != nil {
		return nil, errors.Wrap(err, "failed to navigate")
	}
	if err := page.WaitLoad(); err != nil {
		return nil, errors.Wrap(err, "failed to wait for page load")
	}

	sleep(ctx, settle)
	if _, err := page.Eval(playVideos); err != nil {
		logrus.Debugf("Failed to start playback: %v", err)
	}
	sleep(ctx, settle)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get page HTML")
	}

	info, err := page.Info()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get page info")
	}

	rodCookies, err := page.Cookies([]string{info.URL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cookies")
	}

	snap := &PageSnapshot{
		URL:     info.URL,
		Title:   info.Title,
		HTML:    html,
		Cookies: ToHTTPCookies(rodCookies),
		Media:   sniffer.list(),
	}
	logrus.Infof("Rendered %s: title=%q, html=%d bytes, sniffed media=%d",
		snap.URL, snap.Title, len(snap.HTML), len(snap.Media))
	return snap, nil
}

// ToHTTPCookies converts browser cookies so HTTP downloads can reuse the session.
func ToHTTPCookies(cookies []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = c.Expires.Time()
		}
		out = append(out, hc)
	}
	return out
}

type mediaSniffer struct {
	mu   sync.Mutex
	seen map[string]bool
	urls []string
}

func newMediaSniffer() *mediaSniffer {
	return &mediaSniffer{seen: make(map[string]bool)}
}

func (s *mediaSniffer) add(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[u] {
		return
	}
	s.seen[u] = true
	s.urls = append(s.urls, u)
	logrus.Infof("Found media request: %s", u)
}

func (s *mediaSniffer) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

const playVideos = `() => {
	for (const v of document.querySelectorAll('video')) {
		v.muted = true;
		v.play().catch(() => {});
	}
}`
