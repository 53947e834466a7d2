package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/configs"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages map[string]*Page
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string, _ map[string]string) (*Page, error) {
	f.calls = append(f.calls, u)
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pages[u]
	if !ok {
		return &Page{URL: u, FinalURL: u, Status: http.StatusNotFound}, nil
	}
	return p, nil
}

const watchURL = "https://site.test/watch/1"

func TestResolveAutoFallsBackOnChallenge(t *testing.T) {
	plain := &fakeFetcher{pages: map[string]*Page{
		watchURL: {URL: watchURL, Status: 503, HTML: "Just a moment..."},
	}}
	stealth := &fakeFetcher{pages: map[string]*Page{
		watchURL: {URL: watchURL, Status: 200, Title: "Clip", HTML: `<video src="/v.mp4"></video>`},
	}}
	browserF := &fakeFetcher{}

	r := NewResolverWith(map[string]Fetcher{
		configs.FetchHTTP:    plain,
		configs.FetchStealth: stealth,
		configs.FetchBrowser: browserF,
	})
	media, err := r.Resolve(context.Background(), Request{URL: watchURL, Site: "generic"})
	require.NoError(t, err)

	assert.Equal(t, "https://site.test/v.mp4", media.URL)
	assert.True(t, media.Stealth)
	assert.Equal(t, "Clip", media.Title)
	assert.NotEmpty(t, media.Headers["User-Agent"])
	assert.Empty(t, browserF.calls)
}

func TestResolveAutoReachesBrowserWhenNoMedia(t *testing.T) {
	empty := &Page{URL: watchURL, Status: 200, HTML: "<p>js app</p>"}
	r := NewResolverWith(map[string]Fetcher{
		configs.FetchHTTP:    &fakeFetcher{pages: map[string]*Page{watchURL: empty}},
		configs.FetchStealth: &fakeFetcher{pages: map[string]*Page{watchURL: empty}},
		configs.FetchBrowser: &fakeFetcher{pages: map[string]*Page{watchURL: {
			URL: watchURL, Status: 200, Title: "Rendered", Sniffed: []string{"https://cdn.test/a.m3u8"},
		}}},
	})
	media, err := r.Resolve(context.Background(), Request{URL: watchURL, Site: "generic", Title: "Given"})
	require.NoError(t, err)
	assert.Equal(t, KindHLS, media.Kind)
	assert.Equal(t, "Given", media.Title)
}

func TestResolveKeepsMediaOnPagesWithCaptchaScripts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cf":
			_, _ = w.Write([]byte(`<title>Clip</title><video src="/v.mp4"></video>` +
				`<script src="/cdn-cgi/challenge-platform/scripts/jsd/main.js"></script>`))
		case "/comments":
			_, _ = w.Write([]byte(`<title>Clip</title><video src="/v.mp4"></video>` +
				`<form><div class="g-recaptcha" data-sitekey="k"></div></form>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	plain, err := NewHTTPFetcher("", 5*time.Second)
	require.NoError(t, err)

	for _, path := range []string{"/cf", "/comments"} {
		t.Run(path, func(t *testing.T) {
			stealth, browserF := &fakeFetcher{}, &fakeFetcher{}
			r := NewResolverWith(map[string]Fetcher{
				configs.FetchHTTP:    plain,
				configs.FetchStealth: stealth,
				configs.FetchBrowser: browserF,
			})
			media, err := r.Resolve(context.Background(), Request{URL: srv.URL + path, Site: "generic", Mode: configs.FetchAuto})
			require.NoError(t, err)
			assert.Equal(t, srv.URL+"/v.mp4", media.URL)
			assert.False(t, media.Stealth)
			assert.Empty(t, stealth.calls)
			assert.Empty(t, browserF.calls)
		})
	}
}

func TestResolveBlockedPageWithoutMedia(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*Page{
		watchURL: {URL: watchURL, Status: 403, HTML: "<p>denied</p>"},
	}}
	r := NewResolverWith(map[string]Fetcher{configs.FetchHTTP: f})

	_, err := r.Resolve(context.Background(), Request{URL: watchURL, Site: "generic", Mode: configs.FetchHTTP})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestResolveExplicitModeDoesNotFallBack(t *testing.T) {
	plain := &fakeFetcher{err: errors.New("boom")}
	stealth := &fakeFetcher{}
	r := NewResolverWith(map[string]Fetcher{configs.FetchHTTP: plain, configs.FetchStealth: stealth})

	_, err := r.Resolve(context.Background(), Request{URL: watchURL, Site: "generic", Mode: configs.FetchHTTP})
	assert.Error(t, err)
	assert.Empty(t, stealth.calls)
}

func TestResolveFollowsIframe(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*Page{
		watchURL:                  {URL: watchURL, Status: 200, Title: "Outer", HTML: `<iframe src="https://player.test/e/1"></iframe>`},
		"https://player.test/e/1": {URL: "https://player.test/e/1", Status: 200, Title: "Player", HTML: `<video><source src="/f.mp4"></video>`},
	}}
	r := NewResolverWith(map[string]Fetcher{configs.FetchHTTP: f})

	media, err := r.Resolve(context.Background(), Request{URL: watchURL, Site: "generic", Mode: configs.FetchHTTP})
	require.NoError(t, err)
	assert.Equal(t, "https://player.test/f.mp4", media.URL)
	assert.Equal(t, "https://player.test/e/1", media.Referer)
	assert.Equal(t, "Outer", media.Title)
	assert.False(t, media.Stealth)
}

func TestResolveUnknownMode(t *testing.T) {
	r := NewResolverWith(map[string]Fetcher{})
	_, err := r.Resolve(context.Background(), Request{URL: watchURL, Site: "generic", Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

type stubSite struct{}

func (stubSite) Name() string          { return "StubTube" }
func (stubSite) Match(u *url.URL) bool { return hostIs(u.Host, "stub.test") }
func (stubSite) Resolve(context.Context, Request) (*Media, error) {
	return &Media{URL: "https://stub.test/direct.mp4", Kind: KindFile}, nil
}

func TestRegistry(t *testing.T) {
	Register(stubSite{})

	s, ok := Get("stubtube")
	require.True(t, ok)
	assert.Equal(t, "StubTube", s.Name())

	s, ok = ForURL("https://www.stub.test/v/1")
	require.True(t, ok)
	assert.Equal(t, "StubTube", s.Name())

	s, ok = ForURL("https://youtu.be/dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, "youtube", s.Name())

	_, ok = ForURL("https://notstub.test/")
	assert.False(t, ok)

	r := NewResolverWith(map[string]Fetcher{})
	media, err := r.Resolve(context.Background(), Request{URL: "https://stub.test/v/1"})
	require.NoError(t, err)
	assert.Equal(t, "video", media.Title)
}

func TestHTTPFetcher(t *testing.T) {
	var gotUA, gotRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		gotRef = r.Header.Get("Referer")
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
		_, _ = w.Write([]byte(`<title>Hello</title>`))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher("", 5*time.Second)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), srv.URL+"/old", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", page.FinalURL)

	page, err = f.Fetch(context.Background(), srv.URL+"/new", map[string]string{"Referer": "https://ref.test/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.Equal(t, "Hello", page.Title)
	assert.Contains(t, gotUA, "Chrome/131")
	assert.Equal(t, "https://ref.test/", gotRef)
	require.Len(t, page.Cookies, 1)
	assert.Equal(t, "sid", page.Cookies[0].Name)
}

func TestStealthFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/watch", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "ok", Path: "/"})
		_, _ = w.Write([]byte(`<title>Stealthy</title><video src="/v.mp4"></video>`))
	}))
	defer srv.Close()

	client, err := stealthhttp.New(stealthhttp.Options{TimeoutSeconds: 5})
	require.NoError(t, err)

	page, err := NewStealthFetcher(client).Fetch(context.Background(), srv.URL+"/old", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.Equal(t, srv.URL+"/watch", page.FinalURL)
	assert.Equal(t, "Stealthy", page.Title)
	require.Len(t, page.Cookies, 1)
	assert.Equal(t, "cf_clearance", page.Cookies[0].Name)

	r := NewResolverWith(map[string]Fetcher{configs.FetchStealth: NewStealthFetcher(client)})
	media, err := r.Resolve(context.Background(), Request{URL: srv.URL + "/watch", Site: "generic", Mode: configs.FetchStealth})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/v.mp4", media.URL)
	assert.True(t, media.Stealth)
}

func TestHTTPFetcherBadProxy(t *testing.T) {
	_, err := NewHTTPFetcher("://bad", time.Second)
	assert.Error(t, err)
}
