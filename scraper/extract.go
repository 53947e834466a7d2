package scraper

import (
	"encoding/json"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

var (
	// file: "…", src: '…', "contentUrl":"…" inside player setup scripts
	scriptKeyRe = regexp.MustCompile(`(?i)["']?(?:file|src|source|url|video_url|videoUrl|hls|hlsUrl|contentUrl)["']?\s*[:=]\s*["']([^"'\s]+\.(?:mp4|m3u8|webm|mov|mkv)[^"'\s]*)["']`)
	// any quoted absolute media URL
	scriptAbsRe = regexp.MustCompile(`["'](https?://[^"'\s]+\.(?:mp4|m3u8|webm|mov|mkv)(?:\?[^"'\s]*)?)["']`)

	unicodeSlash = strings.NewReplacer(`\/`, `/`, `\u002F`, `/`, `\u002f`, `/`, `\u0026`, `&`)
)

// Extract finds the media URL on a page. The first strategy that yields a URL wins.
func Extract(page *Page, pattern string) (*Media, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	candidates := []func() string{
		func() string { return fromPattern(page.HTML, pattern) },
		func() string { return fromVideoTags(doc) },
		func() string { return fromMeta(doc) },
		func() string { return fromJSONLD(doc) },
		func() string { return fromScripts(page.HTML) },
		func() string {
			if len(page.Sniffed) > 0 {
				return pickSniffed(page.Sniffed)
			}
			return ""
		},
	}

	for _, next := range candidates {
		raw := next()
		if raw == "" {
			continue
		}
		abs, ok := absolutize(page.Base(), raw)
		if !ok {
			continue
		}
		return &Media{
			URL:     abs,
			Kind:    KindOf(abs),
			Title:   page.Title,
			Referer: page.Base(),
			Cookies: scopeCookies(page.Cookies, page.Base()),
		}, nil
	}
	return nil, ErrNoMedia
}

// scopeCookies pins host-only cookies to the page host so they are not sent
// to a media CDN on another domain.
func scopeCookies(cookies []*http.Cookie, pageURL string) []*http.Cookie {
	if len(cookies) == 0 {
		return nil
	}
	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Hostname()
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		ck := *c
		if ck.Domain == "" {
			ck.Domain = host
		}
		out = append(out, &ck)
	}
	return out
}

// KindOf classifies a media URL by its path.
func KindOf(rawURL string) Kind {
	u, err := url.Parse(rawURL)
	if err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".m3u8") {
		return KindHLS
	}
	if strings.Contains(strings.ToLower(rawURL), ".m3u8") {
		return KindHLS
	}
	return KindFile
}

// PageTitle returns og:title, falling back to <title>.
func PageTitle(page *Page) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return ""
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// FirstIframe returns the absolute src of the first iframe on the page, if any.
func FirstIframe(page *Page) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return ""
	}
	src, ok := doc.Find("iframe[src]").First().Attr("src")
	if !ok {
		return ""
	}
	abs, ok := absolutize(page.Base(), src)
	if !ok {
		return ""
	}
	return abs
}

func fromPattern(body, pattern string) string {
	if pattern == "" {
		return ""
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(unicodeSlash.Replace(body))
	if m == nil {
		return ""
	}
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return m[0]
}

func fromVideoTags(doc *goquery.Document) string {
	var found string
	doc.Find("video").EachWithBreak(func(_ int, v *goquery.Selection) bool {
		if src, ok := v.Attr("src"); ok && usable(src) {
			found = src
			return false
		}
		v.Find("source[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			if usable(src) {
				found = src
				return false
			}
			return true
		})
		return found == ""
	})
	return found
}

var metaSelectors = []string{
	`meta[property="og:video:secure_url"]`,
	`meta[property="og:video:url"]`,
	`meta[property="og:video"]`,
	`meta[name="twitter:player:stream"]`,
	`meta[property="twitter:player:stream"]`,
}

func fromMeta(doc *goquery.Document) string {
	for _, sel := range metaSelectors {
		if c, ok := doc.Find(sel).First().Attr("content"); ok && usable(c) {
			return c
		}
	}
	return ""
}

func fromJSONLD(doc *goquery.Document) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v interface{}
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		found = findContentURL(v)
		return found == ""
	})
	return found
}

func findContentURL(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		if s, ok := t["contentUrl"].(string); ok && usable(s) {
			return s
		}
		for _, child := range t {
			if s := findContentURL(child); s != "" {
				return s
			}
		}
	case []interface{}:
		for _, child := range t {
			if s := findContentURL(child); s != "" {
				return s
			}
		}
	}
	return ""
}

func fromScripts(body string) string {
	body = unicodeSlash.Replace(body)
	if m := scriptKeyRe.FindStringSubmatch(body); m != nil && usable(m[1]) {
		return m[1]
	}
	if m := scriptAbsRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// pickSniffed prefers an HLS manifest over progressive files since sniffed
// mp4 hits are often ads or previews.
func pickSniffed(urls []string) string {
	for _, u := range urls {
		if KindOf(u) == KindHLS {
			return u
		}
	}
	return urls[0]
}

func usable(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	lower := strings.ToLower(raw)
	return !strings.HasPrefix(lower, "blob:") && !strings.HasPrefix(lower, "data:") && !strings.HasPrefix(lower, "javascript:")
}

func absolutize(base, raw string) (string, bool) {
	raw = html.UnescapeString(unicodeSlash.Replace(strings.TrimSpace(raw)))
	if !usable(raw) {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	abs := b.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}
