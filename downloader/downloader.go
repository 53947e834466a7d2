package downloader

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/scraper"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/sirupsen/logrus"
)

// Options configures a Downloader.
type Options struct {
	Dir      string
	ProxyURL string
	// Timeout bounds connection setup and response headers, not the body transfer.
	Timeout time.Duration
	// Stealth is used for media resolved through the stealth or browser fetchers.
	// Its cookie jar is shared; its total timeout is not.
	Stealth *stealthhttp.Client
}

// Downloader saves resolved media under a working directory.
type Downloader struct {
	dir     string
	client  *http.Client
	stealth *stealthhttp.Client
}

// New creates the working directory and the plain HTTP client.
func New(opts Options) (*Downloader, error) {
	if opts.Dir == "" {
		opts.Dir = "downloads"
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create download dir")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.Timeout
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid proxy url")
		}
		transport.Proxy = http.ProxyURL(u)
	}

	d := &Downloader{
		dir:    opts.Dir,
		client: &http.Client{Transport: transport},
	}
	if opts.Stealth != nil {
		streaming, err := opts.Stealth.Streaming()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create stealth download client")
		}
		d.stealth = streaming
	}
	return d, nil
}

// Dir returns the working directory.
func (d *Downloader) Dir() string {
	return d.dir
}

// Download fetches media into the working directory and returns the local path.
// name is the base file name without extension; it is usually the video title.
func (d *Downloader) Download(ctx context.Context, media *scraper.Media, name string) (string, error) {
	if media == nil {
		return "", errors.New("nil media")
	}
	logrus.Infof("Downloading %s media: %s", media.Kind, media.URL)

	switch media.Kind {
	case scraper.KindStream:
		if media.Open == nil {
			return "", errors.New("stream media has no opener")
		}
		return d.downloadStream(ctx, media, FileName(name, media.URL, "mp4"))
	case scraper.KindHLS:
		return d.downloadHLS(ctx, media, FileName(name, media.URL, "ts"))
	default:
		return d.downloadFile(ctx, media, FileName(name, media.URL, extOf(media.URL)))
	}
}

func (d *Downloader) downloadFile(ctx context.Context, media *scraper.Media, fileName string) (string, error) {
	body, size, err := d.get(ctx, media, media.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	// playlists sniffed by content type can hide behind any URL
	br := bufio.NewReader(body)
	if head, _ := br.Peek(len(hlsMagic)); string(head) == hlsMagic {
		body.Close()
		logrus.Info("Media is an HLS playlist, switching to segment download")
		return d.downloadHLS(ctx, media, strings.TrimSuffix(fileName, path.Ext(fileName))+".ts")
	}
	return d.save(fileName, br, size)
}

const hlsMagic = "#EXTM3U"

func (d *Downloader) downloadStream(ctx context.Context, media *scraper.Media, fileName string) (string, error) {
	body, size, err := media.Open(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to open stream")
	}
	defer body.Close()
	return d.save(fileName, body, size)
}

// save streams r into dir/fileName through a .part file so a failed transfer
// never leaves something that looks complete.
func (d *Downloader) save(fileName string, r io.Reader, size int64) (string, error) {
	filePath := filepath.Join(d.dir, fileName)
	partPath := filePath + ".part"

	f, err := os.Create(partPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to create file")
	}

	progress := newProgress(fileName, size)
	n, err := io.Copy(f, io.TeeReader(r, progress))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(partPath)
		return "", errors.Wrap(err, "failed to save media")
	}
	if n == 0 {
		_ = os.Remove(partPath)
		return "", errors.New("downloaded file is empty")
	}
	if err := os.Rename(partPath, filePath); err != nil {
		_ = os.Remove(partPath)
		return "", errors.Wrap(err, "failed to finalize file")
	}

	logrus.Infof("Downloaded to: %s (size: %s)", filePath, humanize.Bytes(uint64(n)))
	return filePath, nil
}

// get opens rawURL with the media's referer, headers and cookies. The status must be 200.
func (d *Downloader) get(ctx context.Context, media *scraper.Media, rawURL string) (io.ReadCloser, int64, error) {
	headers := map[string]string{}
	for k, v := range media.Headers {
		headers[k] = v
	}
	if media.Referer != "" {
		headers["Referer"] = media.Referer
	}

	if media.Stealth && d.stealth != nil {
		resp, err := d.stealth.Get(ctx, rawURL, headers, cookiesFor(media.Cookies, rawURL))
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to download media")
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, errors.Errorf("download failed with status: %d", resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to build request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookiesFor(media.Cookies, rawURL) {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to download media")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, errors.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// cookiesFor keeps the cookies whose domain covers rawURL's host. Cookies
// without a domain are sent as-is.
func cookiesFor(cookies []*http.Cookie, rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())

	var out []*http.Cookie
	for _, c := range cookies {
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if domain == "" || host == domain || strings.HasSuffix(host, "."+domain) {
			out = append(out, c)
		}
	}
	return out
}

var mediaExts = map[string]bool{"mp4": true, "webm": true, "mkv": true, "mov": true, "m4v": true, "ts": true}

func extOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		if mediaExts[ext] {
			return ext
		}
	}
	return "mp4"
}

const maxNameRunes = 80

// FileName builds "<slug>.<ext>" from a title, falling back to a short hash of
// the media URL when the title has nothing usable.
func FileName(title, mediaURL, ext string) string {
	slug := Slugify(title)
	if slug == "" {
		hash := sha256.Sum256([]byte(mediaURL))
		slug = fmt.Sprintf("video_%x", hash)[:len("video_")+12]
	}
	return slug + "." + ext
}

// Slugify keeps letters and digits from any script and collapses the rest into underscores.
func Slugify(s string) string {
	var b strings.Builder
	underscore := false
	runes := 0
	for _, r := range strings.TrimSpace(s) {
		if runes >= maxNameRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			underscore = false
			runes++
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
			runes++
		}
	}
	return strings.Trim(b.String(), "_-")
}
