package downloader

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/grafov/m3u8"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/scraper"
	"github.com/sirupsen/logrus"
)

// ErrEncrypted is returned for HLS playlists that use segment encryption.
var ErrEncrypted = errors.New("encrypted hls playlist")

func (d *Downloader) downloadHLS(ctx context.Context, media *scraper.Media, fileName string) (string, error) {
	playlistURL, segments, err := d.segments(ctx, media, media.URL)
	if err != nil {
		return "", err
	}
	logrus.Infof("HLS playlist resolved: url=%s, segments=%d", playlistURL, len(segments))

	filePath := filepath.Join(d.dir, fileName)
	partPath := filePath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to create file")
	}

	var written int64
	lastPct := 0
	for i, seg := range segments {
		n, err := d.appendSegment(ctx, media, seg, f)
		if err != nil {
			f.Close()
			_ = os.Remove(partPath)
			return "", errors.Wrapf(err, "segment %d/%d", i+1, len(segments))
		}
		written += n

		pct := (i + 1) * 100 / len(segments)
		if pct/progressStep > lastPct/progressStep {
			lastPct = pct
			logrus.Infof("HLS progress: %d/%d segments %d%% (%s)", i+1, len(segments), pct, humanize.Bytes(uint64(written)))
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(partPath)
		return "", errors.Wrap(err, "failed to save media")
	}
	if err := os.Rename(partPath, filePath); err != nil {
		_ = os.Remove(partPath)
		return "", errors.Wrap(err, "failed to finalize file")
	}

	logrus.Infof("Downloaded HLS to: %s (size: %s)", filePath, humanize.Bytes(uint64(written)))
	return filePath, nil
}

func (d *Downloader) appendSegment(ctx context.Context, media *scraper.Media, segURL string, w io.Writer) (int64, error) {
	body, _, err := d.get(ctx, media, segURL)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return io.Copy(w, body)
}

// segments returns the media playlist URL and its absolute segment URLs. A
// master playlist is followed to its highest bandwidth variant.
func (d *Downloader) segments(ctx context.Context, media *scraper.Media, playlistURL string) (string, []string, error) {
	playlist, err := d.playlist(ctx, media, playlistURL)
	if err != nil {
		return "", nil, err
	}

	if master, ok := playlist.(*m3u8.MasterPlaylist); ok {
		variant := bestVariant(master)
		if variant == nil {
			return "", nil, errors.New("master playlist has no variants")
		}
		logrus.Infof("HLS variant selected: bandwidth=%d, resolution=%s", variant.Bandwidth, variant.Resolution)

		playlistURL, err = resolveRef(playlistURL, variant.URI)
		if err != nil {
			return "", nil, err
		}
		if playlist, err = d.playlist(ctx, media, playlistURL); err != nil {
			return "", nil, err
		}
	}

	mp, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return "", nil, errors.New("expected HLS media playlist")
	}
	urls, err := segmentURLs(mp, playlistURL)
	if err != nil {
		return "", nil, err
	}
	return playlistURL, urls, nil
}

func (d *Downloader) playlist(ctx context.Context, media *scraper.Media, playlistURL string) (m3u8.Playlist, error) {
	body, _, err := d.get(ctx, media, playlistURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	playlist, _, err := m3u8.DecodeFrom(body, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse playlist")
	}
	return playlist, nil
}

func bestVariant(master *m3u8.MasterPlaylist) *m3u8.Variant {
	variants := make([]*m3u8.Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v != nil && !v.Iframe {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return nil
	}
	sort.SliceStable(variants, func(x, y int) bool {
		return variants[x].Bandwidth > variants[y].Bandwidth
	})
	return variants[0]
}

func segmentURLs(mp *m3u8.MediaPlaylist, playlistURL string) ([]string, error) {
	if encrypted(mp.Key) {
		return nil, errors.Wrapf(ErrEncrypted, "method=%s", mp.Key.Method)
	}

	var urls []string
	for _, seg := range mp.Segments {
		if seg == nil {
			break
		}
		if encrypted(seg.Key) {
			return nil, errors.Wrapf(ErrEncrypted, "method=%s", seg.Key.Method)
		}
		u, err := resolveRef(playlistURL, seg.URI)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return nil, errors.New("media playlist has no segments")
	}
	return urls, nil
}

func encrypted(k *m3u8.Key) bool {
	return k != nil && k.Method != "" && !strings.EqualFold(k.Method, "NONE")
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "invalid playlist url")
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", errors.Wrap(err, "invalid playlist entry")
	}
	return b.ResolveReference(r).String(), nil
}
