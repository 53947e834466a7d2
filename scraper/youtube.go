package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	Register(NewYouTube(nil))
}

// YouTube resolves watch, shorts and youtu.be links through the innertube API.
type YouTube struct {
	client *youtube.Client
}

// NewYouTube returns the site; a nil httpClient gets a 60s default.
func NewYouTube(httpClient *http.Client) *YouTube {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &YouTube{client: &youtube.Client{HTTPClient: httpClient}}
}

func (y *YouTube) Name() string { return "youtube" }

func (y *YouTube) Match(u *url.URL) bool {
	return hostIs(u.Host, "youtube.com") || hostIs(u.Host, "youtu.be")
}

func (y *YouTube) Resolve(ctx context.Context, req Request) (*Media, error) {
	video, err := y.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load youtube video")
	}

	format, ok := bestMuxedMP4(video.Formats)
	if !ok {
		return nil, errors.Wrapf(ErrNoMedia, "youtube video %s has no mp4 format with audio", video.ID)
	}
	logrus.Infof("YouTube format selected: itag=%d, quality=%s, size=%d", format.ItagNo, format.QualityLabel, format.ContentLength)

	return &Media{
		URL:   req.URL,
		Kind:  KindStream,
		Title: video.Title,
		Open: func(ctx context.Context) (io.ReadCloser, int64, error) {
			return y.client.GetStreamContext(ctx, video, format)
		},
	}, nil
}

// bestMuxedMP4 picks the tallest mp4 that carries audio, breaking ties by bitrate.
func bestMuxedMP4(formats youtube.FormatList) (*youtube.Format, bool) {
	var muxed []youtube.Format
	for _, f := range formats.WithAudioChannels() {
		if strings.HasPrefix(f.MimeType, "video/mp4") {
			muxed = append(muxed, f)
		}
	}
	if len(muxed) == 0 {
		return nil, false
	}
	sort.SliceStable(muxed, func(i, j int) bool {
		if muxed[i].Height != muxed[j].Height {
			return muxed[i].Height > muxed[j].Height
		}
		return muxed[i].Bitrate > muxed[j].Bitrate
	})
	return &muxed[0], true
}
