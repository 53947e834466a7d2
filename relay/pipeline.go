package relay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/archive"
	"github.com/reelpost/reelpost/configs"
	"github.com/reelpost/reelpost/scraper"
	"github.com/reelpost/reelpost/telegram"
	"github.com/reelpost/reelpost/transcode"
	"github.com/sirupsen/logrus"
)

type Resolver interface {
	Resolve(ctx context.Context, req scraper.Request) (*scraper.Media, error)
}

type Downloader interface {
	Download(ctx context.Context, media *scraper.Media, name string) (string, error)
}

type Transcoder interface {
	Probe(path string) (*transcode.Info, error)
	Compress(ctx context.Context, in, out string, opts transcode.Options) error
	Remux(ctx context.Context, in, out string) error
}

type Uploader interface {
	Upload(ctx context.Context, req telegram.UploadRequest) error
}

type Archiver interface {
	Archive(ctx context.Context, localPath, key string) (string, error)
}

// Result describes one finished run.
type Result struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	MediaURL        string  `json:"media_url"`
	LocalPath       string  `json:"local_path"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Compressed      bool    `json:"compressed"`
	ArchiveURL      string  `json:"archive_url,omitempty"`
	ElapsedSeconds  int     `json:"elapsed_seconds"`
}

// Pipeline runs a job from page URL to channel post. Archiver may be nil.
type Pipeline struct {
	Channel    string
	Resolver   Resolver
	Downloader Downloader
	Transcoder Transcoder
	Uploader   Uploader
	Archiver   Archiver
}

// Run executes the job once. Local files are removed afterwards, whether or
// not the run succeeded, unless the job keeps them.
func (p *Pipeline) Run(ctx context.Context, job *configs.Job) (result *Result, err error) {
	startTime := time.Now()
	result = &Result{ID: uuid.NewString()}
	logrus.Infof("Starting job: id=%s, url=%s, fetch_mode=%s, compress=%v", result.ID, job.URL, job.FetchMode, job.Compress)

	var files []string
	defer func() {
		if job.KeepFiles {
			return
		}
		for _, f := range files {
			if rmErr := os.Remove(f); rmErr != nil && !os.IsNotExist(rmErr) {
				logrus.Warnf("Failed to remove %s: %v", f, rmErr)
			}
		}
	}()

	media, err := p.Resolver.Resolve(ctx, scraper.Request{
		URL:     job.URL,
		Title:   job.Title,
		Site:    job.Site,
		Mode:    job.FetchMode,
		Pattern: job.Pattern,
		Headers: job.Headers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve media")
	}
	result.Title = media.Title
	result.MediaURL = media.URL
	logrus.Infof("Step 1/4 resolved: title=%s, kind=%s", media.Title, media.Kind)

	path, err := p.Downloader.Download(ctx, media, media.Title)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download media")
	}
	files = append(files, path)
	logrus.Infof("Step 2/4 downloaded: %s", path)

	path, err = p.prepare(ctx, job, path)
	if err != nil {
		return nil, err
	}
	files = append(files, path)
	result.LocalPath = path
	result.Compressed = job.Compress

	info, err := p.Transcoder.Probe(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to probe video")
	}
	result.SizeBytes = info.SizeBytes
	result.DurationSeconds = info.DurationSeconds
	result.Width = info.Width
	result.Height = info.Height
	logrus.Infof("Step 3/4 ready: %dx%d, %.0fs, %d bytes", info.Width, info.Height, info.DurationSeconds, info.SizeBytes)

	caption := job.Caption
	if strings.TrimSpace(caption) == "" {
		caption = media.Title
	}
	if err := p.Uploader.Upload(ctx, telegram.UploadRequest{
		Path:            path,
		Caption:         caption,
		Channel:         p.Channel,
		DurationSeconds: info.DurationSeconds,
		Width:           info.Width,
		Height:          info.Height,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to upload video")
	}
	logrus.Infof("Step 4/4 uploaded to %s", p.Channel)

	if job.Archive {
		result.ArchiveURL = p.archive(ctx, result.ID, path)
	}

	result.ElapsedSeconds = int(time.Since(startTime).Seconds())
	logrus.Infof("Job completed: id=%s, title=%s, size=%d, duration=%ds", result.ID, result.Title, result.SizeBytes, result.ElapsedSeconds)
	return result, nil
}

// prepare returns an mp4 ready for upload: compressed when asked, otherwise
// remuxed if the download is in another container.
func (p *Pipeline) prepare(ctx context.Context, job *configs.Job, path string) (string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))

	if job.Compress {
		out := base + ".compressed.mp4"
		err := p.Transcoder.Compress(ctx, path, out, transcode.Options{
			CRF:       job.CRF,
			Preset:    job.Preset,
			MaxHeight: job.MaxHeight,
		})
		if err != nil {
			return "", errors.Wrap(err, "failed to compress video")
		}
		return out, nil
	}

	if transcode.IsMP4(path) {
		return path, nil
	}
	out := base + ".mp4"
	if err := p.Transcoder.Remux(ctx, path, out); err != nil {
		return "", errors.Wrap(err, "failed to remux video")
	}
	return out, nil
}

// archive is best effort: the post is already out, so a failure only loses the copy.
func (p *Pipeline) archive(ctx context.Context, id, path string) string {
	if p.Archiver == nil {
		logrus.Warn("Archive requested but OSS is not configured, skipping")
		return ""
	}
	url, err := p.Archiver.Archive(ctx, path, archive.ObjectKey(id, path, time.Now()))
	if err != nil {
		logrus.Errorf("Failed to archive video: id=%s, error=%v", id, err)
		return ""
	}
	return url
}
