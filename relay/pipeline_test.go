package relay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/configs"
	"github.com/reelpost/reelpost/scraper"
	"github.com/reelpost/reelpost/telegram"
	"github.com/reelpost/reelpost/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	media *scraper.Media
	err   error
	got   scraper.Request
}

func (f *fakeResolver) Resolve(_ context.Context, req scraper.Request) (*scraper.Media, error) {
	f.got = req
	return f.media, f.err
}

type fakeDownloader struct {
	dir  string
	ext  string
	name string
}

func (f *fakeDownloader) Download(_ context.Context, _ *scraper.Media, name string) (string, error) {
	f.name = name
	path := filepath.Join(f.dir, "video"+f.ext)
	return path, os.WriteFile(path, []byte("raw"), 0644)
}

type fakeTranscoder struct {
	compressed []string
	remuxed    []string
	opts       transcode.Options
}

func (f *fakeTranscoder) Probe(path string) (*transcode.Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &transcode.Info{DurationSeconds: 61.5, Width: 1280, Height: 720, SizeBytes: st.Size()}, nil
}

func (f *fakeTranscoder) Compress(_ context.Context, in, out string, opts transcode.Options) error {
	f.compressed = append(f.compressed, in)
	f.opts = opts
	return os.WriteFile(out, []byte("small"), 0644)
}

func (f *fakeTranscoder) Remux(_ context.Context, in, out string) error {
	f.remuxed = append(f.remuxed, in)
	return os.WriteFile(out, []byte("remuxed"), 0644)
}

type fakeUploader struct {
	reqs  []telegram.UploadRequest
	err   error
	block chan struct{}
}

func (f *fakeUploader) Upload(_ context.Context, req telegram.UploadRequest) error {
	if f.block != nil {
		<-f.block
	}
	f.reqs = append(f.reqs, req)
	return f.err
}

type fakeArchiver struct {
	key string
	err error
}

func (f *fakeArchiver) Archive(_ context.Context, _, key string) (string, error) {
	f.key = key
	if f.err != nil {
		return "", f.err
	}
	return "https://bucket.test/" + key, nil
}

func newPipeline(t *testing.T, ext string) (*Pipeline, *fakeTranscoder, *fakeUploader, string) {
	t.Helper()
	dir := t.TempDir()
	tc := &fakeTranscoder{}
	up := &fakeUploader{}
	return &Pipeline{
		Channel: "@movies",
		Resolver: &fakeResolver{media: &scraper.Media{
			URL: "https://cdn.test/v" + ext, Kind: scraper.KindFile, Title: "Big Movie",
		}},
		Downloader: &fakeDownloader{dir: dir, ext: ext},
		Transcoder: tc,
		Uploader:   up,
	}, tc, up, dir
}

func job(mut func(*configs.Job)) *configs.Job {
	j := &configs.Job{URL: "https://site.test/watch/1"}
	if mut != nil {
		mut(j)
	}
	j.ApplyDefaults()
	return j
}

func TestRunUploadsMP4AndCleansUp(t *testing.T) {
	p, tc, up, dir := newPipeline(t, ".mp4")

	res, err := p.Run(context.Background(), job(nil))
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "Big Movie", res.Title)
	assert.Equal(t, "https://cdn.test/v.mp4", res.MediaURL)
	assert.Equal(t, int64(3), res.SizeBytes)
	assert.Empty(t, tc.compressed)
	assert.Empty(t, tc.remuxed)

	require.Len(t, up.reqs, 1)
	assert.Equal(t, "@movies", up.reqs[0].Channel)
	assert.Equal(t, "Big Movie", up.reqs[0].Caption)
	assert.Equal(t, 1280, up.reqs[0].Width)
	assert.Equal(t, 61.5, up.reqs[0].DurationSeconds)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunRemuxesOtherContainers(t *testing.T) {
	p, tc, up, dir := newPipeline(t, ".ts")

	_, err := p.Run(context.Background(), job(func(j *configs.Job) { j.KeepFiles = true; j.Caption = "custom" }))
	require.NoError(t, err)

	require.Len(t, tc.remuxed, 1)
	assert.Equal(t, filepath.Join(dir, "video.mp4"), up.reqs[0].Path)
	assert.Equal(t, "custom", up.reqs[0].Caption)
	assert.FileExists(t, filepath.Join(dir, "video.ts"))
	assert.FileExists(t, filepath.Join(dir, "video.mp4"))
}

func TestRunCompresses(t *testing.T) {
	p, tc, up, _ := newPipeline(t, ".webm")

	res, err := p.Run(context.Background(), job(func(j *configs.Job) { j.Compress = true; j.MaxHeight = 480 }))
	require.NoError(t, err)

	assert.True(t, res.Compressed)
	assert.Empty(t, tc.remuxed)
	require.Len(t, tc.compressed, 1)
	assert.Equal(t, transcode.Options{CRF: configs.DefaultCRF, Preset: configs.DefaultPreset, MaxHeight: 480}, tc.opts)
	assert.Equal(t, "video.compressed.mp4", filepath.Base(up.reqs[0].Path))
	assert.Equal(t, int64(5), res.SizeBytes)
}

func TestRunArchives(t *testing.T) {
	p, _, _, _ := newPipeline(t, ".mp4")
	arch := &fakeArchiver{}
	p.Archiver = arch

	res, err := p.Run(context.Background(), job(func(j *configs.Job) { j.Archive = true }))
	require.NoError(t, err)
	assert.Contains(t, arch.key, res.ID+".mp4")
	assert.Equal(t, "https://bucket.test/"+arch.key, res.ArchiveURL)
}

func TestRunArchiveFailureIsNotFatal(t *testing.T) {
	p, _, _, _ := newPipeline(t, ".mp4")
	p.Archiver = &fakeArchiver{err: errors.New("denied")}

	res, err := p.Run(context.Background(), job(func(j *configs.Job) { j.Archive = true }))
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveURL)
}

func TestRunStopsOnResolveError(t *testing.T) {
	p, _, up, _ := newPipeline(t, ".mp4")
	p.Resolver = &fakeResolver{err: scraper.ErrNoMedia}

	_, err := p.Run(context.Background(), job(nil))
	assert.ErrorIs(t, err, scraper.ErrNoMedia)
	assert.Empty(t, up.reqs)
}

func TestRunCleansUpOnUploadError(t *testing.T) {
	p, _, up, dir := newPipeline(t, ".mp4")
	up.err = errors.New("flood wait")

	_, err := p.Run(context.Background(), job(nil))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunnerRejectsConcurrentJobs(t *testing.T) {
	p, _, up, _ := newPipeline(t, ".mp4")
	up.block = make(chan struct{})
	r := NewRunner(p)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := r.Run(context.Background(), job(nil))
		assert.NoError(t, err)
	}()

	require.Eventually(t, r.Busy, time.Second, 5*time.Millisecond)
	_, err := r.Run(context.Background(), job(nil))
	assert.ErrorIs(t, err, ErrBusy)

	close(up.block)
	wg.Wait()
	assert.False(t, r.Busy())
}
