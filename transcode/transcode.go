package transcode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	FfmpegBinPath  string
	FfprobeBinPath string
}

// Info is what the uploader needs to describe a video.
type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	SizeBytes       int64
}

// Options controls Compress. A zero MaxHeight keeps the source resolution.
type Options struct {
	CRF       int
	Preset    string
	MaxHeight int
}

type Transcoder struct {
	cfg Config
}

func New(cfg Config) *Transcoder {
	if cfg.FfmpegBinPath == "" {
		cfg.FfmpegBinPath = "ffmpeg"
	}
	if cfg.FfprobeBinPath == "" {
		cfg.FfprobeBinPath = "ffprobe"
	}
	return &Transcoder{cfg: cfg}
}

// Check resolves both binaries on PATH (or as given) and names the missing one.
func (t *Transcoder) Check() error {
	for _, bin := range []string{t.cfg.FfmpegBinPath, t.cfg.FfprobeBinPath} {
		if _, err := exec.LookPath(bin); err != nil {
			return errors.Wrapf(err, "%s binary not found", filepath.Base(bin))
		}
	}
	return nil
}

func (t *Transcoder) Probe(path string) (*Info, error) {
	if _, err := exec.LookPath(t.cfg.FfprobeBinPath); err != nil {
		return nil, errors.Wrapf(err, "%s binary not found", filepath.Base(t.cfg.FfprobeBinPath))
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat video")
	}

	metadata, err := ffmpeg.New(&ffmpeg.Config{
		FfmpegBinPath:  t.cfg.FfmpegBinPath,
		FfprobeBinPath: t.cfg.FfprobeBinPath,
	}).Input(path).GetMetadata()
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract file metadata using ffprobe")
	}

	info := infoFromMetadata(metadata)
	info.SizeBytes = stat.Size()
	return info, nil
}

func infoFromMetadata(metadata transcoder.Metadata) *Info {
	info := &Info{DurationSeconds: parseSeconds(metadata.GetFormat().GetDuration())}
	for _, s := range metadata.GetStreams() {
		if s.GetCodecType() != "video" {
			continue
		}
		info.Width = s.GetWidth()
		info.Height = s.GetHeight()
		info.VideoCodec = s.GetCodecName()
		if info.DurationSeconds == 0 {
			info.DurationSeconds = parseSeconds(s.GetDuration())
		}
		break
	}
	return info
}

// Compress re-encodes in to an H.264/AAC mp4 at out.
func (t *Transcoder) Compress(ctx context.Context, in, out string, opts Options) error {
	src, err := t.Probe(in)
	if err != nil {
		return err
	}
	logrus.Infof("Compressing video: crf=%d, preset=%s, max_height=%d, source=%dx%d",
		opts.CRF, opts.Preset, opts.MaxHeight, src.Width, src.Height)
	return t.run(ctx, in, out, compressOptions(opts, src.Height))
}

// Remux copies the streams of in into an mp4 container at out.
func (t *Transcoder) Remux(ctx context.Context, in, out string) error {
	logrus.Infof("Remuxing to mp4: %s", filepath.Base(in))
	return t.run(ctx, in, out, remuxOptions())
}

func compressOptions(opts Options, srcHeight int) *ffmpeg.Options {
	videoCodec, audioCodec := "libx264", "aac"
	preset := opts.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := uint32(28)
	if opts.CRF > 0 && opts.CRF <= 51 {
		crf = uint32(opts.CRF)
	}

	o := &ffmpeg.Options{
		VideoCodec:   &videoCodec,
		AudioCodec:   &audioCodec,
		Crf:          &crf,
		Preset:       &preset,
		MovFlags:     ptr("+faststart"),
		OutputFormat: ptr("mp4"),
		Overwrite:    ptr(true),
	}
	if opts.MaxHeight > 0 && srcHeight > opts.MaxHeight {
		o.VideoFilter = ptr(fmt.Sprintf("scale=-2:%d", opts.MaxHeight))
	}
	return o
}

func remuxOptions() *ffmpeg.Options {
	return &ffmpeg.Options{
		VideoCodec:   ptr("copy"),
		AudioCodec:   ptr("copy"),
		MovFlags:     ptr("+faststart"),
		OutputFormat: ptr("mp4"),
		Overwrite:    ptr(true),
	}
}

func (t *Transcoder) run(ctx context.Context, in, out string, opts *ffmpeg.Options) error {
	if _, err := exec.LookPath(t.cfg.FfmpegBinPath); err != nil {
		return errors.Wrapf(err, "%s binary not found", filepath.Base(t.cfg.FfmpegBinPath))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errors.Wrap(err, "failed to create output dir")
	}
	_ = os.Remove(out)

	tc := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   t.cfg.FfmpegBinPath,
			FfprobeBinPath:  t.cfg.FfprobeBinPath,
		}).
		Input(in).
		Output(out).
		WithContext(&ctx)

	progress, err := tc.Start(opts)
	if err != nil {
		return parseFfmpegError(err)
	}
	cmd := tc.GetRunningCmdInstance()

	last := -1
	for prog := range progress {
		pct := int(prog.GetProgress())
		if pct/10 > last/10 {
			last = pct
			logrus.Infof("FFmpeg progress: %d%% time=%s speed=%s", pct, prog.GetCurrentTime(), prog.GetSpeed())
		}
	}

	// progress closes once Wait has returned, so ProcessState is set
	if ctx.Err() != nil {
		_ = os.Remove(out)
		return ctx.Err()
	}
	if cmd == nil || cmd.ProcessState == nil {
		_ = os.Remove(out)
		return errors.Errorf("ffmpeg did not run for %s", filepath.Base(in))
	}
	if !cmd.ProcessState.Success() {
		_ = os.Remove(out)
		return errors.Errorf("ffmpeg failed for %s: %s", filepath.Base(in), cmd.ProcessState)
	}
	stat, err := os.Stat(out)
	if err != nil || stat.Size() == 0 {
		_ = os.Remove(out)
		return errors.Errorf("ffmpeg produced no output for %s", filepath.Base(in))
	}
	return nil
}

var messageMatcher = regexp.MustCompile(`(?s)message: ({.*})`)

// parseFfmpegError pulls ffprobe's JSON error string out of the transcoder's
// error, which otherwise carries the whole build banner.
func parseFfmpegError(err error) error {
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return errors.Wrap(err, "ffmpeg failed")
	}

	var out struct {
		Error struct {
			String string `json:"string"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil || out.Error.String == "" {
		return errors.Errorf("ffmpeg failed: %s", strings.TrimSpace(groups[1]))
	}
	return errors.Errorf("ffmpeg failed: %s", out.Error.String)
}

func parseSeconds(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

// IsMP4 reports whether path already has an mp4 container extension.
func IsMP4(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return true
	}
	return false
}

func ptr[T any](v T) *T {
	return &v
}
