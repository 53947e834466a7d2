package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressOptions(t *testing.T) {
	o := compressOptions(Options{CRF: 23, Preset: "medium", MaxHeight: 720}, 1080)
	assert.Equal(t, "libx264", *o.VideoCodec)
	assert.Equal(t, "aac", *o.AudioCodec)
	assert.Equal(t, uint32(23), *o.Crf)
	assert.Equal(t, "medium", *o.Preset)
	assert.Equal(t, "+faststart", *o.MovFlags)
	assert.True(t, *o.Overwrite)
	require.NotNil(t, o.VideoFilter)
	assert.Equal(t, "scale=-2:720", *o.VideoFilter)
}

func TestCompressOptionsDefaultsAndNoUpscale(t *testing.T) {
	o := compressOptions(Options{MaxHeight: 1080}, 720)
	assert.Equal(t, uint32(28), *o.Crf)
	assert.Equal(t, "veryfast", *o.Preset)
	assert.Nil(t, o.VideoFilter)

	o = compressOptions(Options{CRF: 99}, 0)
	assert.Equal(t, uint32(28), *o.Crf)
}

func TestRemuxOptions(t *testing.T) {
	o := remuxOptions()
	assert.Equal(t, "copy", *o.VideoCodec)
	assert.Equal(t, "copy", *o.AudioCodec)
	assert.Equal(t, "mp4", *o.OutputFormat)
	assert.Nil(t, o.Crf)
}

func TestParseFfmpegError(t *testing.T) {
	err := parseFfmpegError(errors.New(`ffprobe version n6 built with gcc... message: {"error": {"code": -2, "string": "No such file or directory"}}`))
	assert.EqualError(t, err, "ffmpeg failed: No such file or directory")

	err = parseFfmpegError(errors.New("exit status 1"))
	assert.EqualError(t, err, "ffmpeg failed: exit status 1")

	err = parseFfmpegError(errors.New(`message: {not json}`))
	assert.EqualError(t, err, "ffmpeg failed: {not json}")
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 12.5, parseSeconds("12.500000"))
	assert.Equal(t, 0.0, parseSeconds("N/A"))
	assert.Equal(t, 0.0, parseSeconds("-3"))
}

func TestIsMP4(t *testing.T) {
	assert.True(t, IsMP4("/a/b.MP4"))
	assert.True(t, IsMP4("x.m4v"))
	assert.False(t, IsMP4("x.ts"))
	assert.False(t, IsMP4("x.webm"))
}

func TestMissingBinary(t *testing.T) {
	tc := New(Config{FfmpegBinPath: "/nonexistent/ffmpeg-missing", FfprobeBinPath: "/nonexistent/ffprobe-missing"})

	err := tc.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg-missing binary not found")

	_, err = tc.Probe("whatever.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe-missing binary not found")

	err = tc.Remux(context.Background(), "in.ts", t.TempDir()+"/out.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg-missing binary not found")
}

const fakeProbe = `#!/bin/sh
echo '{"format":{"duration":"10.000000"},"streams":[{"codec_type":"video","codec_name":"h264","width":640,"height":360}]}'
`

// fakeBinaries writes ffprobe and ffmpeg stand-ins; ffmpeg writes body to
// its last argument and exits with code.
func fakeBinaries(t *testing.T, body string, code int) *Transcoder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stand-ins need a POSIX shell")
	}
	dir := t.TempDir()
	probe := filepath.Join(dir, "ffprobe")
	require.NoError(t, os.WriteFile(probe, []byte(fakeProbe), 0o755))

	ffmpegScript := fmt.Sprintf(`#!/bin/sh
for a; do out="$a"; done
echo 'frame=1 fps=0 q=0 size=1kB time=00:00:05.00 bitrate=1kbits/s speed=1x' >&2
printf '%s' > "$out"
exit %d
`, body, code)
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(ffmpegScript), 0o755))

	return New(Config{FfmpegBinPath: bin, FfprobeBinPath: probe})
}

func TestRemuxFailedExitRemovesOutput(t *testing.T) {
	tc := fakeBinaries(t, "partial", 1)
	in := filepath.Join(t.TempDir(), "in.ts")
	require.NoError(t, os.WriteFile(in, []byte("ts"), 0o644))
	out := filepath.Join(t.TempDir(), "out.mp4")

	err := tc.Remux(context.Background(), in, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.NoFileExists(t, out)
}

func TestCompressSucceeds(t *testing.T) {
	tc := fakeBinaries(t, "encoded", 0)
	in := filepath.Join(t.TempDir(), "in.mp4")
	require.NoError(t, os.WriteFile(in, []byte("mp4"), 0o644))
	out := filepath.Join(t.TempDir(), "nested", "out.mp4")

	require.NoError(t, tc.Compress(context.Background(), in, out, Options{MaxHeight: 240}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))

	info, err := tc.Probe(in)
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 360, info.Height)
	assert.Equal(t, 10.0, info.DurationSeconds)
	assert.Equal(t, int64(3), info.SizeBytes)
}
