package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reelpost/reelpost/configs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCmd(overrides *configs.Job) *cobra.Command {
	cmd := &cobra.Command{Use: "upload"}
	cmd.Flags().StringVar(&overrides.URL, "url", "", "")
	cmd.Flags().StringVar(&overrides.Title, "title", "", "")
	cmd.Flags().StringVar(&overrides.Caption, "caption", "", "")
	cmd.Flags().StringVar(&overrides.FetchMode, "mode", "", "")
	cmd.Flags().BoolVar(&overrides.Compress, "compress", false, "")
	cmd.Flags().IntVar(&overrides.MaxHeight, "max-height", 0, "")
	cmd.Flags().BoolVar(&overrides.KeepFiles, "keep", false, "")
	return cmd
}

func TestLoadJobFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"url":"https://a.test/1","title":"From file","compress":true}`), 0644))

	var overrides configs.Job
	cmd := newFlagCmd(&overrides)
	require.NoError(t, cmd.Flags().Parse([]string{"--title", "From flag", "--compress=false"}))

	job, err := loadJob(path, &overrides, cmd)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/1", job.URL)
	assert.Equal(t, "From flag", job.Title)
	assert.False(t, job.Compress)
	assert.Equal(t, configs.FetchAuto, job.FetchMode)
}

func TestLoadJobURLFlagCompletesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"From file","fetch_mode":"http"}`), 0644))

	var overrides configs.Job
	cmd := newFlagCmd(&overrides)
	require.NoError(t, cmd.Flags().Parse([]string{"--url", "https://flag.test/v"}))

	job, err := loadJob(path, &overrides, cmd)
	require.NoError(t, err)
	assert.Equal(t, "https://flag.test/v", job.URL)
	assert.Equal(t, "From file", job.Title)
	assert.Equal(t, configs.FetchHTTP, job.FetchMode)
	assert.Equal(t, configs.DefaultCRF, job.CRF)
}

func TestLoadJobFromEnv(t *testing.T) {
	t.Setenv("VIDEO_URL", "https://env.test/v")
	t.Setenv("VIDEO_COMPRESS", "true")

	var overrides configs.Job
	cmd := newFlagCmd(&overrides)
	require.NoError(t, cmd.Flags().Parse([]string{"--mode", "Stealth"}))

	job, err := loadJob("", &overrides, cmd)
	require.NoError(t, err)
	assert.Equal(t, "https://env.test/v", job.URL)
	assert.True(t, job.Compress)
	assert.Equal(t, configs.FetchStealth, job.FetchMode)
}

func TestLoadJobNeedsURL(t *testing.T) {
	t.Setenv("VIDEO_URL", "")
	var overrides configs.Job
	_, err := loadJob("", &overrides, newFlagCmd(&overrides))
	assert.Error(t, err)
}
