package main

import (
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/configs"
	"github.com/spf13/cobra"
)

// loadJob builds the job from the job file, or from VIDEO_* variables when no
// file is given. Flags set on the command line win over both.
func loadJob(path string, overrides *configs.Job, cmd *cobra.Command) (*configs.Job, error) {
	var job configs.Job
	if path != "" {
		loaded, err := configs.ReadJob(path)
		if err != nil {
			return nil, err
		}
		job = *loaded
	} else if err := cleanenv.ReadEnv(&job); err != nil {
		return nil, errors.Wrap(err, "failed to read job from environment")
	}

	changed := cmd.Flags().Changed
	if changed("url") {
		job.URL = overrides.URL
	}
	if changed("title") {
		job.Title = overrides.Title
	}
	if changed("caption") {
		job.Caption = overrides.Caption
	}
	if changed("mode") {
		job.FetchMode = overrides.FetchMode
	}
	if changed("compress") {
		job.Compress = overrides.Compress
	}
	if changed("max-height") {
		job.MaxHeight = overrides.MaxHeight
	}
	if changed("keep") {
		job.KeepFiles = overrides.KeepFiles
	}

	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}
