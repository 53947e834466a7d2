package configs

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

// Fetch modes for the page request.
const (
	FetchAuto    = "auto"
	FetchHTTP    = "http"
	FetchStealth = "stealth"
	FetchBrowser = "browser"
)

const (
	DefaultCRF    = 28
	DefaultPreset = "veryfast"
)

// Job is the per-run parameter file written by the workflow. CRF runs 1..51;
// zero selects DefaultCRF, so lossless encoding is not offered.
type Job struct {
	URL       string            `json:"url" env:"VIDEO_URL"`
	Title     string            `json:"title" env:"VIDEO_TITLE"`
	Caption   string            `json:"caption" env:"VIDEO_CAPTION"`
	Site      string            `json:"site" env:"VIDEO_SITE"`
	FetchMode string            `json:"fetch_mode" env:"FETCH_MODE"`
	Pattern   string            `json:"pattern" env:"MEDIA_PATTERN"`
	Headers   map[string]string `json:"headers"`
	Compress  bool              `json:"compress" env:"VIDEO_COMPRESS"`
	CRF       int               `json:"crf" env:"VIDEO_CRF"`
	Preset    string            `json:"preset" env:"VIDEO_PRESET"`
	MaxHeight int               `json:"max_height" env:"VIDEO_MAX_HEIGHT"`
	KeepFiles bool              `json:"keep_files" env:"KEEP_FILES"`
	Archive   bool              `json:"archive" env:"VIDEO_ARCHIVE"`
}

// LoadJob reads a JSON job file; environment variables override file values.
func LoadJob(path string) (*Job, error) {
	job, err := ReadJob(path)
	if err != nil {
		return nil, err
	}
	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// ReadJob is LoadJob without defaults or validation, for callers that
// still have values to merge in.
func ReadJob(path string) (*Job, error) {
	var job Job
	if err := cleanenv.ReadConfig(path, &job); err != nil {
		return nil, errors.Wrapf(err, "failed to read job file %s", path)
	}
	return &job, nil
}

// ApplyDefaults fills the optional fields left empty.
func (j *Job) ApplyDefaults() {
	j.URL = strings.TrimSpace(j.URL)
	j.Title = strings.TrimSpace(j.Title)
	if j.FetchMode == "" {
		j.FetchMode = FetchAuto
	}
	j.FetchMode = strings.ToLower(j.FetchMode)
	if j.CRF == 0 {
		j.CRF = DefaultCRF
	}
	if j.Preset == "" {
		j.Preset = DefaultPreset
	}
}

// Validate checks the job after defaults have been applied.
func (j *Job) Validate() error {
	if j.URL == "" {
		return errors.New("job url is required")
	}
	u, err := url.Parse(j.URL)
	if err != nil {
		return errors.Wrap(err, "job url is invalid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("job url must be http or https, got %q", j.URL)
	}

	switch j.FetchMode {
	case FetchAuto, FetchHTTP, FetchStealth, FetchBrowser:
	default:
		return errors.Errorf("invalid fetch_mode: %s", j.FetchMode)
	}

	if j.Pattern != "" {
		if _, err := regexp.Compile(j.Pattern); err != nil {
			return errors.Wrap(err, "invalid pattern")
		}
	}
	if j.CRF < 1 || j.CRF > 51 {
		return errors.Errorf("crf must be between 1 and 51, got %d", j.CRF)
	}
	if j.MaxHeight < 0 {
		return errors.Errorf("max_height must not be negative, got %d", j.MaxHeight)
	}
	return nil
}
