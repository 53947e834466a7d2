package configs

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrMissingCredential is returned when a command needs a credential that is not configured.
var ErrMissingCredential = errors.New("missing credential")

// Env holds the process configuration injected by the CI workflow or a local .env file.
type Env struct {
	APIID         int    `env:"API_ID" env-description:"Telegram application id"`
	APIHash       string `env:"API_HASH" env-description:"Telegram application hash"`
	Channel       string `env:"CHANNEL" env-description:"Target channel (@name, t.me link, -100 id or me)"`
	StringSession string `env:"STRING_SESSION" env-description:"Serialized Telegram session"`
	SessionFile   string `env:"SESSION_FILE" env-default:"session.txt"`

	LogFile    string `env:"LOG_FILE"`
	Headless   bool   `env:"HEADLESS" env-default:"true"`
	BrowserBin string `env:"CHROME_BIN" env-description:"Chrome binary; empty lets rod find or download one"`
	ProxyURL   string `env:"PROXY_URL"`
	WorkDir    string `env:"WORK_DIR" env-default:"./downloads"`

	FfmpegPath  string `env:"FFMPEG_PATH" env-default:"ffmpeg"`
	FfprobePath string `env:"FFPROBE_PATH" env-default:"ffprobe"`

	OSS OSSEnv

	ServerToken string `env:"SERVER_TOKEN" env-description:"Bearer token for the dispatch server"`
}

// OSSEnv configures the optional object storage archive.
type OSSEnv struct {
	AccessKeyID     string `env:"OSS_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"OSS_ACCESS_KEY_SECRET"`
	BucketName      string `env:"OSS_BUCKET_NAME"`
	Endpoint        string `env:"OSS_ENDPOINT" env-default:"oss-cn-beijing.aliyuncs.com"`
	Region          string `env:"OSS_REGION" env-default:"cn-beijing"`
}

// Enabled reports whether archive credentials are present.
func (o OSSEnv) Enabled() bool {
	return o.AccessKeyID != "" && o.AccessKeySecret != "" && o.BucketName != ""
}

// LoadEnv loads envFile (if it exists) into the process environment and then
// reads Env from the environment.
func LoadEnv(envFile string) (*Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(errors.Cause(err)) {
				return nil, errors.Wrapf(err, "failed to load %s", envFile)
			}
			logrus.Debugf("No env file at %s, using process environment", envFile)
		}
	}

	var env Env
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}
	return &env, nil
}

// RequireTelegram checks the application credentials every Telegram command needs.
func (e *Env) RequireTelegram() error {
	if e.APIID == 0 {
		return errors.Wrap(ErrMissingCredential, "API_ID is required")
	}
	if e.APIHash == "" {
		return errors.Wrap(ErrMissingCredential, "API_HASH is required")
	}
	return nil
}

// RequireUpload checks everything needed to post into the channel.
func (e *Env) RequireUpload() error {
	if err := e.RequireTelegram(); err != nil {
		return err
	}
	if e.Channel == "" {
		return errors.Wrap(ErrMissingCredential, "CHANNEL is required")
	}
	if _, err := ReadSession(e); err != nil {
		return err
	}
	return nil
}
