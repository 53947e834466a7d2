package relay

import (
	"github.com/pkg/errors"
	"github.com/reelpost/reelpost/archive"
	"github.com/reelpost/reelpost/configs"
	"github.com/reelpost/reelpost/downloader"
	"github.com/reelpost/reelpost/scraper"
	"github.com/reelpost/reelpost/stealthhttp"
	"github.com/reelpost/reelpost/telegram"
	"github.com/reelpost/reelpost/transcode"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Build wires a Pipeline from the process environment.
func Build(env *configs.Env, tgLogger *zap.Logger) (*Pipeline, error) {
	if err := env.RequireUpload(); err != nil {
		return nil, err
	}
	sessionString, err := configs.ReadSession(env)
	if err != nil {
		return nil, err
	}

	stealth, err := stealthhttp.New(stealthhttp.Options{ProxyURL: env.ProxyURL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stealth client")
	}

	resolver, err := scraper.NewResolver(scraper.Options{
		ProxyURL:   env.ProxyURL,
		Headless:   configs.IsHeadless(),
		BrowserBin: env.BrowserBin,
	}, stealth)
	if err != nil {
		return nil, err
	}

	dl, err := downloader.New(downloader.Options{
		Dir:      env.WorkDir,
		ProxyURL: env.ProxyURL,
		Stealth:  stealth,
	})
	if err != nil {
		return nil, err
	}

	tc := transcode.New(transcode.Config{
		FfmpegBinPath:  env.FfmpegPath,
		FfprobeBinPath: env.FfprobePath,
	})
	if err := tc.Check(); err != nil {
		return nil, err
	}

	up, err := telegram.NewUploader(telegram.Config{
		AppID:   env.APIID,
		AppHash: env.APIHash,
		Logger:  tgLogger,
	}, sessionString)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Channel:    env.Channel,
		Resolver:   resolver,
		Downloader: dl,
		Transcoder: tc,
		Uploader:   up,
	}

	if env.OSS.Enabled() {
		archiver, err := archive.NewOSSArchiver(archive.OSSConfigFromEnv(env.OSS))
		if err != nil {
			return nil, err
		}
		p.Archiver = archiver
		logrus.Infof("OSS archive enabled: bucket=%s", env.OSS.BucketName)
	}
	return p, nil
}
