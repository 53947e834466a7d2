package telegram

import (
	"context"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Config holds the application credentials from my.telegram.org.
type Config struct {
	AppID   int
	AppHash string
	// Logger receives gotd's internal logs; nil discards them.
	Logger *zap.Logger
}

func newClient(cfg Config, storage *StringStorage) *telegram.Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: storage,
		Logger:         logger,
	})
}

// GenerateSession logs in interactively and returns the session string.
func GenerateSession(ctx context.Context, cfg Config, authenticator auth.UserAuthenticator) (string, error) {
	storage := &StringStorage{}
	client := newClient(cfg, storage)

	err := client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(authenticator, auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return errors.Wrap(err, "failed to authenticate")
		}
		self, err := client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get self")
		}
		logrus.Infof("Logged in: id=%d, username=%s", self.ID, self.Username)
		return nil
	})
	if err != nil {
		return "", err
	}
	return storage.Encode()
}
