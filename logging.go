package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// setupLogging configures logrus and, when logFile is set, tees output into it.
// The returned func closes the file.
func setupLogging(debug bool, logFile string) (func(), error) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logFile == "" {
		logFile = os.Getenv("LOG_FILE")
	}
	if logFile == "" {
		logrus.SetOutput(os.Stdout)
		return func() {}, nil
	}

	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log dir")
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log file")
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	return func() {
		logrus.SetOutput(os.Stdout)
		_ = f.Close()
	}, nil
}

// newTelegramLogger returns the zap logger gotd writes its internals to:
// warnings only, or everything with --debug.
func newTelegramLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		logrus.Warnf("Failed to build telegram logger, discarding its output: %v", err)
		return zap.NewNop()
	}
	return logger.Named("telegram")
}

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
