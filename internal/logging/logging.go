// Package logging builds the process logger from configuration.
package logging

import (
	"alcyxob/video-uploads/internal/config"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stdout in the configured format.
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, pkgerrors.Errorf("unknown log format %q", cfg.Format)
	}
	return logger, nil
}
