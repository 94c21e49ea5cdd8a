package config

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// LogFormats returns the accepted log_format values.
func LogFormats() []string {
	return []string{"text", "json", "color"}
}

// NewLogger builds a logger writing to w according to cfg.
func NewLogger(cfg Config, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "color":
		log.SetFormatter(&logrus.TextFormatter{ForceColors: true})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	default:
		return nil, fmt.Errorf("%w: log_format %q", ErrInvalidValue, cfg.LogFormat)
	}

	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log_level: %w", ErrInvalidValue, err)
	}

	log.SetLevel(lvl)

	return log, nil
}
