package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. JSON output, level from
// FOUNDLY_LOG_LEVEL (default info).
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(GetEnv("FOUNDLY_LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
