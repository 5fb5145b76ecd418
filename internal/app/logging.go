package app

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging returns a text logger writing to stderr. An unknown level
// falls back to info.
func SetupLogging(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
