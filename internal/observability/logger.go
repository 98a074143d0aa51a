package observability

import (
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000Z07:00",
	})
	logger.SetLevel(logrus.InfoLevel)
}

// InitLogger sets the global level; unknown levels fall back to info.
// It returns the level actually applied.
func InitLogger(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return lvl
}

func GetLogger() *logrus.Logger {
	return logger
}

func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// LogFatal writes an entry at fatal level. Unlike Entry.Fatal it does not call os.Exit.
func LogFatal(entry *logrus.Entry, msg string) {
	entry.Log(logrus.FatalLevel, msg)
}
