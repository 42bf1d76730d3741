package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "15:04:05.000"

// New returns a text logger at the requested level.
// An unparsable level falls back to info and is reported through the returned logger.
func New(level string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	logger.SetLevel(logrus.InfoLevel)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using default 'info'. Error: %v", level, err)
		return logger
	}
	logger.SetLevel(parsed)
	return logger
}

// Discard returns an entry that drops everything. Used by tests and library callers that pass no logger.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
