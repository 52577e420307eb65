// Package logger builds the process-wide logrus logger from configuration.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/youneslaaroussi/dealwhisperer/internal/config"
	"golang.org/x/term"
)

// New returns a logger writing to out (stdout when nil). Production and
// staging environments log JSON; everything else logs text, colored only
// when out is a terminal.
func New(cfg config.LogConfig, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stdout
	}
	log := logrus.New()
	log.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		log.Warnf("invalid log level %q, defaulting to info", cfg.Level)
	} else {
		log.SetLevel(level)
	}

	switch cfg.Environment {
	case "production", "staging":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     isTerminal(out),
		})
	}
	return log
}

// Component returns an entry tagged with the component name. A nil logger
// falls back to the logrus standard logger so packages can be used without
// wiring.
func Component(log logrus.FieldLogger, name string) logrus.FieldLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("component", name)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
