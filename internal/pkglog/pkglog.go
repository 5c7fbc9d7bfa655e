// Package pkglog holds the process-global logger every other package
// logs through, initialized once at startup from internal/config.
package pkglog

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/AuthurNero/pkgj/internal/config"
)

// Log is the global, threadsafe logger shared by the pipeline,
// dispatcher, and CLI.
var Log = logrus.StandardLogger()

// Init configures Log from cfg and should be called once on startup,
// before any pipeline or dispatcher code runs.
func Init(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	if cfg.LogFilePath != "" {
		f, err := os.OpenFile(cfg.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("pkglog: opening log file %s: %w", cfg.LogFilePath, err)
		}
		w = f
	}

	level := logrus.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("pkglog: parsing log level %q: %w", cfg.LogLevel, err)
		}
		level = parsed
	}

	Log = &logrus.Logger{
		Out: w,
		Formatter: &logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			DisableSorting:  true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}
	return nil
}
