// Package logger holds the process-wide logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config selects the log level: debug, info, warn or error. Defaults to info.
type Config struct {
	Level string `mapstructure:"level" json:"level"`
	// JSON switches to the JSON formatter, for piping runs into log tooling.
	JSON bool `mapstructure:"json" json:"json"`
}

func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

var (
	// Log is the global logger instance
	Log *logrus.Logger
)

func init() {
	// usable before Init is called
	Log = logrus.New()
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(textFormatter())
	Log.SetOutput(os.Stderr)
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// Init replaces the global logger. A nil config means info level text output.
func Init(cfg *Config) error {
	return InitWithOutput(cfg, os.Stderr)
}

// InitWithOutput is Init writing to w.
func InitWithOutput(cfg *Config, w io.Writer) error {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	l := logrus.New()
	l.SetLevel(level)
	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(textFormatter())
	}
	l.SetOutput(w)
	Log = l
	return nil
}

// WithFields creates logger entry with fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// WithField creates logger entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func Debugf(format string, args ...interface{}) {
	Log.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Log.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Log.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Log.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Log.Fatalf(format, args...)
}
