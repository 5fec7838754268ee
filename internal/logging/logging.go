package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type LogFormat int

const (
	LogTextFormat LogFormat = iota
	LogJSONFormat
)

func (f LogFormat) String() string {
	if f == LogTextFormat {
		return "text"
	}
	return "json"
}

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return LogTextFormat, nil
	case "json":
		return LogJSONFormat, nil
	}
	return LogTextFormat, fmt.Errorf("unknown log format %q", s)
}

type LogConfig struct {
	Format LogFormat
	Level  zerolog.Level
}

// ParseConfig builds a LogConfig from flag values.
func ParseConfig(format, level string) (LogConfig, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return LogConfig{}, err
	}
	if level == "" {
		level = "info"
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return LogConfig{}, fmt.Errorf("unknown log level %q", level)
	}
	return LogConfig{Format: f, Level: l}, nil
}

// ConfigureLogging uses the given conf to configure the global log.Logger variable.
func ConfigureLogging(conf LogConfig) zerolog.Logger {
	log.Logger = New(conf, os.Stderr)
	zerolog.SetGlobalLevel(conf.Level)
	return log.Logger
}

// New returns a logger writing to out in the configured format.
func New(conf LogConfig, out io.Writer) zerolog.Logger {
	if conf.Format == LogTextFormat {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(conf.Level).With().Timestamp().Logger()
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return zerolog.New(out).Level(conf.Level).With().
		Str("service", "adminsettings").
		Str("host", hostname).
		Timestamp().
		Logger()
}
