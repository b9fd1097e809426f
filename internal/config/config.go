// Package config binds the demo binary's settings from flags, the
// environment and .env files, and builds the log sink and call logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/broady/calllog"
)

// Config holds the settings shared by every command. Embed it in a kong
// command struct with `embed:""`.
type Config struct {
	Addr          string   `help:"Address the server listens on." env:"CALLLOG_ADDR" default:":8080"`
	LogLevel      string   `help:"Minimum log level (debug, info, warn, error)." env:"CALLLOG_LOG_LEVEL" default:"info"`
	LogFormat     string   `help:"Log output format (json, text, tint, pretty)." env:"CALLLOG_LOG_FORMAT" default:"tint" enum:"json,text,tint,pretty"`
	SnapshotLimit int      `help:"Truncate argument and result snapshots to this many bytes; 0 keeps them whole." env:"CALLLOG_SNAPSHOT_LIMIT" default:"0"`
	Timezone      string   `help:"Time zone for record timestamps (IANA name or Local)." env:"CALLLOG_TIMEZONE" default:"Local"`
	Within        []string `help:"Endpoint patterns to log, e.g. Math.* or *.Get*." env:"CALLLOG_WITHIN" default:"*"`
	NoStacks      bool     `help:"Omit goroutine stacks from panic records." env:"CALLLOG_NO_STACKS"`
}

// LoadDotenv loads variables from the given .env files (".env" if none)
// without overriding the environment. Missing files are skipped.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Level parses LogLevel. "0" is accepted as debug.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "0":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NewSink creates the slog logger records are written to.
func (c *Config) NewSink(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	switch c.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})), nil
	case "", "pretty", "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
}

// NewLogger creates the call logger writing to sink.
func (c *Config) NewLogger(sink *slog.Logger) (*calllog.Logger, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	if c.SnapshotLimit < 0 {
		return nil, fmt.Errorf("snapshot limit must not be negative, got %d", c.SnapshotLimit)
	}
	return calllog.New(sink,
		calllog.WithLocation(loc),
		calllog.WithSnapshotLimit(c.SnapshotLimit),
		calllog.WithStackTraces(!c.NoStacks),
	), nil
}
