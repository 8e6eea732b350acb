// Package logging builds the logr.Logger every component logs through. The
// sink is zap; verbosity follows logr: V(n) is enabled when n is at most the
// configured verbosity.
package logging

import (
	"fmt"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Verbosity levels used with logr's V.
const (
	DEFAULT = 0
	VERBOSE = 1
	DEBUG   = 2
	TRACE   = 3
)

// Config selects the log format and verbosity.
type Config struct {
	// Format is "json" (default) or "console".
	Format string `toml:"format"`
	// Level is a zap level name: debug, info, warn or error.
	Level string `toml:"level"`
	// Verbosity enables logr V levels up to this value.
	Verbosity int `toml:"verbosity"`
}

// New builds a logger from cfg.
func New(cfg Config) (logr.Logger, error) {
	var zc zap.Config
	switch cfg.Format {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Sampling = nil

	lvl, err := level(cfg)
	if err != nil {
		return logr.Discard(), err
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := zc.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard(), fmt.Errorf("build zap logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

// level maps cfg to a zap level. logr V(n) logs at zap level -n, so a
// verbosity of n lowers the level to -n.
func level(cfg Config) (zapcore.Level, error) {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return lvl, fmt.Errorf("log level: %w", err)
		}
	}
	if cfg.Verbosity < 0 {
		return lvl, fmt.Errorf("log verbosity %d is negative", cfg.Verbosity)
	}
	if v := zapcore.Level(-cfg.Verbosity); cfg.Verbosity > 0 && v < lvl {
		lvl = v
	}
	return lvl, nil
}

// NewTestLogger logs through t at TRACE verbosity.
func NewTestLogger(t testing.TB) logr.Logger {
	return zapr.NewLogger(zaptest.NewLogger(t, zaptest.Level(zapcore.Level(-TRACE))))
}
