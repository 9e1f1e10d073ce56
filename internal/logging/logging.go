// Package logging builds the zap loggers used by the command line tool.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

type Style string

const (
	StyleTerminal Style = "terminal"
	StyleJSON     Style = "json"
	StyleNoop     Style = "noop"
)

type Config struct {
	Level Level
	Style Style
}

// NewLogger returns a logger writing to stderr. An unparsable level falls
// back to info and an unknown style to terminal.
func NewLogger(cfg *Config) *zap.Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	style := Style(strings.ToLower(string(cfg.Style)))
	if style == StyleNoop {
		return zap.NewNop()
	}

	level, err := zapcore.ParseLevel(string(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch style {
	case StyleJSON:
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(ec)
	default:
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	return zap.New(core)
}

// ParseStyle validates a style name.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(s)); st {
	case StyleTerminal, StyleJSON, StyleNoop:
		return st, nil
	case "":
		return StyleTerminal, nil
	}
	return "", fmt.Errorf("unknown log style %q", s)
}
