// Package logging builds the process-wide zap logger, matching the
// teacher's cmd/api/main.go ambient logging stack.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap logger at the level named by level (one
// of CRITICAL/ERROR/WARNING/INFO/DEBUG per spec.md §6; CRITICAL maps to
// zap's DPanic, WARNING to zap's Warn).
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "CRITICAL":
		return zapcore.DPanicLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "WARNING":
		return zapcore.WarnLevel
	case "DEBUG":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
