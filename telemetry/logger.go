// Package telemetry centralizes the kernel's structured logging and metrics
// surface: a zap logger tree rooted at one base logger with per-package
// Named() children, and a Prometheus registry served over a /metrics and
// /healthz HTTP endpoint (package orchestrator creates and serves one). This replaces the teacher's raw log.Printf calls with the
// structured-logging ambient stack the rest of the erigon/certenIO/prysm
// corpus carries regardless of any feature non-goal.
package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the root zap logger for a process. development=true
// selects a human-readable console encoder with debug level (suited to
// cmd/keytool and local runs); development=false selects JSON output at
// info level (suited to a production node).
func NewLogger(component string, development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build logger: %w", err)
	}
	return logger.Named(component), nil
}
