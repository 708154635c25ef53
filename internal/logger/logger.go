// Package logger bootstraps the process-wide zap logger. Library packages
// receive a *zap.Logger explicitly; this package only owns construction.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a logger for the given level ("debug", "info", "warn",
// "error"). An empty level means info. Development mode switches to the
// console encoder.
func New(level string, development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
