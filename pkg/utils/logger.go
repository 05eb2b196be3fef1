package utils

import "go.uber.org/zap"

// NewLogger builds the process-wide zap logger. Debug mode uses the
// development config (console encoder, debug level) for working on a
// project locally; otherwise the production config (JSON, info level,
// sampling) is used.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
