package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger named "emaki". When debug is true it uses the development
// config (console encoding, debug level); otherwise the production config (JSON, info level).
// Logs always go to stderr so command output on stdout stays parseable.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("emaki"), nil
}
