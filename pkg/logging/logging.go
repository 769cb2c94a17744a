package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. Production environments get JSON
// output at info level; everything else gets the human-readable development
// encoder at debug level.
func NewLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
