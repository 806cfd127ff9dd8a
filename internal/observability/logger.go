package observability

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. Anything other than APP_ENV=production
// gets the development encoder.
func NewLogger() *zap.Logger {
	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		logger = zap.Must(zap.NewDevelopment())
	}
	return logger
}

// OrDevelopment returns logger, or a development logger when it is nil.
func OrDevelopment(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.Must(zap.NewDevelopment())
	}
	return logger
}
