package logger

import (
	"go.uber.org/zap"
)

// New builds a zap logger appropriate for the given environment.
// "production" gets JSON output, everything else gets the console encoder.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
