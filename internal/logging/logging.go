// Package logging bootstraps the zap loggers used throughout the ingestion
// pipeline, matching the donor monorepo's convention of a single
// zap.NewProduction() logger wired into every component at startup.
package logging

import "go.uber.org/zap"

// New builds a development zap logger when env is "dev" and a production
// zap logger otherwise. Callers in cmd/ingestd should defer
// logger.Sync() immediately after a successful call.
func New(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
