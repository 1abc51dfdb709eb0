package config

import "go.uber.org/zap"

// NewLogger builds the root logger: JSON in production, console otherwise
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
