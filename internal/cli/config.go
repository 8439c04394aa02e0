package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/config"
	"github.com/synheart/vitalsynth/internal/logger"
)

// GlobalOptions are shared flags that apply across commands.
type GlobalOptions struct {
	EnvFile   string
	LogLevel  string
	LogFormat string
}

var globalOpts = GlobalOptions{
	EnvFile: ".env",
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalOpts.EnvFile)
	if err != nil {
		return nil, err
	}
	if globalOpts.LogLevel != "" {
		cfg.LogLevel = globalOpts.LogLevel
	}
	if globalOpts.LogFormat != "" {
		cfg.LogFormat = globalOpts.LogFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "vitalsynth")
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}
