package main

import (
	"context"
	"fmt"
	"strings"

	"viralforge/internal/config"
	"viralforge/internal/daemonrun"
)

const (
	configEnvVar   = "VIRALFORGE_CONFIG"
	logLevelEnvVar = "VIRALFORGE_LOG_LEVEL"
)

// loadConfig resolves the daemon configuration. An empty path falls back to
// the default search order.
func loadConfig(path string) (*config.Config, error) {
	cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	if path != "" && !exists {
		return nil, fmt.Errorf("config file %s does not exist", resolved)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logLevel string) error {
	return daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: strings.TrimSpace(logLevel)})
}
