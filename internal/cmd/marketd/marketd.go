// Package marketd parses marketplace service flags and launches the service.
package marketd

import (
	"context"
	"flag"

	server "github.com/mintbay/mintbay/internal/market/app"
	entrypoint "github.com/mintbay/mintbay/internal/platform/cmd"
)

// Config holds marketd command configuration.
type Config struct {
	Port int `env:"MINTBAY_MARKETD_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The marketplace HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the marketplace HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMarket, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
