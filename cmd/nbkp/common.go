package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/logging"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

// withLogging installs cfg's logging outlets as the process-wide default
// and returns a context carrying the resulting base logger, so every
// subcommand logs consistently without repeating setup.
func withLogging(ctx context.Context, cfg *config.Config) (context.Context, error) {
	if err := logging.Init(cfg.Global.Logging); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return logging.With(ctx, slog.Default()), nil
}

// resolveEndpoints wraps internal/resolve.All with the transfer.Endpoints
// conversion every subcommand needs to build a runner or script.
func resolveEndpoints(cfg *config.Config) (transfer.Endpoints, error) {
	endpoints, err := resolve.All(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoints: %w", err)
	}
	return transfer.Endpoints(endpoints), nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
