// Package logging provides a small structured-logging façade over
// log/slog, tagging every record with the subsystem that emitted it and
// fanning out to the outlets (colorized stdout, syslog) configured in
// the manifest's Global.Logging section.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dsh2dsh/nbkp/config"
)

// Subsystem names the part of nbkp a log record originated from.
type Subsystem string

const (
	SubsysConfig    Subsystem = "config"
	SubsysPreflight Subsystem = "preflight"
	SubsysRunner    Subsystem = "runner"
	SubsysSnapshot  Subsystem = "snapshot"
	SubsysSSH       Subsystem = "ssh"
	SubsysScriptgen Subsystem = "scriptgen"
)

type ctxKey struct{}

// With returns a context carrying logger, so downstream GetLogger calls
// inherit its attributes (e.g. a sync slug attached once at the top of
// a run) without every call site re-specifying them.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// GetLogger returns the logger carried by ctx (or slog.Default() if
// none was attached), tagged with subsys.
func GetLogger(ctx context.Context, subsys Subsystem) *slog.Logger {
	logger, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("subsystem", string(subsys)))
}

// levelFromString maps the manifest's "debug"/"info"/"warn"/"error"
// strings onto slog.Level; invalid or empty values default to Info.
func levelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the fan-out slog.Handler described by cfg, one
// handler per configured outlet.
func NewHandler(cfg config.LoggingConfig) (slog.Handler, error) {
	level := levelFromString(cfg.Level)
	handlers := make([]slog.Handler, 0, len(cfg.Outlets))
	for _, outlet := range cfg.Outlets {
		h, err := newOutletHandler(outlet, level)
		if err != nil {
			return nil, fmt.Errorf("logging: outlet %q: %w", outlet.Type, err)
		}
		handlers = append(handlers, h)
	}
	if len(handlers) == 0 {
		handlers = append(handlers, newStdoutHandler(config.LoggingOutletConfig{Color: true}, level))
	}
	return fanoutHandler{handlers: handlers}, nil
}

func newOutletHandler(outlet config.LoggingOutletConfig, level slog.Level) (slog.Handler, error) {
	switch outlet.Type {
	case config.LoggingOutletStdout:
		return newStdoutHandler(outlet, level), nil
	case config.LoggingOutletSyslog:
		return newSyslogHandler(outlet, level)
	default:
		return nil, fmt.Errorf("unknown outlet type %q", outlet.Type)
	}
}

func newStdoutHandler(outlet config.LoggingOutletConfig, level slog.Level) slog.Handler {
	if outlet.Color {
		return &colorHandler{level: level, out: os.Stdout}
	}
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}

// Init installs the handler built from cfg as the process-wide default
// logger, so code that never received a context-scoped logger still
// logs through the configured outlets.
func Init(cfg config.LoggingConfig) error {
	h, err := NewHandler(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}
