package logging

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"sync"

	"github.com/dsh2dsh/nbkp/config"
)

var facilities = map[string]syslog.Priority{
	"kern": syslog.LOG_KERN, "user": syslog.LOG_USER, "daemon": syslog.LOG_DAEMON,
	"local0": syslog.LOG_LOCAL0, "local1": syslog.LOG_LOCAL1, "local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3, "local4": syslog.LOG_LOCAL4, "local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6, "local7": syslog.LOG_LOCAL7,
}

// syslogHandler adapts a syslog.Writer to slog.Handler, picking the
// syslog severity from the record's level.
type syslogHandler struct {
	level slog.Leveler
	attrs []slog.Attr

	mu sync.Mutex
	w  *syslog.Writer
}

func newSyslogHandler(outlet config.LoggingOutletConfig, level slog.Level) (slog.Handler, error) {
	facility, ok := facilities[outlet.Facility]
	if !ok {
		return nil, fmt.Errorf("unknown syslog facility %q", outlet.Facility)
	}
	w, err := syslog.New(facility|syslog.LOG_INFO, "nbkp")
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}
	return &syslogHandler{level: level, w: w}, nil
}

func (h *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *syslogHandler) Handle(_ context.Context, r slog.Record) error {
	line := r.Message
	for _, a := range h.attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case r.Level >= slog.LevelError:
		return h.w.Err(line)
	case r.Level >= slog.LevelWarn:
		return h.w.Warning(line)
	case r.Level >= slog.LevelInfo:
		return h.w.Info(line)
	default:
		return h.w.Debug(line)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &syslogHandler{level: h.level, w: h.w}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *syslogHandler) WithGroup(_ string) slog.Handler {
	return h
}
