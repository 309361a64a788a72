package config

import (
	"fmt"
	"strings"
)

// ConfigError accumulates every structural or referential problem found
// while loading a manifest, instead of stopping at the first one -- the
// same "never short-circuit, always collect" posture the preflight
// checker uses for VolumeReason/SyncReason (spec.md I5, I6).
type ConfigError struct {
	Messages []string
}

func (e *ConfigError) Error() string {
	return "invalid config:\n  - " + strings.Join(e.Messages, "\n  - ")
}

func (e *ConfigError) Add(format string, args ...interface{}) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

func (e *ConfigError) HasErrors() bool {
	return len(e.Messages) > 0
}

// ErrOrNil returns e as an error if it has accumulated any messages, nil
// otherwise. Use this to convert an accumulator into a single returnable
// error at the end of a validation pass.
func (e *ConfigError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
