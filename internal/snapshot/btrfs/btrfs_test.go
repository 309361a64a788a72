package btrfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 30, 45, 123000000, time.UTC)
	assert.Equal(t, "2026-03-05T12:30:45.123Z", formatTimestamp(now))
}
