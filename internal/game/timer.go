package game

import (
	"fmt"
	"time"
)

// TickInterval is how often a running round emits its elapsed time.
const TickInterval = time.Second

// FormatElapsed renders d as HH:MM:SS, each field zero padded to two digits.
// Fractions of a second are truncated; negative durations render as zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
