// Package report renders conformance run results for terminals and files.
package report

import (
	"fmt"
	"time"
)

// formatDuration formats a duration for human-readable output.
// Handles microseconds, milliseconds, seconds, and minutes.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.0fµs", float64(d.Microseconds()))
	}

	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}

	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	return fmt.Sprintf("%.1fm", d.Minutes())
}
