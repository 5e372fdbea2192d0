package timing

import (
	"fmt"
	"time"
)

// LapTimePlaceholder is shown in place of a lap time that does not exist yet.
const LapTimePlaceholder = "--:--.---"

// FormatDuration renders a millisecond duration as M:SS.mmm. Minutes are not
// capped, so an hour renders as 60:00.000. ms must not be negative.
func FormatDuration(ms int64) string {
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000

	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
}

// FormatLap formats the lap time of l, or the placeholder if l is nil.
func FormatLap(l *Lap) string {
	if l == nil {
		return LapTimePlaceholder
	}

	return FormatDuration(l.LapMS)
}

func FormatClock(t time.Time) string {
	return t.Format("15:04:05")
}

func EpochMS(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
