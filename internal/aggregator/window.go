package aggregator

import (
	"fmt"
	"time"
)

// Window is a half-open [Start, End) merge interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// CurrentWindow computes the most recently completed window: the wall clock
// truncated down to the window size is the end, one size earlier the start.
// End timestamps are monotonically non-decreasing across successive runs.
func CurrentWindow(now time.Time, size time.Duration) Window {
	end := now.UTC().Truncate(size)
	return Window{Start: end.Add(-size), End: end}
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// SummaryKey returns the storage key for the window's summary artifact,
// keyed by the window end.
func (w Window) SummaryKey(prefix string) string {
	return fmt.Sprintf("%s/%sZ.json", prefix, w.End.UTC().Format("2006-01-02T15:04:05"))
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
