package cli

import (
	"fmt"
	"time"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/models"
	"chanlun/pkg/utils"
)

// FormatNullPrice formats a price cell, rendering an absent value as "-".
func FormatNullPrice(p chanlun.NullPrice) string {
	if !p.Valid {
		return "-"
	}
	return utils.FormatPrice(p.Value)
}

// FormatBarTime formats a bar timestamp in UTC with the interval's layout.
func FormatBarTime(t time.Time, layout string) string {
	if layout == "" {
		layout = time.RFC3339
	}
	return t.UTC().Format(layout)
}

// FormatRunCounts summarizes a run's structure counts.
func FormatRunCounts(run models.Run) string {
	return fmt.Sprintf("%d bars, %d strokes, %d segments, %d pivots",
		run.Bars, run.Strokes, run.Segments, run.Pivots)
}

// FormatAge renders how long ago t was, or "never" for the zero time.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
