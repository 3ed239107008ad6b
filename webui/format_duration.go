package webui

import (
	"fmt"
	"time"
)

// durationUnits are the units FormatDuration renders, largest first.
var durationUnits = []struct {
	size   time.Duration
	suffix string
}{
	{7 * 24 * time.Hour, "w"},
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// FormatDuration renders d with at most two units, e.g. "45s", "2m 30s",
// "3d 5h". Sub-second durations render as "0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}

	for i, unit := range durationUnits {
		if d < unit.size {
			continue
		}
		major := d / unit.size
		if i == len(durationUnits)-1 {
			return fmt.Sprintf("%d%s", major, unit.suffix)
		}
		next := durationUnits[i+1]
		minor := (d % unit.size) / next.size
		return fmt.Sprintf("%d%s %d%s", major, unit.suffix, minor, next.suffix)
	}
	return "0s"
}
