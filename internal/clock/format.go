package clock

import (
	"fmt"
	"math"

	"timeronline/backend/internal/model"
)

const secondsPerDay = 86400

// Centiseconds is the hundredths digit pair shown next to the seconds.
func Centiseconds(seconds float64) int {
	return int(math.Floor(math.Mod(math.Abs(seconds), 1) * 100))
}

// Format renders a display value in the given view, e.g. "1d 02:03:04.50",
// "62m 03.50s" or "3723.50s".
func Format(seconds float64, mode model.DisplayMode) string {
	total := math.Abs(seconds)
	centis := Centiseconds(seconds)

	switch mode {
	case model.DisplaySeconds:
		return fmt.Sprintf("%d.%02ds", int64(math.Floor(total)), centis)
	case model.DisplayMinutes:
		minutes := int64(math.Floor(total / 60))
		secs := int64(math.Floor(math.Mod(total, 60)))
		return fmt.Sprintf("%dm %02d.%02ds", minutes, secs, centis)
	default:
		return fmt.Sprintf("%s.%02d", FormatWhole(total), centis)
	}
}

// FormatWhole renders whole seconds as [Nd ]HH:MM:SS.
func FormatWhole(seconds float64) string {
	total := int64(math.Floor(math.Abs(seconds)))
	days := total / secondsPerDay
	hours := (total % secondsPerDay) / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	hms := fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, hms)
	}
	return hms
}
