package forecast

import (
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/models"
)

// SampleHour is the UTC hour whose sample represents a day.
const SampleHour = 12

// SelectDailySamples keeps the 12:00:00 UTC sample of each day, in input
// order. Days without that sample are skipped; if a day repeats it, the first
// one wins. The result is never nil.
func SelectDailySamples(entries []models.ForecastEntry) []models.ForecastEntry {
	out := make([]models.ForecastEntry, 0, len(entries)/8+1)
	seen := make(map[string]bool)
	for _, e := range entries {
		if !IsDailySample(e) {
			continue
		}
		day := time.Unix(e.Timestamp, 0).UTC().Format(time.DateOnly)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, e)
	}
	return out
}

// IsDailySample reports whether e is the midday sample of its UTC day.
func IsDailySample(e models.ForecastEntry) bool {
	t := time.Unix(e.Timestamp, 0).UTC()
	return t.Hour() == SampleHour && t.Minute() == 0 && t.Second() == 0
}
