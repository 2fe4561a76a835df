package owm

import (
	"context"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/models"
)

// Demo serves stable sample data for a fixed set of cities so the screen stays
// usable when no API key is configured. Unknown cities are KindNotFound.
type Demo struct {
	now func() time.Time
}

func NewDemo() *Demo {
	return &Demo{now: time.Now}
}

type demoCity struct {
	name  string
	baseC float64
}

var demoCities = []demoCity{
	{name: "Budapest", baseC: 18},
	{name: "London", baseC: 13},
	{name: "New York", baseC: 16},
	{name: "Tokyo", baseC: 21},
	{name: "Paris", baseC: 17},
	{name: "Berlin", baseC: 14},
	{name: "Sydney", baseC: 23},
	{name: "San Francisco", baseC: 15},
	{name: "Amsterdam", baseC: 12},
	{name: "Vienna", baseC: 16},
}

var demoIcons = []string{"01d", "02d", "03d", "04d", "10d"}

func (d *Demo) lookup(op, query string) (demoCity, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return demoCity{}, &Error{Kind: KindEmptyQuery, Op: op}
	}
	for _, c := range demoCities {
		if strings.EqualFold(c.name, q) {
			return c, nil
		}
	}
	return demoCity{}, &Error{Kind: KindNotFound, Op: op, Err: errNoLocation}
}

func (d *Demo) CurrentWeather(_ context.Context, query string) (models.CurrentWeather, error) {
	city, err := d.lookup(opCurrent, query)
	if err != nil {
		return models.CurrentWeather{}, err
	}
	return models.CurrentWeather{
		Location:    city.name,
		TempC:       city.baseC + 4,
		Description: "clear sky",
		Icon:        "01d",
	}, nil
}

// Forecast returns 40 samples (5 days, every 3 hours) aligned to UTC 3-hour
// boundaries, like the upstream feed.
func (d *Demo) Forecast(_ context.Context, query string) ([]models.ForecastEntry, error) {
	city, err := d.lookup(opForecast, query)
	if err != nil {
		return nil, err
	}
	start := d.now().UTC().Truncate(3 * time.Hour).Add(3 * time.Hour)
	entries := make([]models.ForecastEntry, 0, 40)
	for i := 0; i < 40; i++ {
		t := start.Add(time.Duration(i) * 3 * time.Hour)
		entries = append(entries, models.ForecastEntry{
			Timestamp: t.Unix(),
			TempC:     city.baseC + float64((i%8)-3),
			Icon:      demoIcons[(i/8)%len(demoIcons)],
		})
	}
	return entries, nil
}
