package models

import "fmt"

const iconURLPattern = "https://openweathermap.org/img/wn/%s@2x.png"

// CurrentWeather is a present-moment observation for a resolved location.
type CurrentWeather struct {
	Location    string  `json:"location"`
	TempC       float64 `json:"temp_c"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// ForecastEntry is one 3-hour forecast sample. Timestamp is unix seconds.
type ForecastEntry struct {
	Timestamp int64   `json:"dt"`
	TempC     float64 `json:"temp_c"`
	Icon      string  `json:"icon"`
}

// IconURL returns the OpenWeatherMap asset URL for an upstream icon code.
func IconURL(code string) string {
	if code == "" {
		return ""
	}
	return fmt.Sprintf(iconURLPattern, code)
}
