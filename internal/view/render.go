package view

import (
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/models"
)

type CurrentPayload struct {
	Location    string  `json:"location"`
	TempC       float64 `json:"temp_c"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	IconURL     string  `json:"icon_url"`
}

type DayPayload struct {
	Timestamp int64   `json:"dt"`
	Day       string  `json:"day"`
	TempC     float64 `json:"temp_c"`
	Icon      string  `json:"icon"`
	IconURL   string  `json:"icon_url"`
}

// Payload is what presentation clients render.
type Payload struct {
	Query      string          `json:"query"`
	Current    *CurrentPayload `json:"current"`
	Daily      []DayPayload    `json:"daily"`
	Generation uint64          `json:"generation"`
}

func Render(s State) Payload {
	p := Payload{
		Query:      s.Query,
		Daily:      make([]DayPayload, 0, len(s.Daily)),
		Generation: s.Generation,
	}
	if s.Current != nil {
		p.Current = &CurrentPayload{
			Location:    s.Current.Location,
			TempC:       s.Current.TempC,
			Description: s.Current.Description,
			Icon:        s.Current.Icon,
			IconURL:     models.IconURL(s.Current.Icon),
		}
	}
	for _, e := range s.Daily {
		p.Daily = append(p.Daily, DayPayload{
			Timestamp: e.Timestamp,
			Day:       time.Unix(e.Timestamp, 0).UTC().Weekday().String()[:3],
			TempC:     e.TempC,
			Icon:      e.Icon,
			IconURL:   models.IconURL(e.Icon),
		})
	}
	return p
}
