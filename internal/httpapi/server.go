package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/PetoAdam/homenavi/city-weather/internal/forecast"
	"github.com/PetoAdam/homenavi/city-weather/internal/models"
	"github.com/PetoAdam/homenavi/city-weather/internal/owm"
	"github.com/PetoAdam/homenavi/city-weather/internal/view"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	source view.Source
	view   *view.Controller
	ws     http.Handler
}

// NewServer wires the routes. ws may be nil, in which case /view/ws is not
// registered.
func NewServer(source view.Source, controller *view.Controller, ws http.Handler) *Server {
	return &Server{source: source, view: controller, ws: ws}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/weather", s.handleWeather)
	r.Get("/view", s.handleGetView)
	r.Put("/view/query", s.handleSetQuery)
	r.Post("/view/submit", s.handleSubmit)
	if s.ws != nil {
		r.Handle("/view/ws", s.ws)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type lookupResponse struct {
	Current models.CurrentWeather  `json:"current"`
	Daily   []models.ForecastEntry `json:"daily"`
}

// handleWeather is a stateless lookup that does not touch the view.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'city' is required")
		return
	}

	current, err := s.source.CurrentWeather(r.Context(), city)
	if err != nil {
		writeLookupError(w, err, "failed to fetch weather")
		return
	}
	entries, err := s.source.Forecast(r.Context(), city)
	if err != nil {
		writeLookupError(w, err, "failed to fetch forecast")
		return
	}

	writeJSON(w, http.StatusOK, lookupResponse{Current: current, Daily: forecast.SelectDailySamples(entries)})
}

func writeLookupError(w http.ResponseWriter, err error, msg string) {
	switch owm.KindOf(err) {
	case owm.KindNotFound:
		writeError(w, http.StatusNotFound, "city not found")
	case owm.KindEmptyQuery:
		writeError(w, http.StatusBadRequest, "city is required")
	default:
		writeError(w, http.StatusBadGateway, msg)
	}
}

func (s *Server) handleGetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.Render(s.view.Snapshot()))
}

type queryRequest struct {
	Query *string `json:"query"`
}

func decodeQuery(r *http.Request) (queryRequest, error) {
	var req queryRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req)
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	return req, err
}

func (s *Server) handleSetQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == nil {
		writeError(w, http.StatusBadRequest, "field 'query' is required")
		return
	}
	s.view.SetQuery(*req.Query)
	writeJSON(w, http.StatusOK, view.Render(s.view.Snapshot()))
}

type outcomeResponse struct {
	ID            string   `json:"id,omitempty"`
	OK            bool     `json:"ok"`
	Kind          owm.Kind `json:"kind,omitempty"`
	Error         string   `json:"error,omitempty"`
	ForecastError string   `json:"forecast_error,omitempty"`
	Superseded    bool     `json:"superseded,omitempty"`
	Generation    uint64   `json:"generation"`
}

type submitResponse struct {
	View    view.Payload    `json:"view"`
	Outcome outcomeResponse `json:"outcome"`
}

// handleSubmit optionally replaces the query, then submits it. Lookup failures
// are reported in the outcome, not as HTTP errors; the view keeps its data.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query != nil {
		s.view.SetQuery(*req.Query)
	}

	// A submission runs to completion even if the caller goes away.
	out := s.view.Submit(context.WithoutCancel(r.Context()))
	resp := submitResponse{
		View: view.Render(s.view.Snapshot()),
		Outcome: outcomeResponse{
			ID:         out.ID,
			OK:         out.OK(),
			Kind:       out.Kind(),
			Superseded: out.Superseded,
			Generation: out.Generation,
		},
	}
	if out.Err != nil {
		resp.Outcome.Error = errorText(out.Kind())
	}
	if out.ForecastErr != nil {
		resp.Outcome.ForecastError = errorText(owm.KindOf(out.ForecastErr))
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorText keeps upstream details (and the credential in URLs) out of
// responses.
func errorText(k owm.Kind) string {
	switch k {
	case owm.KindEmptyQuery:
		return "query is empty"
	case owm.KindNotFound:
		return "city not found"
	case owm.KindParse:
		return "unexpected response from weather service"
	default:
		return "weather service unreachable"
	}
}
