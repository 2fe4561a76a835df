package view

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/PetoAdam/homenavi/city-weather/internal/forecast"
	"github.com/PetoAdam/homenavi/city-weather/internal/models"
	"github.com/PetoAdam/homenavi/city-weather/internal/owm"

	"github.com/google/uuid"
)

// Source is the weather lookup the controller depends on. *owm.Client and
// *owm.Demo satisfy it.
type Source interface {
	CurrentWeather(ctx context.Context, query string) (models.CurrentWeather, error)
	Forecast(ctx context.Context, query string) ([]models.ForecastEntry, error)
}

// State is a copy of the controller's slots.
type State struct {
	Query      string
	Current    *models.CurrentWeather
	Daily      []models.ForecastEntry
	Generation uint64
}

// Outcome describes what one Submit did. Err is the current-weather failure,
// ForecastErr the forecast failure. Superseded means a newer submission
// started before this one could apply its results. ID tags the submission's
// log lines.
type Outcome struct {
	ID          string
	Query       string
	Generation  uint64
	Err         error
	ForecastErr error
	Superseded  bool
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.ForecastErr == nil && !o.Superseded
}

// Kind is the failure kind of the first failed stage, or "".
func (o Outcome) Kind() owm.Kind {
	if o.Err != nil {
		return owm.KindOf(o.Err)
	}
	return owm.KindOf(o.ForecastErr)
}

type Listener func(State)

type Controller struct {
	source Source
	logger *slog.Logger

	mu         sync.Mutex
	query      string
	current    *models.CurrentWeather
	daily      []models.ForecastEntry
	generation uint64
	listeners  []Listener
}

func New(source Source, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{source: source, logger: logger}
}

// OnChange registers fn to receive a snapshot after every applied change.
// Listeners run on the goroutine that made the change, outside the lock.
func (c *Controller) OnChange(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	changed := c.query != q
	c.query = q
	snap, listeners := c.snapshotLocked(), c.listeners
	c.mu.Unlock()
	if changed {
		notify(listeners, snap)
	}
}

func (c *Controller) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Submit looks up the current query. An empty query is a no-op. The forecast
// is only fetched after the current weather was found, and failures leave the
// previous data in place. Results of a submission are dropped once a newer one
// has started.
func (c *Controller) Submit(ctx context.Context) Outcome {
	c.mu.Lock()
	query := strings.TrimSpace(c.query)
	if query == "" {
		c.mu.Unlock()
		return Outcome{Err: &owm.Error{Kind: owm.KindEmptyQuery, Op: "submit"}}
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	out := Outcome{ID: uuid.NewString(), Query: query, Generation: gen}
	log := c.logger.With("submission", out.ID, "query", query, "generation", gen)

	current, err := c.source.CurrentWeather(ctx, query)
	if err != nil {
		log.Warn("current weather lookup failed", "kind", owm.KindOf(err), "error", err)
		out.Err = err
		return out
	}
	if !c.apply(gen, func() { c.current = &current }) {
		log.Debug("dropping superseded current weather")
		out.Superseded = true
		return out
	}

	entries, err := c.source.Forecast(ctx, query)
	if err != nil {
		log.Warn("forecast lookup failed", "kind", owm.KindOf(err), "error", err)
		out.ForecastErr = err
		return out
	}
	daily := forecast.SelectDailySamples(entries)
	if !c.apply(gen, func() { c.daily = daily }) {
		log.Debug("dropping superseded forecast")
		out.Superseded = true
		return out
	}
	log.Info("weather updated", "location", current.Location, "days", len(daily))
	return out
}

// apply runs set under the lock if gen is still the latest submission and
// notifies listeners.
func (c *Controller) apply(gen uint64, set func()) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	set()
	snap, listeners := c.snapshotLocked(), c.listeners
	c.mu.Unlock()
	notify(listeners, snap)
	return true
}

func (c *Controller) snapshotLocked() State {
	s := State{Query: c.query, Generation: c.generation}
	if c.current != nil {
		cur := *c.current
		s.Current = &cur
	}
	s.Daily = append([]models.ForecastEntry(nil), c.daily...)
	return s
}

func notify(listeners []Listener, s State) {
	for _, fn := range listeners {
		fn(s)
	}
}
