package owm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/models"
	"github.com/PetoAdam/homenavi/city-weather/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/"

const (
	opCurrent  = "current weather"
	opForecast = "forecast"
)

var (
	errNoLocation = errors.New("response has no location name")
	errNoList     = errors.New("response has no forecast list")
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the request timeout on a copy of the current client, so a
// client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	c := &Client{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tracer: otel.Tracer("city-weather/owm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type currentPayload struct {
	Name string `json:"name"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type forecastPayload struct {
	List []struct {
		Dt    int64  `json:"dt"`
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Icon string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

// CurrentWeather looks up present conditions for a city name. A response
// without a location name is reported as KindNotFound.
func (c *Client) CurrentWeather(ctx context.Context, query string) (models.CurrentWeather, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.CurrentWeather{}, &Error{Kind: KindEmptyQuery, Op: opCurrent}
	}

	ctx, span := c.tracer.Start(ctx, "owm.current_weather", trace.WithAttributes(attribute.String("owm.query", query)))
	defer span.End()

	var payload currentPayload
	err := c.fetchJSON(ctx, c.endpoint("weather", query), &payload)
	if err == nil && payload.Name == "" {
		err = &Error{Kind: KindNotFound, Err: errNoLocation}
	}
	if err != nil {
		return models.CurrentWeather{}, c.fail(ctx, span, "weather", opCurrent, err)
	}

	current := models.CurrentWeather{
		Location: payload.Name,
		TempC:    payload.Main.Temp,
	}
	if len(payload.Weather) > 0 {
		current.Description = payload.Weather[0].Description
		current.Icon = payload.Weather[0].Icon
	}
	observability.RecordLookup(ctx, "weather", "ok")
	return current, nil
}

// Forecast looks up the 5-day/3-hour forecast for a city name. Entries keep
// upstream order. An absent or empty list is reported as KindNotFound.
func (c *Client) Forecast(ctx context.Context, query string) ([]models.ForecastEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Kind: KindEmptyQuery, Op: opForecast}
	}

	ctx, span := c.tracer.Start(ctx, "owm.forecast", trace.WithAttributes(attribute.String("owm.query", query)))
	defer span.End()

	var payload forecastPayload
	err := c.fetchJSON(ctx, c.endpoint("forecast", query), &payload)
	if err == nil && len(payload.List) == 0 {
		err = &Error{Kind: KindNotFound, Err: errNoList}
	}
	if err != nil {
		return nil, c.fail(ctx, span, "forecast", opForecast, err)
	}

	entries := make([]models.ForecastEntry, 0, len(payload.List))
	for _, item := range payload.List {
		dt := item.Dt
		if dt == 0 && item.DtTxt != "" {
			if t, perr := time.Parse(time.DateTime, item.DtTxt); perr == nil {
				dt = t.Unix()
			}
		}
		entry := models.ForecastEntry{Timestamp: dt, TempC: item.Main.Temp}
		if len(item.Weather) > 0 {
			entry.Icon = item.Weather[0].Icon
		}
		entries = append(entries, entry)
	}
	span.SetAttributes(attribute.Int("owm.entries", len(entries)))
	observability.RecordLookup(ctx, "forecast", "ok")
	return entries, nil
}

func (c *Client) endpoint(path, query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("units", "metric")
	v.Set("appid", c.apiKey)
	return c.baseURL + path + "?" + v.Encode()
}

func (c *Client) fetchJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Drop the URL from the error; it carries the credential.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s request failed: %w", uerr.Op, uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindParse, Err: err}
	}
	return nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, endpoint, op string, err error) error {
	kind := classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	observability.RecordLookup(ctx, endpoint, string(kind))

	var e *Error
	if errors.As(err, &e) {
		err = e.Err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if StatusCode(err) == http.StatusNotFound {
		return KindNotFound
	}
	return KindTransport
}
