package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/owm"
	"github.com/PetoAdam/homenavi/city-weather/internal/realtime"
	"github.com/PetoAdam/homenavi/city-weather/internal/view"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type testEnv struct {
	router http.Handler
	view   *view.Controller
	hub    *realtime.Hub
}

func newTestEnv(t *testing.T, source view.Source) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	controller := view.New(source, logger)
	hub := realtime.NewHub(func() view.Payload { return view.Render(controller.Snapshot()) })
	controller.OnChange(hub.PublishState)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		NewServer(source, controller, hub).RegisterRoutes(r)
	})
	return testEnv{router: r, view: controller, hub: hub}
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode json: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestWeatherLookup(t *testing.T) {
	env := newTestEnv(t, owm.NewDemo())

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "known city", target: "/api/weather?city=Berlin", want: http.StatusOK},
		{name: "unknown city", target: "/api/weather?city=Atlantis", want: http.StatusNotFound},
		{name: "missing city", target: "/api/weather", want: http.StatusBadRequest},
		{name: "blank city", target: "/api/weather?city=%20%20", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := do(t, env.router, http.MethodGet, tt.target, nil)
			if rw.Code != tt.want {
				t.Fatalf("expected %d, got %d body=%s", tt.want, rw.Code, rw.Body.String())
			}
		})
	}

	rw := do(t, env.router, http.MethodGet, "/api/weather?city=Berlin", nil)
	var resp lookupResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Current.Location != "Berlin" {
		t.Fatalf("unexpected location: %s", resp.Current.Location)
	}
	if len(resp.Daily) < 4 || len(resp.Daily) > 5 {
		t.Fatalf("expected 4-5 daily samples, got %d", len(resp.Daily))
	}
	if env.view.Snapshot().Current != nil {
		t.Fatalf("stateless lookup must not change the view")
	}
}

func TestWeatherLookup_UpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	env := newTestEnv(t, owm.New(upstream.URL, "k"))
	rw := do(t, env.router, http.MethodGet, "/api/weather?city=Paris", nil)
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestSetQueryAndSubmit(t *testing.T) {
	env := newTestEnv(t, owm.NewDemo())

	rw := do(t, env.router, http.MethodPut, "/api/view/query", map[string]string{"query": "Paris"})
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var p view.Payload
	_ = json.Unmarshal(rw.Body.Bytes(), &p)
	if p.Query != "Paris" || p.Current != nil {
		t.Fatalf("unexpected payload after query edit: %+v", p)
	}

	rw = do(t, env.router, http.MethodPost, "/api/view/submit", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Outcome.OK || resp.Outcome.Generation != 1 {
		t.Fatalf("unexpected outcome: %+v", resp.Outcome)
	}
	if resp.View.Current == nil || resp.View.Current.Location != "Paris" {
		t.Fatalf("unexpected view: %+v", resp.View)
	}
	if !strings.HasPrefix(resp.View.Current.IconURL, "https://openweathermap.org/img/wn/") {
		t.Fatalf("unexpected icon url: %s", resp.View.Current.IconURL)
	}
	if len(resp.View.Daily) == 0 || resp.View.Daily[0].Day == "" {
		t.Fatalf("expected daily forecast with day labels: %+v", resp.View.Daily)
	}
}

func TestSubmit_FailureKeepsViewAndReportsKind(t *testing.T) {
	env := newTestEnv(t, owm.NewDemo())

	do(t, env.router, http.MethodPost, "/api/view/submit", map[string]string{"query": "Paris"})
	rw := do(t, env.router, http.MethodPost, "/api/view/submit", map[string]string{"query": "Atlantis"})

	var resp submitResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Outcome.OK || resp.Outcome.Kind != owm.KindNotFound || resp.Outcome.Error != "city not found" {
		t.Fatalf("unexpected outcome: %+v", resp.Outcome)
	}
	if resp.View.Current == nil || resp.View.Current.Location != "Paris" {
		t.Fatalf("expected Paris to remain displayed, got %+v", resp.View.Current)
	}
	if resp.View.Query != "Atlantis" {
		t.Fatalf("expected query Atlantis, got %s", resp.View.Query)
	}
}

func TestSubmit_CompletesAfterCallerGivesUp(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/weather":
			_, _ = w.Write([]byte(`{"name":"Paris","main":{"temp":17.5},"weather":[{"description":"light rain","icon":"10d"}]}`))
		case "/forecast":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"list":[{"dt":1704110400,"main":{"temp":7.4},"weather":[{"icon":"02d"}]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	env := newTestEnv(t, owm.New(upstream.URL, "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	body := strings.NewReader(`{"query":"Paris"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/view/submit", body).WithContext(ctx)
	rw := httptest.NewRecorder()
	env.router.ServeHTTP(rw, req)

	var resp submitResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Outcome.OK || resp.Outcome.ForecastError != "" {
		t.Fatalf("expected complete submission, got %+v", resp.Outcome)
	}
	snap := env.view.Snapshot()
	if snap.Current == nil || snap.Current.Location != "Paris" {
		t.Fatalf("unexpected current: %+v", snap.Current)
	}
	if len(snap.Daily) != 1 || snap.Daily[0].Timestamp != 1704110400 {
		t.Fatalf("expected forecast to be applied, got %+v", snap.Daily)
	}
}

func TestSubmit_EmptyQuery(t *testing.T) {
	env := newTestEnv(t, owm.NewDemo())
	rw := do(t, env.router, http.MethodPost, "/api/view/submit", map[string]string{"query": ""})
	var resp submitResponse
	_ = json.Unmarshal(rw.Body.Bytes(), &resp)
	if resp.Outcome.Kind != owm.KindEmptyQuery || resp.Outcome.Generation != 0 {
		t.Fatalf("unexpected outcome: %+v", resp.Outcome)
	}
}

func TestBadBodies(t *testing.T) {
	env := newTestEnv(t, owm.NewDemo())

	req := httptest.NewRequest(http.MethodPut, "/api/view/query", strings.NewReader("{"))
	rw := httptest.NewRecorder()
	env.router.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rw.Code)
	}

	rw = do(t, env.router, http.MethodPut, "/api/view/query", map[string]string{})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing query, got %d", rw.Code)
	}
}

func TestWebSocket_EmitsOnSubmit(t *testing.T) {
	env := newTestEnv(t, owm.NewDemo())
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/view/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	read := func() realtime.Event {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read ws: %v", err)
		}
		var ev realtime.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	}

	if greeting := read(); greeting.View.Current != nil {
		t.Fatalf("expected empty greeting, got %+v", greeting.View)
	}

	body, _ := json.Marshal(map[string]string{"query": "Tokyo"})
	res, err := ts.Client().Post(ts.URL+"/api/view/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res.Body.Close()

	// query edit, current weather, forecast
	var last realtime.Event
	for i := 0; i < 3; i++ {
		last = read()
	}
	if last.View.Current == nil || last.View.Current.Location != "Tokyo" || len(last.View.Daily) == 0 {
		t.Fatalf("unexpected final event: %+v", last.View)
	}
}
