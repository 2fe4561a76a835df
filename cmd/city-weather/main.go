package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/config"
	"github.com/PetoAdam/homenavi/city-weather/internal/httpapi"
	"github.com/PetoAdam/homenavi/city-weather/internal/mqtt"
	"github.com/PetoAdam/homenavi/city-weather/internal/observability"
	"github.com/PetoAdam/homenavi/city-weather/internal/owm"
	"github.com/PetoAdam/homenavi/city-weather/internal/realtime"
	"github.com/PetoAdam/homenavi/city-weather/internal/view"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const serviceName = "city-weather"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	shutdownObs, promHandler, tracer := observability.SetupObservability(serviceName, cfg.OTLPEndpoint)
	defer shutdownObs()

	var source view.Source
	if cfg.OpenWeatherAPIKey == "" {
		slog.Warn("OPENWEATHER_API_KEY not set; serving demo data")
		source = owm.NewDemo()
	} else {
		source = owm.New(cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey, owm.WithTimeout(cfg.RequestTimeout))
	}

	controller := view.New(source, logger)
	hub := realtime.NewHub(func() view.Payload { return view.Render(controller.Snapshot()) })
	controller.OnChange(hub.PublishState)

	if cfg.MQTTBrokerURL != "" {
		mq, err := mqtt.New(cfg.MQTTBrokerURL)
		if err != nil {
			slog.Error("mqtt unavailable; view changes will not be published", "error", err)
		} else {
			defer mq.Close()
			controller.OnChange(mqtt.StatePublisher(mq, cfg.MQTTTopic))
		}
	}

	srv := httpapi.NewServer(source, controller, hub)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(observability.MetricsAndTracingMiddleware(tracer, serviceName))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Trace-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promHandler)

	r.Route("/api", func(r chi.Router) {
		srv.RegisterRoutes(r)
	})

	// No WriteTimeout: /api/view/ws connections are long-lived.
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("city-weather started", "port", cfg.Port, "demo", cfg.OpenWeatherAPIKey == "")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
