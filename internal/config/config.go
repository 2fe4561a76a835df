package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"port"`
	OpenWeatherAPIKey  string        `mapstructure:"openweather_api_key"`
	OpenWeatherBaseURL string        `mapstructure:"openweather_base_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	LogLevel           string        `mapstructure:"log_level"`
	OTLPEndpoint       string        `mapstructure:"otlp_endpoint"`
	MQTTBrokerURL      string        `mapstructure:"mqtt_broker_url"`
	MQTTTopic          string        `mapstructure:"mqtt_topic"`
}

// Load reads defaults, an optional YAML file named by CONFIG_FILE, then the
// environment. The first env name bound to a key wins.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("port", "8095")
	v.SetDefault("openweather_base_url", "https://api.openweathermap.org/data/2.5/")
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("mqtt_topic", "homenavi/weather/view")

	binds := map[string][]string{
		"port":                 {"PORT", "CITY_WEATHER_PORT", "WEATHER_SERVICE_PORT"},
		"openweather_api_key":  {"OPENWEATHER_API_KEY"},
		"openweather_base_url": {"OPENWEATHER_BASE_URL"},
		"request_timeout":      {"OPENWEATHER_TIMEOUT"},
		"log_level":            {"LOG_LEVEL"},
		"otlp_endpoint":        {"OTEL_EXPORTER_OTLP_ENDPOINT"},
		"mqtt_broker_url":      {"MQTT_BROKER_URL"},
		"mqtt_topic":           {"MQTT_TOPIC"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("request_timeout must be positive, got %s", cfg.RequestTimeout)
	}
	return cfg, nil
}
