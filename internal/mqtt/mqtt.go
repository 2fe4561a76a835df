package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PetoAdam/homenavi/city-weather/internal/view"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const DefaultTopic = "homenavi/weather/view"

type Client struct {
	cli mqtt.Client
}

// Publisher is the surface the view publisher needs; it lets tests run
// without a broker.
type Publisher interface {
	PublishWith(topic string, payload []byte, retain bool) error
}

// New connects to brokerURL (mqtt://, tcp://, ssl://, tls://, ws://, wss://).
func New(brokerURL string) (*Client, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	opts := mqtt.NewClientOptions()
	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	opts.AddBroker(server)
	opts.SetClientID("city-weather-" + uuid.NewString()[:8])
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c mqtt.Client) { slog.Info("mqtt connected", "broker", u.Redacted()) }
	opts.OnConnectionLost = func(c mqtt.Client, err error) { slog.Error("mqtt connection lost", "error", err) }
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("connect mqtt: %w", t.Error())
	}
	return &Client{cli: cli}, nil
}

func (c *Client) PublishWith(topic string, payload []byte, retain bool) error {
	t := c.cli.Publish(topic, 0, retain, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (c *Client) Close() {
	c.cli.Disconnect(250)
}

// StatePublisher returns a view.Listener that publishes the rendered view,
// retained, to topic.
func StatePublisher(p Publisher, topic string) view.Listener {
	if topic == "" {
		topic = DefaultTopic
	}
	return func(s view.State) {
		b, err := json.Marshal(view.Render(s))
		if err != nil {
			slog.Error("encode view for mqtt", "error", err)
			return
		}
		if err := p.PublishWith(topic, b, true); err != nil {
			slog.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}
}
