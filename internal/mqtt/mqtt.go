package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	client mqtt.Client
}

type Message struct {
	mqtt.Message
}

func (m Message) Retained() bool { return m.Message.Retained() }

type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// ConnectTimeout bounds the initial connect; zero means 15s.
	ConnectTimeout time.Duration
}

// BrokerAddress rewrites mqtt:// and mqtts:// URLs into the tcp:// and ssl://
// schemes paho expects.
func BrokerAddress(raw string) string {
	url := strings.TrimSpace(raw)
	switch {
	case url == "":
		return "tcp://localhost:1883"
	case strings.HasPrefix(url, "mqtt://"):
		return "tcp://" + strings.TrimPrefix(url, "mqtt://")
	case strings.HasPrefix(url, "mqtts://"):
		return "ssl://" + strings.TrimPrefix(url, "mqtts://")
	}
	return url
}

func Connect(o Options) (*Client, error) {
	opts := mqtt.NewClientOptions()
	url := BrokerAddress(o.BrokerURL)
	opts.AddBroker(url)
	clientID := strings.TrimSpace(o.ClientID)
	if clientID == "" {
		clientID = "crane-telemetry-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(clientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if strings.HasPrefix(url, "ssl://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		slog.Info("mqtt connected", "broker", url)
	}

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	// With connect retry on, an unreachable broker leaves the token pending
	// and error-free; stop the retry loop and report the timeout.
	if ok := tok.WaitTimeout(timeout); !ok {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s timed out after %s", url, timeout)
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

// Subscribe uses QoS 1, so gateways may redeliver; the ingest dedup guard
// absorbs the repeats.
func (c *Client) Subscribe(topic string, handler func(Message)) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("mqtt subscribe %s: client not connected", topic)
	}
	tok := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(Message{Message: msg})
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
