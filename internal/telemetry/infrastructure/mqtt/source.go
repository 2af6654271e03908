package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"coldstorage/internal/observability/metrics"
	telemetry "coldstorage/internal/telemetry/domain"
)

// Handler receives decoded events.
type Handler func(ctx context.Context, evt telemetry.Event) error

// Config holds broker settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Source subscribes to a broker topic carrying sensor event documents.
type Source struct {
	cfg     Config
	handler Handler
	logger  *log.Logger
	connect func(*paho.ClientOptions) paho.Client
}

// NewSource constructs a source.
func NewSource(cfg Config, handler Handler, logger *log.Logger) (*Source, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt source: empty broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt source: empty topic")
	}
	if handler == nil {
		return nil, errors.New("mqtt source: nil handler")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt source: invalid qos %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("coldstorage-%d", time.Now().Unix())
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Source{cfg: cfg, handler: handler, logger: logger, connect: paho.NewClient}, nil
}

// Run connects, subscribes and blocks until ctx is cancelled. The client
// reconnects and resubscribes on its own after a lost connection.
func (s *Source) Run(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	// Events of one sensor must reach the engine in publish order.
	opts.SetOrderMatters(true)

	opts.OnConnect = func(client paho.Client) {
		token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
			s.handleMessage(ctx, msg.Topic(), msg.Payload())
		})
		if !token.WaitTimeout(5 * time.Second) {
			s.logger.Printf("mqtt source: subscribe timeout for %s", s.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Printf("mqtt source: subscribe error: %v", err)
			return
		}
		s.logger.Printf("mqtt source: subscribed to %s", s.cfg.Topic)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.logger.Printf("mqtt source: connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		metrics.IncStreamReconnect("mqtt")
	}

	client := s.connect(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("mqtt source: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt source: connect: %w", err)
	}

	<-ctx.Done()
	client.Disconnect(1000)
	return nil
}

func (s *Source) handleMessage(ctx context.Context, topic string, payload []byte) {
	evt, err := telemetry.ParseEvent(payload)
	if err != nil {
		if !errors.Is(err, telemetry.ErrNotTemperature) {
			s.logger.Printf("mqtt source: %s decode error: %v", topic, err)
		}
		return
	}
	if err := s.handler(ctx, evt); err != nil {
		s.logger.Printf("mqtt source: %s handler error: %v", topic, err)
	}
}
