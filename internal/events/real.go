package events

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/config"
	"github.com/afroash/pump-controller/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string
	logger zerolog.Logger
}

// NewRealPublisher connects to the broker named in cfg.
func NewRealPublisher(cfg config.MQTTSettings, logger zerolog.Logger) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

// Publish sends an event at QoS 1, not retained.
func (p *RealPublisher) Publish(ev models.Event) error {
	payload, err := FormatPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(p.topic+"/"+string(ev.Type), 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
