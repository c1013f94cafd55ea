// Package notify publishes alerts to an MQTT broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/models"
	"github.com/afroash/worker-monitor/internal/monitor"
)

// SubjectPlaceholder is replaced with the subject id in topic patterns.
const SubjectPlaceholder = "{subject}"

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultQueueSize      = 100
)

// Config holds broker and topic settings for the publisher
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string // e.g. "worker-monitor/{subject}/alerts"
	QoS            byte
	ConnectTimeout time.Duration
	QueueSize      int
}

// Stats counts publisher outcomes
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Publisher sends every alert raised by a cycle to the broker.
// Publishing runs on its own goroutine so a slow broker never delays a cycle.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger zerolog.Logger

	queue    chan models.Alert
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// Connect dials the broker and starts the publish loop
func Connect(cfg Config, logger zerolog.Logger) (*Publisher, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger = logger.With().Str("component", "notify").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("MQTT connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	p := &Publisher{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		logger:   logger,
		queue:    make(chan models.Alert, cfg.QueueSize),
		stopChan: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.publishLoop()

	return p, nil
}

// FormatTopic replaces the {subject} placeholder with the subject id
func FormatTopic(pattern, subjectID string) string {
	return strings.ReplaceAll(pattern, SubjectPlaceholder, subjectID)
}

// Present queues the alerts of a successful cycle.
func (p *Publisher) Present(ctx context.Context, result monitor.TickResult) {
	for _, a := range result.Alerts {
		p.Enqueue(a)
	}
}

// Enqueue queues one alert. It returns false when the alert was dropped.
func (p *Publisher) Enqueue(a models.Alert) bool {
	select {
	case <-p.stopChan:
		return false
	default:
	}

	select {
	case p.queue <- a:
		return true
	default:
		p.mu.Lock()
		p.stats.Dropped++
		p.mu.Unlock()
		p.logger.Warn().Str("subject", a.SubjectID).Str("kind", string(a.Kind)).Msg("Alert queue full, dropping alert")
		return false
	}
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for {
		select {
		case a := <-p.queue:
			p.publish(a)
		case <-p.stopChan:
			for {
				select {
				case a := <-p.queue:
					p.publish(a)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(a models.Alert) {
	topic := FormatTopic(p.topic, a.SubjectID)
	err := p.send(topic, a)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.Failed++
		p.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish alert")
		return
	}
	p.stats.Published++
	p.logger.Debug().Str("topic", topic).Str("kind", string(a.Kind)).Msg("Alert published")
}

func (p *Publisher) send(topic string, a models.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// Stats returns publisher counters
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close publishes whatever is queued and disconnects
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		p.client.Disconnect(250)
		p.logger.Info().Msg("MQTT publisher closed")
	})
}
