// Package events publishes run and upload lifecycle events to RabbitMQ.
// The publisher is optional: a nil *Publisher is safe to call and drops
// everything, so the orchestrator does not branch on whether a broker is
// configured.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/contentflow/uploadflow/pkg/logger"
)

const (
	RoutingUploadCompleted = "upload.completed"
	RoutingUploadFailed    = "upload.failed"
	RoutingRunStarted      = "run.started"
	RoutingRunFinished     = "run.finished"
	RoutingNetworkDropped  = "network.dropped"
	RoutingNetworkRecover  = "network.recovered"
)

// Event is the wire envelope for every message on the exchange.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type UploadEvent struct {
	ProfileID string `json:"profile_id"`
	Bookmark  string `json:"bookmark"`
	VideoFile string `json:"video_file"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
}

type RunEvent struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome,omitempty"`
	Uploads   int    `json:"uploads,omitempty"`
	Profiles  int    `json:"profiles,omitempty"`
}

type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      logger.Logger
}

// NewPublisher connects and declares the topic exchange. Callers that run
// without a broker simply keep a nil *Publisher.
func NewPublisher(url, exchange string, log logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Info("Connected to RabbitMQ", logger.Field{Key: "exchange", Value: exchange})

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      log,
	}, nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Publish sends one event. Failures are logged, not returned: event
// delivery is advisory and must never fail an upload.
func (p *Publisher) Publish(routingKey string, data interface{}) {
	if p == nil {
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      routingKey,
		Timestamp: time.Now(),
		Data:      data,
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event",
			logger.Field{Key: "type", Value: routingKey},
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	err = p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   event.Timestamp,
	})
	if err != nil {
		p.log.Error("Failed to publish event",
			logger.Field{Key: "type", Value: routingKey},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (p *Publisher) UploadCompleted(ev UploadEvent) {
	p.Publish(RoutingUploadCompleted, ev)
}

func (p *Publisher) UploadFailed(ev UploadEvent) {
	p.Publish(RoutingUploadFailed, ev)
}

func (p *Publisher) RunStarted(ev RunEvent) {
	p.Publish(RoutingRunStarted, ev)
}

func (p *Publisher) RunFinished(ev RunEvent) {
	p.Publish(RoutingRunFinished, ev)
}

func (p *Publisher) NetworkDropped(status string) {
	p.Publish(RoutingNetworkDropped, map[string]string{"status": status})
}

func (p *Publisher) NetworkRecovered() {
	p.Publish(RoutingNetworkRecover, map[string]string{"status": "stable"})
}
