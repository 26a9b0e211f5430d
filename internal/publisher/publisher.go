// Package publisher publishes scan events to RabbitMQ as CloudEvents.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/netinspect/netinspect/internal/config"
	"github.com/netinspect/netinspect/internal/report"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Event types and their routing keys.
const (
	EventPortDiscovered = "netinspect.port.discovered"
	EventScanCompleted  = "netinspect.scan.completed"

	RoutingPortDiscovered = "discovered.port"
	RoutingScanCompleted  = "scan.completed"
)

const (
	eventSource    = "/netinspect/scanner"
	publishTimeout = 5 * time.Second
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends CloudEvents to a RabbitMQ topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zap.SugaredLogger
}

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	ID              string      `json:"id"`
	Time            string      `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`
}

// PortDiscoveredData is the payload of a port discovered event.
type PortDiscoveredData struct {
	ScanID         string `json:"scan_id"`
	IP             string `json:"ip"`
	Hostname       string `json:"hostname"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Service        string `json:"service,omitempty"`
	Banner         string `json:"banner"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

// ScanCompletedData is the payload of a scan completed event.
type ScanCompletedData struct {
	ScanID     string `json:"scan_id"`
	IP         string `json:"ip"`
	Hostname   string `json:"hostname"`
	OpenPorts  []int  `json:"open_ports"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// New connects to RabbitMQ and declares the events exchange.
func New(cfg config.RabbitMQConfig, logger *zap.SugaredLogger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newWithChannel(ch, cfg.Exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newWithChannel(ch channel, exchange string, logger *zap.SugaredLogger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger}, nil
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PortDiscovered publishes a port discovered event.
func (p *Publisher) PortDiscovered(ctx context.Context, scan *report.ScanReport, port report.PortResult) error {
	data := PortDiscoveredData{
		ScanID:         scan.ID,
		IP:             scan.IPAddress,
		Hostname:       scan.Hostname,
		Port:           int(port.Port),
		Protocol:       "tcp",
		Service:        port.Service,
		Banner:         port.Banner,
		ResponseTimeMS: port.ResponseTime.Milliseconds(),
	}
	return p.publish(ctx, createEvent(EventPortDiscovered, data), RoutingPortDiscovered)
}

// ScanCompleted publishes a scan completed event.
func (p *Publisher) ScanCompleted(ctx context.Context, scan *report.ScanReport) error {
	data := ScanCompletedData{
		ScanID:     scan.ID,
		IP:         scan.IPAddress,
		Hostname:   scan.Hostname,
		OpenPorts:  scan.Ports(),
		StartedAt:  scan.StartedAt.Format(time.RFC3339),
		FinishedAt: scan.FinishedAt.Format(time.RFC3339),
	}
	return p.publish(ctx, createEvent(EventScanCompleted, data), RoutingScanCompleted)
}

func createEvent(eventType string, data interface{}) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          eventSource,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC().Format(time.RFC3339),
		DataContentType: "application/json",
		Data:            data,
	}
}

func (p *Publisher) publish(ctx context.Context, event CloudEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/cloudevents+json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			MessageId:    event.ID,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debugw("Event published",
		"type", event.Type,
		"id", event.ID,
		"routing_key", routingKey,
	)
	return nil
}
