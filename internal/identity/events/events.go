// Package events publishes identity lifecycle events to Kafka. Events are
// notifications only: a delivery failure never undoes a confirmed ledger write.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"didgate/internal/platform/kafka/producer"
	"didgate/pkg/domain"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "identity.events"

// Type names an identity lifecycle event.
type Type string

const (
	TypePublished Type = "identity.published"
	TypeCleared   Type = "identity.cleared"
)

// Event is the JSON payload written to the topic.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Address      string    `json:"address"`
	DID          string    `json:"did"`
	Pointer      string    `json:"pointer,omitempty"`
	Image        string    `json:"image,omitempty"`
	SubmissionID string    `json:"submission_id"`
	Version      uint64    `json:"version,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t Type, owner domain.Address, occurredAt time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Address:    owner.String(),
		DID:        owner.DID(),
		OccurredAt: occurredAt.UTC(),
	}
}

// Sender delivers a message. *producer.Producer and *producer.NoopProducer satisfy it.
type Sender interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Publisher encodes events and hands them to a Sender.
type Publisher struct {
	sender Sender
	topic  string
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher. A nil sender discards events.
func NewPublisher(sender Sender, opts ...Option) *Publisher {
	if sender == nil {
		sender = producer.NewNoopProducer()
	}
	p := &Publisher{
		sender: sender,
		topic:  DefaultTopic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes ev keyed by the lower-cased owner address so all events for
// one identity land on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	msg := &producer.Message{
		Topic: p.topic,
		Key:   []byte(strings.ToLower(ev.Address)),
		Value: value,
		Headers: map[string]string{
			"event_id":   ev.ID,
			"event_type": string(ev.Type),
		},
	}
	if err := p.sender.Produce(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}

	p.logger.DebugContext(ctx, "identity event published",
		"event_type", ev.Type,
		"event_id", ev.ID,
		"address", ev.Address,
	)
	return nil
}
