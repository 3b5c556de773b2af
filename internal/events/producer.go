package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicAuthEvents = "auth.events"

	EventUserRegistered = "user.registered"
	EventUserLoggedOut  = "user.logged_out"
	EventPasswordReset  = "user.password_reset"
)

type Event struct {
	Type       string    `json:"type"`
	UserID     uint      `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits auth lifecycle events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, userID uint) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicAuthEvents,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, userID uint) error {
	ev := Event{Type: eventType, UserID: userID, OccurredAt: time.Now().UTC()}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", userID)),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, uint) error { return nil }
func (NoopPublisher) Close() error                                { return nil }

func NewFromBrokers(brokers []string) Publisher {
	if len(brokers) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(brokers)
}
