package observability

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Publisher delivers a JSON event to the broker under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// EventMeta identifies a published event.
type EventMeta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
}

// EventEnvelope wraps every event published to the exchange.
type EventEnvelope struct {
	Meta EventMeta `json:"meta"`
	Data any       `json:"data"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// EventBus publishes domain and session events. A nil bus or publisher drops events.
type EventBus struct {
	publisher Publisher
	producer  string
}

// NewEventBus constructs an EventBus for the named producer.
func NewEventBus(publisher Publisher, producer string) *EventBus {
	return &EventBus{publisher: publisher, producer: producer}
}

// Publish wraps data in an envelope and sends it. Failures are counted and returned.
func (b *EventBus) Publish(ctx context.Context, routingKey, eventType string, data any, headers map[string]string) error {
	if b == nil || b.publisher == nil {
		return nil
	}

	envelope := EventEnvelope{
		Meta: EventMeta{
			ID:       uuid.NewString(),
			Type:     eventType,
			Producer: b.producer,
			Time:     time.Now().UTC(),
		},
		Data: data,
	}
	if rid := headers["x-request-id"]; rid != "" {
		envelope.Meta.CorrelationID = &rid
	}

	if err := b.publisher.Publish(ctx, routingKey, envelope, headers); err != nil {
		IncAMQPPublishError()
		log.Printf("event publish failed: routing_key=%s type=%s err=%v", routingKey, eventType, err)
		return err
	}
	return nil
}
