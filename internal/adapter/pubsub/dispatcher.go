package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/omnitalk/signaling-service/internal/domain/model"
)

const (
	// TopicRelay carries signaling payloads and partner-left notices
	// addressed to connections owned by another instance.
	TopicRelay = "signaling.relay"
	// TopicMatch carries cross-instance match notifications.
	TopicMatch = "signaling.match"
)

// Dispatcher publishes cross-instance envelopes. Publishing is
// fire-and-forget: there is no delivery confirmation and no retry.
type Dispatcher struct {
	publisher message.Publisher
}

func NewDispatcher(pub message.Publisher) *Dispatcher {
	return &Dispatcher{publisher: pub}
}

func (d *Dispatcher) PublishRelay(ctx context.Context, env model.RelayEnvelope) error {
	return d.publish(ctx, TopicRelay, env)
}

func (d *Dispatcher) PublishMatch(ctx context.Context, env model.MatchEnvelope) error {
	return d.publish(ctx, TopicMatch, env)
}

func (d *Dispatcher) publish(ctx context.Context, topic string, env any) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("dispatcher: publish to %s: %w", topic, err)
	}
	return nil
}
