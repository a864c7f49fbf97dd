package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// GroupName returns the stream consumer group for one instance. Groups are
// per-instance so every instance observes every envelope; the subscriber and
// the shutdown cleanup must agree on this name.
func GroupName(instanceID string) string {
	return "signaling." + instanceID
}

// NewRedisPublisher builds the stream publisher for cross-instance envelopes.
func NewRedisPublisher(rdb redis.UniversalClient, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     rdb,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, logger)
}

// NewRedisSubscriber builds the stream subscriber. The consumer group is
// unique per instance so every instance observes every envelope and filters
// by its own registry; only the owner of the destination can deliver.
func NewRedisSubscriber(rdb redis.UniversalClient, instanceID string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        rdb,
		Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: GroupName(instanceID),
	}, logger)
}

// DestroyGroups drops this instance's consumer groups from both topics.
// Called on shutdown; without it every restart leaves a dead group with a
// growing pending-entries list behind on the streams. Best-effort: failures
// on one topic do not stop cleanup of the other.
func DestroyGroups(ctx context.Context, rdb redis.UniversalClient, instanceID string) error {
	group := GroupName(instanceID)
	var errs []error
	for _, topic := range []string{TopicRelay, TopicMatch} {
		if err := rdb.XGroupDestroy(ctx, topic, group).Err(); err != nil {
			errs = append(errs, fmt.Errorf("destroy consumer group %s on %s: %w", group, topic, err))
		}
	}
	return errors.Join(errs...)
}
