package messaging

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Bus pairs a publisher with a subscriber and owns their lifecycle.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

// NewInMemoryBus creates a process-local bus. Published messages are only delivered to
// subscribers of the same process.
func NewInMemoryBus(logger watermill.LoggerAdapter) *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)

	return &Bus{publisher: pubSub, subscriber: pubSub}
}

// NewRedisBus creates a bus backed by Redis streams. Subscribers join consumerGroup so
// each message is processed once across consumer processes.
func NewRedisBus(client redis.UniversalClient, consumerGroup string, logger watermill.LoggerAdapter) (*Bus, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create redis stream publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, logger)
	if err != nil {
		_ = publisher.Close()

		return nil, fmt.Errorf("create redis stream subscriber: %w", err)
	}

	return &Bus{publisher: publisher, subscriber: subscriber}, nil
}

// Publisher returns the underlying message publisher for creating typed publish functions.
func (b *Bus) Publisher() message.Publisher {
	return b.publisher
}

// Subscriber returns the underlying message subscriber for consumers.
func (b *Bus) Subscriber() message.Subscriber {
	return b.subscriber
}

// Shutdown closes the publisher. The subscriber is closed by the consumer group using it.
func (b *Bus) Shutdown() error {
	return b.publisher.Close()
}
