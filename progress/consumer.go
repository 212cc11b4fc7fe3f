package progress

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"marketbrief/types"
)

// EventHandler receives decoded progress events from the Kafka topic.
// Returning an error leaves the message unmarked so it is redelivered.
type EventHandler func(ctx context.Context, event types.ProgressEvent) error

// Consumer tails the progress topic as a consumer group member and feeds
// decoded events to a handler. Counterpart to KafkaReporter.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler EventHandler
	topic   string
	groupID string
	ready   chan bool
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler EventHandler
}

// NewConsumer creates a progress event consumer. An empty topic falls back
// to DefaultTopic.
func NewConsumer(config ConsumerConfig) (*Consumer, error) {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		group:   group,
		handler: config.Handler,
		topic:   config.Topic,
		groupID: config.GroupID,
		ready:   make(chan bool),
	}, nil
}

// Start begins consuming until ctx is cancelled. It returns once the first
// session is established.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &groupHandler{handler: c.handler, ready: c.ready}

	go func() {
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
				if err == context.Canceled {
					log.Println("Progress consumer context canceled")
					return
				}
				log.Printf("Error from progress consumer: %v", err)
			}
			if ctx.Err() != nil {
				return
			}
			handler.ready = make(chan bool)
		}
	}()

	<-c.ready
	log.Printf("Progress consumer started (group: %s, topic: %s)", c.groupID, c.topic)

	go func() {
		for err := range c.group.Errors() {
			log.Printf("Progress consumer error: %v", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler EventHandler
	ready   chan bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			var event types.ProgressEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				// Malformed events are skipped, not retried.
				log.Printf("Skipping malformed progress event at offset %d: %v", message.Offset, err)
				session.MarkMessage(message, "")
				continue
			}

			if err := h.handler(session.Context(), event); err != nil {
				log.Printf("Failed to handle progress event: %v", err)
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
