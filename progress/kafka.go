package progress

import (
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"marketbrief/types"
)

// DefaultTopic is the progress topic used when none is configured.
const DefaultTopic = "marketbrief.progress"

// KafkaReporter publishes progress events to a Kafka topic so downstream
// services can observe run progress. Publishing is fire-and-forget via an
// async producer; a full producer queue drops the event rather than block
// the orchestrator.
type KafkaReporter struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaReporter creates a reporter publishing to the given brokers/topic.
func NewKafkaReporter(brokers []string, topic string) (*KafkaReporter, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	r := &KafkaReporter{producer: producer, topic: topic}

	// Drain producer errors so the internal channel never fills up.
	go func() {
		for perr := range producer.Errors() {
			log.Printf("Warning: progress event publish failed: %v", perr.Err)
		}
	}()

	return r, nil
}

// OnProgress publishes the event without blocking. Events are dropped when
// the producer queue is full.
func (r *KafkaReporter) OnProgress(event types.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Warning: failed to encode progress event: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: r.topic,
		Key:   sarama.StringEncoder(event.RunID),
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case r.producer.Input() <- msg:
	default:
		log.Printf("Warning: progress event dropped, producer queue full (run %s)", event.RunID)
	}
}

// Close shuts the producer down.
func (r *KafkaReporter) Close() error {
	return r.producer.Close()
}
