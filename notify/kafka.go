package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/evdnx/protrader/logger"
	"github.com/evdnx/protrader/metrics"
	"github.com/evdnx/protrader/types"
)

const (
	channelKafka = "kafka"

	EventSignalGenerated = "signal_generated"
	EventSource          = "protrader"
	SchemaVersion        = "1.0"
)

// SignalEvent is the envelope published for every forwarded signal.
type SignalEvent struct {
	EventType     string        `json:"event_type"`
	Source        string        `json:"source"`
	SchemaVersion string        `json:"schema_version"`
	Timestamp     time.Time     `json:"timestamp"`
	Data          *types.Signal `json:"data"`
}

// KafkaPublisher publishes signal events keyed by symbol.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      logger.Logger
	now      func() time.Time
}

// NewProducerConfig returns the sarama settings used for publishing.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	return config
}

// NewKafkaPublisher connects a sync producer to brokers.
func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	p, err := NewKafkaPublisherWithProducer(producer, topic, log)
	if err != nil {
		producer.Close()
		return nil, err
	}
	return p, nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log logger.Logger) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, log: log, now: time.Now}, nil
}

// Notify publishes sig as a signal_generated event.
func (p *KafkaPublisher) Notify(ctx context.Context, sig *types.Signal) error {
	if sig == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(SignalEvent{
		EventType:     EventSignalGenerated,
		Source:        EventSource,
		SchemaVersion: SchemaVersion,
		Timestamp:     p.now().UTC(),
		Data:          sig,
	})
	if err != nil {
		return fmt.Errorf("marshal signal event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(sig.Symbol),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(channelKafka, "error").Inc()
		return fmt.Errorf("publish %s: %w", sig.Symbol, err)
	}
	metrics.Notifications.WithLabelValues(channelKafka, "ok").Inc()
	p.log.Info("signal_published",
		logger.String("symbol", sig.Symbol),
		logger.String("topic", p.topic),
		logger.Int("partition", int(partition)),
		logger.Int64("offset", offset),
	)
	return nil
}

// Close releases the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
