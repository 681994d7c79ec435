package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mediastore/mediastore/internal/metrics"
)

// Publisher sends envelopes to the bus. Event delivery is best-effort
// throughout MediaStore: callers log publish failures and move on, the
// request outcome never depends on the bus.
type Publisher interface {
	// Name returns the publisher identifier (e.g., "kafka", "nop").
	Name() string

	// Publish sends one envelope. The key selects the partition so events
	// about the same object stay ordered.
	Publish(ctx context.Context, key string, env Envelope) error

	// Close cleanly shuts down the publisher.
	Close() error
}

// NopPublisher drops all events, used when no bus is configured.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Name() string                                 { return "nop" }
func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic for events (default: "mediastore").
	Topic string

	// RequiredAcks: 0=none, 1=leader, -1=all (default: 1).
	RequiredAcks int

	// Compression: "none", "gzip", "snappy", "lz4", "zstd" (default: "snappy").
	Compression string

	// WriteTimeout is the timeout for write operations (default: 10s).
	WriteTimeout time.Duration
}

// KafkaPublisher publishes envelopes to Kafka using sarama.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a Kafka publisher using sarama.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "mediastore"
	}

	config := saramaConfig(cfg)
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch cfg.RequiredAcks {
	case 0:
		config.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		config.Producer.RequiredAcks = sarama.WaitForAll
	default:
		config.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Compression {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	case "none":
		config.Producer.Compression = sarama.CompressionNone
	default:
		config.Producer.Compression = sarama.CompressionSnappy
	}

	// Hash partitioner keeps events about one object on one partition.
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer creation failed: %w", err)
	}

	slog.Info("kafka event publisher connected",
		"brokers", cfg.Brokers, "topic", cfg.Topic)

	return &KafkaPublisher{producer: producer, topic: cfg.Topic}, nil
}

// Name returns the publisher identifier.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish sends one envelope to Kafka.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(env.Type, "error").Inc()
		return fmt.Errorf("kafka publish: %w", err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(env.Type, "success").Inc()
	slog.Debug("published event",
		"type", env.Type, "key", key, "partition", partition, "offset", offset)
	return nil
}

// Close closes the Kafka producer.
func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublishBestEffort publishes and logs on failure instead of returning the
// error. Every event emission in the request path goes through here.
func PublishBestEffort(ctx context.Context, pub Publisher, key, eventType string, data any) {
	env, err := NewEnvelope(eventType, data)
	if err != nil {
		slog.Warn("building event failed", "type", eventType, "error", err)
		return
	}
	if err := pub.Publish(ctx, key, env); err != nil {
		slog.Warn("publishing event failed",
			"type", eventType, "publisher", pub.Name(), "error", err)
	}
}

func saramaConfig(cfg KafkaConfig) *sarama.Config {
	config := sarama.NewConfig()
	if cfg.WriteTimeout > 0 {
		config.Producer.Timeout = cfg.WriteTimeout
		config.Net.WriteTimeout = cfg.WriteTimeout
		config.Net.ReadTimeout = cfg.WriteTimeout
	}
	return config
}
