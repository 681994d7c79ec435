package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// Consumer reads envelopes from the bus topic inside a consumer group and
// feeds them to Handlers.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	handlers *Handlers
}

// NewConsumer creates a consumer group member for the given brokers.
func NewConsumer(cfg KafkaConfig, groupID string, handlers *Handlers) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "mediastore"
	}

	config := saramaConfig(cfg)
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group creation failed: %w", err)
	}

	slog.Info("kafka event consumer connected",
		"brokers", cfg.Brokers, "topic", cfg.Topic, "group", groupID)

	return &Consumer{group: group, topic: cfg.Topic, handlers: handlers}, nil
}

// Run consumes until ctx is cancelled. Intended to run in its own goroutine;
// rebalances restart the Consume loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, &groupHandler{ctx: ctx, handlers: c.handlers}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			slog.Error("consumer group session failed", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// groupHandler adapts Handlers to the sarama consumer group interface.
type groupHandler struct {
	ctx      context.Context
	handlers *Handlers
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (g *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			slog.Error("malformed bus message", "offset", msg.Offset, "error", err)
			session.MarkMessage(msg, "")
			continue
		}
		if err := g.handlers.HandleEnvelope(g.ctx, env); err != nil {
			// End the claim without marking the failed offset; continuing
			// would mark later messages and commit past it. The session
			// restarts and redelivers from the last marked offset.
			slog.Error("handling event failed", "type", env.Type, "id", env.ID, "error", err)
			return err
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
