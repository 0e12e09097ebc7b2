package settlement

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher forwards trade events from the settler's channel to Kafka.
type Publisher struct {
	logger *zap.Logger
	writer *kafka.Writer
	events <-chan TradeEvent
}

// NewPublisher creates a Kafka publisher consuming the given event channel
func NewPublisher(logger *zap.Logger, brokers []string, topic string, events <-chan TradeEvent) *Publisher {
	return &Publisher{
		logger: logger,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		events: events,
	}
}

// Run consumes events until the context is cancelled or the channel closes.
// Publish failures are logged, not retried; consumers reconcile from the
// trades table.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.events:
			if !ok {
				return
			}
			value, err := json.Marshal(event)
			if err != nil {
				p.logger.Error("failed to encode trade event", zap.Error(err))
				continue
			}
			err = p.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(event.TradeID.String()),
				Value: value,
			})
			if err != nil {
				p.logger.Error("failed to publish trade event",
					zap.String("trade_id", event.TradeID.String()),
					zap.Error(err))
			}
		}
	}
}

// Close closes the underlying Kafka writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
