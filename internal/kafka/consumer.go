package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one message. An error is logged and the message is
// not retried.
type Handler func(ctx context.Context, m kafka.Message) error

// ConsumerConfig selects one partition of Topic, read from Offset on.
// Readers keep no group state.
type ConsumerConfig struct {
	Brokers   []string
	Topic     string
	Partition int
	Offset    int64
	Workers   int
}

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, log *zap.Logger) (*Consumer, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: cfg.Partition,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   250 * time.Millisecond,
	})
	if err := r.SetOffset(cfg.Offset); err != nil {
		_ = r.Close()
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:       r,
		workers: workers,
		log: log.With(
			zap.String("component", "kafka-consumer"),
			zap.String("topic", cfg.Topic),
			zap.Int("partition", cfg.Partition),
		),
	}, nil
}

// Start reads until ctx is done. With a single worker messages are handled
// in partition order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	done := make(chan struct{})

	for i := 0; i < c.workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					c.log.Warn("message not processed",
						zap.Int64("offset", m.Offset),
						zap.Error(err),
					)
					time.Sleep(200 * time.Millisecond) // backoff ringan
				}
			}
		}()
	}
	stop := func() {
		close(jobs)
		for i := 0; i < c.workers; i++ {
			<-done
		}
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}
