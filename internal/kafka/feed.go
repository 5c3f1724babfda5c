package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

type FeedConfig struct {
	Brokers     []string
	TopicPrefix string
	Partitions  int
	Replication int
	// Source is written to the producer field of every envelope.
	Source string
}

// Feed carries document changes between processes: one topic per
// collection, keyed by document id.
type Feed struct {
	cfg      FeedConfig
	producer *Producer
	client   *kafka.Client
	log      *zap.Logger
}

func NewFeed(cfg FeedConfig, producer *Producer, log *zap.Logger) *Feed {
	return &Feed{
		cfg:      cfg,
		producer: producer,
		client:   &kafka.Client{Addr: kafka.TCP(cfg.Brokers...), Timeout: 10 * time.Second},
		log:      log.With(zap.String("component", "change-feed")),
	}
}

// EnsureTopics creates the change topics that do not exist yet.
func (f *Feed) EnsureTopics(ctx context.Context, collections ...string) error {
	req := &kafka.CreateTopicsRequest{}
	for _, c := range collections {
		req.Topics = append(req.Topics, kafka.TopicConfig{
			Topic:             Topic(f.cfg.TopicPrefix, c),
			NumPartitions:     f.cfg.Partitions,
			ReplicationFactor: f.cfg.Replication,
		})
	}
	resp, err := f.client.CreateTopics(ctx, req)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for topic, err := range resp.Errors {
		if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
	}
	return nil
}

func (f *Feed) Publish(ctx context.Context, c docstore.Change) error {
	env, err := NewEnvelope(c, f.cfg.Source)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return f.producer.Publish(ctx, Topic(f.cfg.TopicPrefix, c.Collection), PartitionKey(c.Doc.ID), value,
		kafka.Header{Key: "event_type", Value: []byte(env.EventType)},
	)
}

// Subscribe delivers changes written after the call returns. Each
// partition is read by its own consumer starting at the current end
// offset, so h may be called from several goroutines; changes of one
// document always arrive in order.
func (f *Feed) Subscribe(ctx context.Context, collection string, h docstore.Handler) (func(), error) {
	topic := Topic(f.cfg.TopicPrefix, collection)
	offsets, err := f.endOffsets(ctx, topic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	consumers := make([]*Consumer, 0, len(offsets))
	for partition, offset := range offsets {
		c, err := NewConsumer(ConsumerConfig{
			Brokers:   f.cfg.Brokers,
			Topic:     topic,
			Partition: partition,
			Offset:    offset,
			Workers:   1,
		}, f.log)
		if err != nil {
			cancel()
			for _, c := range consumers {
				_ = c.r.Close()
			}
			return nil, fmt.Errorf("consume %s[%d]: %w", topic, partition, err)
		}
		consumers = append(consumers, c)
	}

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			err := c.Start(ctx, func(_ context.Context, m kafka.Message) error {
				change, err := decodeChange(m.Value)
				if err != nil {
					return err
				}
				h(change)
				return nil
			})
			if err != nil {
				f.log.Error("feed consumer stopped", zap.String("topic", topic), zap.Error(err))
			}
		}(c)
	}
	return func() {
		cancel()
		wg.Wait()
	}, nil
}

func (f *Feed) endOffsets(ctx context.Context, topic string) (map[int]int64, error) {
	meta, err := f.client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", topic, err)
	}
	if len(meta.Topics) != 1 {
		return nil, fmt.Errorf("metadata %s: topic not found", topic)
	}
	if err := meta.Topics[0].Error; err != nil {
		return nil, fmt.Errorf("metadata %s: %w", topic, err)
	}

	reqs := make([]kafka.OffsetRequest, 0, len(meta.Topics[0].Partitions))
	for _, p := range meta.Topics[0].Partitions {
		reqs = append(reqs, kafka.LastOffsetOf(p.ID))
	}
	resp, err := f.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{topic: reqs},
	})
	if err != nil {
		return nil, fmt.Errorf("list offsets %s: %w", topic, err)
	}
	out := make(map[int]int64, len(reqs))
	for _, po := range resp.Topics[topic] {
		if po.Error != nil {
			return nil, fmt.Errorf("offset %s[%d]: %w", topic, po.Partition, po.Error)
		}
		out[po.Partition] = po.LastOffset
	}
	return out, nil
}

func decodeChange(b []byte) (docstore.Change, error) {
	env, err := UnmarshalEnvelope(b)
	if err != nil {
		return docstore.Change{}, err
	}
	return env.Change()
}
