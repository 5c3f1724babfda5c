// Package app wires the infrastructure shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/config"
	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/docstore/memory"
	pgstore "github.com/ryujihub/MMHHINVmobile/internal/docstore/postgres"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
	kafkax "github.com/ryujihub/MMHHINVmobile/internal/kafka"
	"github.com/ryujihub/MMHHINVmobile/internal/postgres"
	"github.com/ryujihub/MMHHINVmobile/internal/reconciler"
	"github.com/ryujihub/MMHHINVmobile/internal/redisx"
)

type Deps struct {
	Store docstore.Store
	// Redis is nil when REDIS_ENABLED is false.
	Redis *redis.Client

	closers []func()
}

// Open connects the document store selected by cfg and, when enabled,
// Redis. Close releases everything in reverse order.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{}
	if err := d.openStore(ctx, cfg, log); err != nil {
		d.Close()
		return nil, err
	}
	if cfg.Redis.Enabled {
		rdb := redisx.New(cfg.Redis.Addr)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		d.Redis = rdb
		d.closers = append(d.closers, func() { _ = rdb.Close() })
	}
	return d, nil
}

func (d *Deps) openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Store.Driver == config.DriverMemory {
		log.Warn("using in-memory document store; data is lost on exit")
		d.Store = memory.New()
		return nil
	}

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	d.closers = append(d.closers, pool.Close)
	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ProducerBuffer, log)
	prod.Start(prodCtx)
	d.closers = append(d.closers, func() {
		stopProducer()
		prod.WaitClosed()
	})

	feed := kafkax.NewFeed(kafkax.FeedConfig{
		Brokers:     cfg.Kafka.Brokers,
		TopicPrefix: cfg.Kafka.TopicPrefix,
		Partitions:  cfg.Kafka.Partitions,
		Replication: cfg.Kafka.Replication,
		Source:      cfg.ServiceName,
	}, prod, log)
	if err := feed.EnsureTopics(ctx, domain.Collections...); err != nil {
		return err
	}
	d.Store = pgstore.New(pool, feed, log)
	return nil
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// Marker returns the Redis applied-movement marker, or one kept in the
// document store when Redis is disabled.
func (d *Deps) Marker(service string) reconciler.Marker {
	if d.Redis == nil {
		return reconciler.NewStoreMarker(d.Store)
	}
	return redisx.NewMarker(d.Redis, service)
}
