package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"didgate/internal/identity/events"
	"didgate/internal/identity/registry"
	"didgate/internal/identity/registry/ethereum"
	"didgate/internal/identity/registry/ledger"
	"didgate/internal/platform/config"
	"didgate/internal/platform/health"
	"didgate/internal/platform/kafka/producer"
	"didgate/internal/platform/redis"
)

// infrastructure holds the connections that outlive a request.
type infrastructure struct {
	registry registry.Client
	redis    *redis.Client
	sender   events.Sender
	closers  []func() error
}

// Close releases connections in reverse order of creation.
func (i *infrastructure) Close(log *slog.Logger) {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

// wireInfrastructure connects the registry backend, Redis and Kafka as
// configured and registers their readiness checks.
func wireInfrastructure(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, hh *health.Handler) (*infrastructure, error) {
	infra := &infrastructure{}

	rc, err := redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if rc != nil {
		infra.redis = rc
		infra.closers = append(infra.closers, rc.Close)
		hh.RegisterCheck("redis", rc.Health)
	}

	switch cfg.Registry.Backend {
	case config.BackendRedis:
		if rc == nil {
			infra.Close(log)
			return nil, fmt.Errorf("registry backend %q needs REDIS_URL", cfg.Registry.Backend)
		}
		infra.registry = ledger.NewRedis(rc.Client)
	case config.BackendEthereum:
		client, err := ethereum.Dial(ctx, ethereum.Config{
			RPCURL:          cfg.Registry.RPCURL,
			ContractAddress: cfg.Registry.ContractAddress,
			ChainID:         cfg.Registry.ChainID,
			SignerKey:       cfg.Registry.SignerKey,
			DialTimeout:     cfg.Registry.DialTimeout,
		}, ethereum.WithLogger(log))
		if err != nil {
			infra.Close(log)
			return nil, fmt.Errorf("registry: %w", err)
		}
		infra.registry = client
	default:
		log.Warn("using the in-memory registry; identities are lost on restart")
		infra.registry = ledger.NewMemory()
	}
	infra.closers = append(infra.closers, infra.registry.Close)
	hh.RegisterCheck("registry", infra.registry.Ping)

	if len(cfg.Kafka.Brokers) == 0 {
		infra.sender = producer.NewNoopProducer()
		return infra, nil
	}
	p, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
	if err != nil {
		infra.Close(log)
		return nil, fmt.Errorf("kafka: %w", err)
	}
	infra.sender = p
	infra.closers = append(infra.closers, p.Close)
	hh.RegisterCheck("kafka", p.Ping)
	return infra, nil
}
