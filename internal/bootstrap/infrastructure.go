// Package bootstrap builds the infrastructure clients and the compliance
// service shared by the apiserver and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	appcompliance "github.com/digirix/Apexsaas-sub009/internal/application/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/config"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres/repositories"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/redis"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/messaging/kafka"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
)

// Infrastructure holds every external client of a process. MinIO and Archive
// are nil when the archive is disabled.
type Infrastructure struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	collector prometheus.MetricsCollector

	Postgres *postgres.Connection
	Redis    *redis.Client
	Cache    redis.Cache
	Locks    redis.LockFactory
	Producer *kafka.Producer
	MinIO    *minio.MinIOClient
	Archive  *minio.SnapshotArchive
}

// Open connects to every backend in dependency order. On failure the clients
// opened so far are closed.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, clientID string) (*Infrastructure, error) {
	infra := &Infrastructure{Config: cfg, Logger: logger}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            cfg.Metrics.Subsystem,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		infra.collector = collector
		infra.Metrics = prometheus.NewAppMetrics(collector)
	} else {
		infra.collector = prometheus.NewNoopCollector()
		infra.Metrics = prometheus.NewNoopAppMetrics()
	}

	pg, err := postgres.NewConnection(PostgresConfig(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.Postgres = pg

	rc, err := redis.NewClient(RedisConfig(cfg.Redis), logger)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	infra.Redis = rc
	infra.Cache = redis.NewRedisCache(rc, logger,
		redis.WithPrefix(cfg.Redis.KeyPrefix),
		redis.WithDefaultTTL(cfg.Compliance.CacheTTL),
	)
	infra.Locks = redis.NewLockFactory(rc, cfg.Redis.KeyPrefix, logger)

	producer, err := kafka.NewProducer(ProducerConfig(cfg.Kafka, clientID), logger)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	infra.Producer = producer

	if cfg.MinIO.Enabled {
		mc, err := minio.NewMinIOClient(ctx, MinIOConfig(cfg.MinIO), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.MinIO = mc
		infra.Archive = minio.NewSnapshotArchive(mc, logger)
	}

	logger.Info("infrastructure initialized",
		logging.Bool("metrics", cfg.Metrics.Enabled),
		logging.Bool("archive", cfg.MinIO.Enabled),
	)
	return infra, nil
}

// ComplianceService wires the application service onto the clients.
func (i *Infrastructure) ComplianceService() (*appcompliance.Service, error) {
	repos := repositories.NewRepositories(i.Postgres, i.Logger, i.Metrics)
	deps := appcompliance.Dependencies{
		Subscriptions: repos.Subscriptions,
		Tasks:         repos.Tasks,
		Statuses:      repos.Statuses,
		Entities:      repos.Entities,
		Triggers:      repos.Triggers,
		Cache:         i.Cache,
		Alerts:        kafka.NewAlertPublisher(i.Producer, i.Config.Kafka.AlertsTopic, i.Config.Kafka.ClientID, i.Logger),
		Logger:        i.Logger,
		Metrics:       i.Metrics,
	}
	// A typed nil archive must not reach the interface.
	if i.Archive != nil {
		deps.Archive = i.Archive
	}
	return appcompliance.NewService(deps, ServiceOptions(i.Config.Compliance))
}

// MetricsHandler serves the process registry.
func (i *Infrastructure) MetricsHandler() http.Handler {
	return i.collector.Handler()
}

// Probes lists the readiness checks of the opened backends. Every check
// also updates the component's health gauge.
func (i *Infrastructure) Probes() []Probe {
	probes := []Probe{
		i.probe("postgres", i.Postgres.HealthCheck),
		i.probe("redis", i.Redis.Ping),
	}
	if i.MinIO != nil {
		probes = append(probes, i.probe("minio", i.MinIO.HealthCheck))
	}
	return probes
}

func (i *Infrastructure) probe(name string, check func(ctx context.Context) error) Probe {
	return Probe{Name: name, Check: func(ctx context.Context) error {
		err := check(ctx)
		prometheus.SetHealth(i.Metrics, name, err == nil)
		return err
	}}
}

// Probe is a named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// Close releases the clients in reverse order of Open.
func (i *Infrastructure) Close() {
	var closers []closer
	if i.MinIO != nil {
		closers = append(closers, closer{"minio", i.MinIO.Close})
	}
	if i.Producer != nil {
		closers = append(closers, closer{"kafka producer", i.Producer.Close})
	}
	if i.Redis != nil {
		closers = append(closers, closer{"redis", i.Redis.Close})
	}
	if i.Postgres != nil {
		closers = append(closers, closer{"postgres", i.Postgres.Close})
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			i.Logger.Warn("close failed", logging.String("client", c.name), logging.Err(err))
		}
	}
}
