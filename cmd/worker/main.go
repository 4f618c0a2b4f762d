// Command worker consumes task-changed events, refreshes the affected entity
// reports and publishes the alerts fired by the tenant's workflow triggers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	appcompliance "github.com/digirix/Apexsaas-sub009/internal/application/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/bootstrap"
	"github.com/digirix/Apexsaas-sub009/internal/config"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/messaging/kafka"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	httpserver "github.com/digirix/Apexsaas-sub009/internal/interfaces/http"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/http/handlers"
)

const (
	defaultHealthPort   = 8081
	defaultDrainTimeout = 30 * time.Second
)

// Version is injected at build time.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and metrics")
	lockTTL := flag.Duration("lock-ttl", 0, "per-entity refresh lock TTL (default: refresher default)")
	flag.Parse()

	if err := run(*configPath, *healthPort, *lockTTL); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int, lockTTL time.Duration) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	logger = logger.Named("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger, "worker")
	if err != nil {
		return err
	}
	defer infra.Close()

	if cfg.Kafka.EnsureTopics {
		if err := ensureTopics(ctx, cfg.Kafka, logger); err != nil {
			return err
		}
	}

	svc, err := infra.ComplianceService()
	if err != nil {
		return fmt.Errorf("compliance service: %w", err)
	}
	refresher := appcompliance.NewRefresher(svc, infra.Locks, lockTTL, logger)

	consumerCfg := bootstrap.ConsumerConfig(cfg.Kafka)
	consumer, err := kafka.NewConsumer(consumerCfg, logger, infra.Metrics)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	for _, topic := range consumerCfg.Topics {
		consumer.Subscribe(topic, kafka.NewTaskChangedHandler(refresher.HandleTaskChanged, logger))
	}

	healthSrv := startHealthServer(infra, healthPort, logger)

	// Handlers outlive the signal so Shutdown can drain them.
	if err := consumer.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	logger.Info("worker started",
		logging.String("version", Version),
		logging.Any("topics", consumerCfg.Topics),
		logging.String("group", consumerCfg.GroupID),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining consumer")

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), defaultDrainTimeout)
	if err := consumer.Shutdown(drainCtx); err != nil {
		logger.Warn("consumer drain incomplete", logging.Err(err))
	}
	cancelDrain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}

	stats := consumer.Stats()
	logger.Info("worker stopped",
		logging.Int64("processed", stats.Processed),
		logging.Int64("failed", stats.Failed),
		logging.Int64("dead_lettered", stats.DeadLettered),
	)
	return nil
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.AlertsTopic, cfg.TaskEventsTopic, cfg.DeadLetterTopic))
}

// startHealthServer exposes probes and metrics; the API group stays empty.
func startHealthServer(infra *bootstrap.Infrastructure, port int, logger logging.Logger) *httpserver.Server {
	gin.SetMode(infra.Config.Server.Mode)

	checkers := make([]handlers.HealthChecker, 0, 3)
	for _, p := range infra.Probes() {
		checkers = append(checkers, handlers.CheckFunc{Component: p.Name, Fn: p.Check})
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:  handlers.NewHealthHandler(Version, checkers...),
		Logger:         logger,
		Metrics:        infra.Metrics,
		MetricsHandler: infra.MetricsHandler(),
		MetricsPath:    infra.Config.Metrics.Path,
	})
	srv := httpserver.NewServer(httpserver.ServerConfig{Port: port}, router, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
