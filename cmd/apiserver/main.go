// Command apiserver serves the compliance HTTP and gRPC APIs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/digirix/Apexsaas-sub009/internal/bootstrap"
	"github.com/digirix/Apexsaas-sub009/internal/config"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/digirix/Apexsaas-sub009/internal/interfaces/grpc"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/grpc/services"
	httpserver "github.com/digirix/Apexsaas-sub009/internal/interfaces/http"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/http/handlers"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/http/middleware"
)

// Version is injected at build time.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC server port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *httpPort, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort, grpcPort int) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}
	if grpcPort > 0 {
		cfg.GRPC.Port = grpcPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting compliance API server",
		logging.String("version", Version),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.GRPC.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger, "apiserver")
	if err != nil {
		return err
	}
	defer infra.Close()

	svc, err := infra.ComplianceService()
	if err != nil {
		return fmt.Errorf("compliance service: %w", err)
	}

	if configPath != "" {
		err := config.Watch(configPath, func(next *config.Config) {
			if err := svc.UpdatePolicy(next.Compliance.Policy()); err != nil {
				logger.Warn("policy reload rejected", logging.Err(err))
				return
			}
			logger.Info("compliance policy reloaded")
		}, func(err error) {
			logger.Warn("config reload failed", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	// HTTP
	gin.SetMode(cfg.Server.Mode)
	checkers := make([]handlers.HealthChecker, 0, 3)
	for _, p := range infra.Probes() {
		checkers = append(checkers, handlers.CheckFunc{Component: p.Name, Fn: p.Check})
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		ComplianceHandler: handlers.NewComplianceHandler(svc),
		ReportHandler:     handlers.NewReportHandler(svc),
		HealthHandler:     handlers.NewHealthHandler(Version, checkers...),
		Tenant: middleware.TenantConfig{
			DefaultTenantID: cfg.Compliance.DefaultTenant,
			Required:        cfg.Compliance.DefaultTenant == "",
		},
		Logging:        middleware.DefaultLoggingConfig(),
		Logger:         logger,
		Metrics:        infra.Metrics,
		MetricsHandler: infra.MetricsHandler(),
		MetricsPath:    cfg.Metrics.Path,
	})
	httpSrv := httpserver.NewServer(httpserver.ServerConfig{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, router, logger)

	// gRPC
	grpcSrv, err := grpcserver.NewServer(&cfg.GRPC,
		grpcserver.WithLogger(logger),
		grpcserver.WithMetrics(infra.Metrics),
		grpcserver.WithDefaultTenant(cfg.Compliance.DefaultTenant),
	)
	if err != nil {
		return err
	}
	grpcSrv.RegisterService(&services.ComplianceServiceDesc, services.NewComplianceService(svc, logger))

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()
	go func() { errCh <- grpcSrv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", logging.Err(err))
	}

	logger.Info("servers stopped")
	return nil
}
