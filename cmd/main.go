package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	"github.com/dtroode/sheetkeeper/internal/api/grpc/probe"
	"github.com/dtroode/sheetkeeper/internal/api/grpc/router"
	grpcServer "github.com/dtroode/sheetkeeper/internal/api/grpc/server"
	"github.com/dtroode/sheetkeeper/internal/api/web"
	"github.com/dtroode/sheetkeeper/internal/app"
	"github.com/dtroode/sheetkeeper/internal/config"
	healthcheck "github.com/dtroode/sheetkeeper/internal/health"
	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/metrics"
	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/server"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	components, err := app.Build(ctx, cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to initialize application", "error", err)
	}
	if cfg.Table.InitOnMissing {
		if _, err := components.Users.Initialize(ctx); err != nil {
			logger.Fatal("failed to initialize user table", "error", err)
		}
	}

	checker := healthcheck.NewChecker(components.Store, cfg.GitHub.Timeout)

	mw := web.NewMiddleware(logger, cfg.HTTP.RequestTimeout)
	handler := web.NewHandler(components.Users, checker, logger)
	httpSrv := web.NewHTTPServer(
		web.NewRouter(handler, mw, m.Middleware, m.Handler()),
		fmt.Sprintf(":%s", cfg.HTTP.Port),
	)

	healthSrv := health.NewServer()
	grpcSrv := grpcServer.NewGRPCServer(
		router.New(healthSrv, logger).Register(),
		fmt.Sprintf(":%s", cfg.GRPC.Port),
	)
	prober := probe.NewProber(checker, healthSrv, cfg.GRPC.HealthProbeInterval, logger)

	sl := server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)

	servers := []model.Server{httpSrv, grpcSrv}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				return fmt.Errorf("server on %s: %w", s.Address(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		prober.Run(gctx)
		return nil
	})

	logAppVersion()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "cause", context.Cause(gctx))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		for _, s := range servers {
			if err := s.Stop(shutdownCtx); err != nil {
				logger.Error("error during server shutdown", "error", err, "address", s.Address())
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
