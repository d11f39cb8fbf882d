// Command pmds runs the Predictive Monitoring Data Service query façade
// (C10): a read-only HTTP wrapper over the time-series store, per
// spec.md §4.10/§6.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/logging"
	"github.com/ict-serrano/telemetry-fabric/internal/pmds/query"
	"github.com/ict-serrano/telemetry-fabric/internal/pmds/server"
	"github.com/ict-serrano/telemetry-fabric/internal/store/influx"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration validation failed: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	influxStore := influx.Connect(cfg.Influx, logger)
	defer influxStore.Close()

	engine := query.New(influxStore, logger)
	router := server.New(engine, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("starting pmds server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("pmds server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down pmds server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("pmds server forced to shutdown", zap.Error(err))
	}
	logger.Info("pmds server exited")
}
