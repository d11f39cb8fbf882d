// Command agent runs the Enhanced Telemetry Agent (ETA, C2-C7): the
// per-cluster supervisor that accepts probe registrations, polls them,
// mirrors their state into the operational and time-series stores, and
// notifies the bus on liveness transitions, per spec.md §4.2-§4.7/§5.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/agent/access"
	"github.com/ict-serrano/telemetry-fabric/internal/agent/collector"
	"github.com/ict-serrano/telemetry-fabric/internal/agent/controller"
	"github.com/ict-serrano/telemetry-fabric/internal/agent/dataengine"
	"github.com/ict-serrano/telemetry-fabric/internal/agent/notify"
	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/logging"
	"github.com/ict-serrano/telemetry-fabric/internal/pmds/writer"
	"github.com/ict-serrano/telemetry-fabric/internal/store/influx"
	"github.com/ict-serrano/telemetry-fabric/internal/store/kafka"
	"github.com/ict-serrano/telemetry-fabric/internal/store/mongo"
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

	mongoStore, err := mongo.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer mongoStore.Close(context.Background())

	influxStore := influx.Connect(cfg.Influx, logger)
	defer influxStore.Close()

	kafkaPublisher := kafka.NewPublisher(cfg.Kafka, logger)
	defer kafkaPublisher.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	pmdsWriter := writer.New(influxStore, logger)
	notifier := notify.New(kafkaPublisher, logger)
	engine := dataengine.New(mongoStore, pmdsWriter, cfg.Agent.AgentUUID, cfg.Agent.Retention(), logger)

	if err := engine.Bootstrap(ctx); err != nil {
		logger.Warn("deployment overlay bootstrap failed", zap.Error(err))
	}

	coll := collector.New(cfg.Agent, engine, notifier, rdb, logger)
	coll.LoadBoot(ctx)

	ctrl := controller.New(coll, engine, notifier, logger)
	go ctrl.Run(ctx)
	go coll.Run(ctx)

	if cfg.Server.Host == "0.0.0.0" && os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	handler := access.New(ctrl, coll, cfg.Agent.Timeout(), logger)
	handler.Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("starting agent server", zap.String("address", srv.Addr), zap.String("agent_uuid", cfg.Agent.AgentUUID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("agent server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down agent server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("agent server forced to shutdown", zap.Error(err))
	}
	logger.Info("agent server exited")
}
