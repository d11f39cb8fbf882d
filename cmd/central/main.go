// Command central runs the Central Telemetry Handler (CTH, C8-C9): the
// federation point that tracks registered agents, mirrors cluster and
// deployment state, and fans deployment changes out to the owning
// agents, per spec.md §4.8-§4.9.
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
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/central/access"
	"github.com/ict-serrano/telemetry-fabric/internal/central/dataengine"
	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/logging"
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

	engine := dataengine.New(mongoStore, logger)
	handler := access.New(engine, cfg.Central.Timeout(), logger)

	if cfg.Server.Host == "0.0.0.0" && os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	handler.Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("starting central server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("central server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down central server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("central server forced to shutdown", zap.Error(err))
	}
	logger.Info("central server exited")
}
