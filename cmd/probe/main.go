// Command probe runs one telemetry probe (C1): a thin, stateless HTTP
// shim exposing /ping, /inventory, /monitor over whichever backend
// config.Probe.Kind selects, per spec.md §4.1.
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

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/ict-serrano/telemetry-fabric/internal/config"
	"github.com/ict-serrano/telemetry-fabric/internal/logging"
	"github.com/ict-serrano/telemetry-fabric/internal/probe/edgestorage"
	"github.com/ict-serrano/telemetry-fabric/internal/probe/hpc"
	"github.com/ict-serrano/telemetry-fabric/internal/probe/k8s"
	"github.com/ict-serrano/telemetry-fabric/internal/probe/server"
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

	backend, err := newBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize probe backend", zap.Error(err))
	}

	router := server.New(backend, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("starting probe server", zap.String("address", srv.Addr), zap.String("kind", cfg.Probe.Kind))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("probe server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down probe server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("probe server forced to shutdown", zap.Error(err))
	}
	logger.Info("probe server exited")
}

func newBackend(cfg *config.Config, logger *zap.Logger) (server.Backend, error) {
	switch cfg.Probe.Kind {
	case "hpc":
		return hpc.New(cfg.Probe.ProbeUUID, cfg.Probe), nil
	case "edge_storage":
		clientset, err := buildKubeClient(cfg.K8s)
		if err != nil {
			return nil, fmt.Errorf("build kube client: %w", err)
		}
		return edgestorage.New(cfg.Probe.ProbeUUID, cfg.Probe, clientset, logger), nil
	default:
		clientset, err := buildKubeClient(cfg.K8s)
		if err != nil {
			return nil, fmt.Errorf("build kube client: %w", err)
		}
		metricsClient, err := buildMetricsClient(cfg.K8s)
		if err != nil {
			return nil, fmt.Errorf("build metrics client: %w", err)
		}
		return k8s.New(cfg.Probe.ProbeUUID, cfg.Probe, cfg.K8s.Namespace, clientset, metricsClient, logger), nil
	}
}

func buildRestConfig(k8sCfg config.K8sConfig) (*rest.Config, error) {
	if k8sCfg.InCluster {
		return rest.InClusterConfig()
	}
	kubeconfigPath := k8sCfg.ConfigPath
	if kubeconfigPath == "" {
		kubeconfigPath = os.Getenv("KUBECONFIG")
	}
	if kubeconfigPath == "" {
		kubeconfigPath = os.Getenv("HOME") + "/.kube/config"
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

func buildKubeClient(k8sCfg config.K8sConfig) (kubernetes.Interface, error) {
	restCfg, err := buildRestConfig(k8sCfg)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

func buildMetricsClient(k8sCfg config.K8sConfig) (metricsv1beta1.Interface, error) {
	restCfg, err := buildRestConfig(k8sCfg)
	if err != nil {
		return nil, err
	}
	return metricsv1beta1.NewForConfig(restCfg)
}
