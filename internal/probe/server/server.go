// Package server hosts the uniform ping/inventory/monitor HTTP contract
// shared by every probe kind (spec.md §4.1), so the k8s, HPC, and
// edge-storage backends need only implement Backend.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

// Backend is implemented by each probe kind. Errors are never surfaced
// across the HTTP boundary (spec.md §4.1): the router logs them and
// answers with an empty typed envelope.
type Backend interface {
	UUID() string
	Type() model.ProbeType
	Inventory(r *http.Request) (*model.InventoryEnvelope, error)
	Monitor(r *http.Request, target string) (*model.MonitorEnvelope, error)
}

// New builds the gin engine exposing GET ping/inventory/monitor for
// backend.
func New(backend Backend, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.PingResponse{
			UUID:  backend.UUID(),
			Type:  backend.Type(),
			Alive: true,
		})
	})

	r.GET("/inventory", func(c *gin.Context) {
		inv, err := backend.Inventory(c.Request)
		if err != nil {
			logger.Error("inventory scrape failed", zap.Error(err))
			c.JSON(http.StatusOK, &model.InventoryEnvelope{UUID: backend.UUID(), Type: backend.Type()})
			return
		}
		c.JSON(http.StatusOK, inv)
	})

	r.GET("/monitor", func(c *gin.Context) {
		target := c.Query("target")
		mon, err := backend.Monitor(c.Request, target)
		if err != nil {
			logger.Error("monitor scrape failed", zap.Error(err))
			c.JSON(http.StatusOK, &model.MonitorEnvelope{UUID: backend.UUID(), Type: backend.Type()})
			return
		}
		c.JSON(http.StatusOK, mon)
	})

	return r
}
