// Package access implements the Agent Access Interface (C2): the HTTP
// surface of the ETA. Handlers never touch storage directly — they
// validate the request and emit a typed event onto the controller's
// channel (spec.md §4.2).
package access

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/agent/collector"
	"github.com/ict-serrano/telemetry-fabric/internal/event"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

// Emitter is the subset of C3 the access interface drives.
type Emitter interface {
	Emit(e event.Event)
}

// Registry is the subset of C4 needed to answer GET/PUT/DELETE
// /agent/register/{uuid} and the pull-through endpoints.
type Registry interface {
	Lookup(probeUUID string) (url string, probeType string, clusterUUID string, ok bool)
	ApplyConfiguration(key string, value any) error
	ListEntities() []collector.RegisteredEntity
}

type registerRequest struct {
	ProbeUUID   string `json:"probe_uuid" binding:"required"`
	URL         string `json:"url" binding:"required"`
	ClusterUUID string `json:"cluster_uuid" binding:"required"`
	Type        string `json:"type" binding:"required"`
}

type deploymentRequest struct {
	DeploymentUUID string   `json:"deployment_uuid" binding:"required"`
	K8sDeployments []string `json:"k8s_deployments"`
}

type deploymentSpecificMetricsRequest struct {
	DeploymentUUID string         `json:"deployment_uuid" binding:"required"`
	ServiceID      string         `json:"service_id"`
	Metrics        map[string]any `json:"metrics"`
}

// Handler wires gin routes to emitted events.
type Handler struct {
	emitter    Emitter
	registry   Registry
	httpClient *http.Client
	logger     *zap.Logger
}

func New(emitter Emitter, registry Registry, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		emitter:    emitter,
		registry:   registry,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/agent")
	g.POST("/register", h.postRegister)
	g.GET("/register/:uuid", h.getRegister)
	g.PUT("/register/:uuid", h.putRegister)
	g.DELETE("/register/:uuid", h.deleteRegister)
	g.GET("/entities", h.getEntities)
	g.GET("/inventory/:uuid", h.getInventory)
	g.GET("/monitor/:uuid", h.getMonitor)
	g.POST("/deployments", h.postDeployments)
	g.DELETE("/deployments/:uuid", h.deleteDeployments)
	g.GET("/deployments/:uuid", h.getDeployments)
	g.POST("/deployment_specific_metrics", h.postDeploymentSpecificMetrics)
	g.GET("", h.getConfiguration)
	g.PUT("", h.putConfiguration)
}

func (h *Handler) postRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.emitter.Emit(event.Event{
		Action:      event.ActionRegistration,
		ProbeUUID:   req.ProbeUUID,
		URL:         req.URL,
		ClusterUUID: req.ClusterUUID,
		ProbeType:   model.ProbeType(req.Type),
	})
	c.JSON(http.StatusCreated, gin.H{"probe_uuid": req.ProbeUUID})
}

func (h *Handler) getRegister(c *gin.Context) {
	uuid := c.Param("uuid")
	url, probeType, clusterUUID, ok := h.registry.Lookup(uuid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "probe not registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"probe_uuid": uuid, "url": url, "type": probeType, "cluster_uuid": clusterUUID})
}

func (h *Handler) putRegister(c *gin.Context) {
	uuid := c.Param("uuid")
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.emitter.Emit(event.Event{
		Action:      event.ActionRegistration,
		ProbeUUID:   uuid,
		URL:         req.URL,
		ClusterUUID: req.ClusterUUID,
		ProbeType:   model.ProbeType(req.Type),
	})
	c.JSON(http.StatusCreated, gin.H{"probe_uuid": uuid})
}

func (h *Handler) deleteRegister(c *gin.Context) {
	uuid := c.Param("uuid")
	url, probeType, clusterUUID, ok := h.registry.Lookup(uuid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "probe not registered"})
		return
	}
	_ = url
	h.emitter.Emit(event.Event{
		Action:      event.ActionDeregistration,
		ProbeUUID:   uuid,
		ClusterUUID: clusterUUID,
		ProbeType:   model.ProbeType(probeType),
	})
	c.JSON(http.StatusOK, gin.H{"probe_uuid": uuid})
}

// getEntities lists every probe currently registered with this agent,
// the supplemented GET /agent/entities endpoint (SPEC_FULL.md §4.11).
func (h *Handler) getEntities(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.ListEntities())
}

func (h *Handler) getInventory(c *gin.Context) {
	uuid := c.Param("uuid")
	url, probeType, clusterUUID, ok := h.registry.Lookup(uuid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "probe not registered"})
		return
	}

	var inv model.InventoryEnvelope
	status, err := h.pullThrough(c.Request.Context(), url+"/inventory", &inv)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{})
		return
	}
	if status/100 != 2 {
		c.JSON(status, gin.H{})
		return
	}

	h.emitter.Emit(event.Event{
		Action:      event.ActionInventory,
		ProbeUUID:   uuid,
		ClusterUUID: clusterUUID,
		ProbeType:   model.ProbeType(probeType),
		Inventory:   &inv,
	})
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) getMonitor(c *gin.Context) {
	uuid := c.Param("uuid")
	target := c.Query("target")
	url, probeType, clusterUUID, ok := h.registry.Lookup(uuid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "probe not registered"})
		return
	}

	monitorURL := url + "/monitor"
	if target != "" {
		monitorURL += "?target=" + target
	}

	var mon model.MonitorEnvelope
	status, err := h.pullThrough(c.Request.Context(), monitorURL, &mon)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{})
		return
	}
	if status/100 != 2 {
		c.JSON(status, gin.H{})
		return
	}

	h.emitter.Emit(event.Event{
		Action:      event.ActionMonitor,
		ProbeUUID:   uuid,
		ClusterUUID: clusterUUID,
		ProbeType:   model.ProbeType(probeType),
		Monitor:     &mon,
	})
	c.JSON(http.StatusOK, mon)
}

func (h *Handler) postDeployments(c *gin.Context) {
	var req deploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.emitter.Emit(event.Event{
		Action:         event.ActionDeploymentPost,
		DeploymentUUID: req.DeploymentUUID,
		K8sDeployments: req.K8sDeployments,
	})
	c.JSON(http.StatusCreated, gin.H{"deployment_uuid": req.DeploymentUUID})
}

func (h *Handler) deleteDeployments(c *gin.Context) {
	uuid := c.Param("uuid")
	h.emitter.Emit(event.Event{Action: event.ActionDeploymentDelete, DeploymentUUID: uuid})
	c.JSON(http.StatusOK, gin.H{"deployment_uuid": uuid})
}

// getDeployments is spec.md §9's documented Open Question: the original
// source references an undefined entity_uuid here. Per the resolution
// recorded in SPEC_FULL.md §4.2, this endpoint is deliberately
// unimplemented rather than guessed.
func (h *Handler) getDeployments(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "not implemented"})
}

func (h *Handler) postDeploymentSpecificMetrics(c *gin.Context) {
	var req deploymentSpecificMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.emitter.Emit(event.Event{
		Action:         event.ActionDeploymentSpecificMetrics,
		DeploymentUUID: req.DeploymentUUID,
		ServiceID:      req.ServiceID,
		Metrics:        req.Metrics,
	})
	c.JSON(http.StatusCreated, gin.H{"deployment_uuid": req.DeploymentUUID})
}

func (h *Handler) getConfiguration(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

type configRequest struct {
	Key   string `json:"key" binding:"required"`
	Value any    `json:"value"`
}

func (h *Handler) putConfiguration(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.ApplyConfiguration(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.emitter.Emit(event.Event{Action: event.ActionConfiguration, ConfigKey: req.Key, ConfigValue: req.Value})
	c.JSON(http.StatusCreated, gin.H{"key": req.Key})
}

func (h *Handler) pullThrough(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
