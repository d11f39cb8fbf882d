// Package access implements the Central Access Interface (C8): the
// federated read API plus deployment CRUD, proxying live inventory and
// monitor calls to the owning ETA (spec.md §4.8), grounded on
// _examples/original_source/Central_Telemetry_Handler/accessInterface.py.
package access

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/central/dataengine"
	"github.com/ict-serrano/telemetry-fabric/internal/model"
)

type Handler struct {
	engine     *dataengine.Engine
	httpClient *http.Client
	logger     *zap.Logger
}

func New(engine *dataengine.Engine, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, httpClient: &http.Client{Timeout: timeout}, logger: logger}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/central")
	g.GET("", h.getConfig)
	g.PUT("", h.putConfig)
	g.GET("/infrastructure", h.getInfrastructure)
	g.GET("/infrastructure/inventory/:cluster_uuid", h.getInfrastructureInventory)
	g.GET("/clusters", h.getClusters)
	g.GET("/clusters/:uuid", h.getCluster)
	g.GET("/clusters/inventory/:uuid", h.getClusterInventoryLive)
	g.GET("/clusters/monitor/:uuid", h.getClusterMonitorLive)
	g.GET("/clusters/metrics/:uuid", h.getClusterMetrics)
	g.GET("/storage_locations", h.getStorageLocations)
	g.GET("/deployments", h.getDeployments)
	g.POST("/deployments", h.postDeployments)
	g.DELETE("/deployments/:uuid", h.deleteDeployments)
	g.GET("/serrano_kernel_deployments", h.getKernelDeployments)
	g.PUT("/serrano_kernel_deployments", h.putKernelDeployments)
	g.POST("/kernel_metrics", h.postKernelMetrics)
	g.GET("/kernel_metrics", h.getKernelMetrics)
	g.GET("/deployment_specific_metrics/:uuid", h.getDeploymentSpecificMetrics)
	g.GET("/deployment_metrics/:uuid", h.getDeploymentMetrics)
	g.GET("/cluster_deployments", h.getPerClusterDeployments)
}

func (h *Handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

type configRequest struct {
	Key   string `json:"key" binding:"required"`
	Value any    `json:"value"`
}

func (h *Handler) putConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": req.Key})
}

// getInfrastructure returns the merged inventory across clusters; an
// optional ?kernels=faas|standalone filter appends the matching
// deployment-mode's kernel counters, per spec.md §4.8.
func (h *Handler) getInfrastructure(c *gin.Context) {
	clusters, err := h.engine.GetInfrastructure(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	kernels := c.Query("kernels")
	if kernels == "" {
		c.JSON(http.StatusOK, clusters)
		return
	}
	mode := model.KernelDeploymentFaaS
	if kernels == "standalone" {
		mode = model.KernelDeploymentStandalone
	}
	deployments, err := h.engine.ListKernelDeployments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var filtered []model.SerranoKernelDeployments
	for _, d := range deployments {
		if d.DeploymentMode == string(mode) {
			filtered = append(filtered, d)
		}
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "kernels": filtered})
}

func (h *Handler) getInfrastructureInventory(c *gin.Context) {
	cluster, err := h.engine.GetCluster(c.Request.Context(), c.Param("cluster_uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cluster"})
		return
	}
	c.JSON(http.StatusOK, cluster)
}

func (h *Handler) getClusters(c *gin.Context) {
	clusters, err := h.engine.GetInfrastructure(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clusters)
}

func (h *Handler) getCluster(c *gin.Context) {
	cluster, err := h.engine.GetCluster(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cluster"})
		return
	}
	c.JSON(http.StatusOK, cluster)
}

// resolveAgent looks up the agent owning clusterUUID; 404 if unknown,
// per spec.md §4.8.
func (h *Handler) resolveAgent(c *gin.Context, clusterUUID string) (dataengine.RegisteredAgent, bool) {
	agents, err := h.engine.GetRegisteredAgents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return dataengine.RegisteredAgent{}, false
	}
	agent, ok := agents[clusterUUID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cluster"})
		return dataengine.RegisteredAgent{}, false
	}
	return agent, true
}

func (h *Handler) getClusterInventoryLive(c *gin.Context) {
	agent, ok := h.resolveAgent(c, c.Param("uuid"))
	if !ok {
		return
	}
	h.proxyGet(c, agent.AgentURL+"/agent/inventory/"+c.Param("uuid"))
}

func (h *Handler) getClusterMonitorLive(c *gin.Context) {
	agent, ok := h.resolveAgent(c, c.Param("uuid"))
	if !ok {
		return
	}
	url := agent.AgentURL + "/agent/monitor/" + c.Param("uuid")
	if target := c.Query("target"); target != "" {
		url += "?target=" + target
	}
	h.proxyGet(c, url)
}

// proxyGet forwards the upstream's status code on non-2xx, per spec.md
// §4.8/§7.
func (h *Handler) proxyGet(c *gin.Context, url string) {
	ctx := c.Request.Context()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{})
		return
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("live proxy unreachable", zap.String("url", url), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{})
		return
	}
	defer resp.Body.Close()

	var body any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	c.JSON(resp.StatusCode, body)
}

func (h *Handler) getClusterMetrics(c *gin.Context) {
	all := c.Query("target") == "all"
	metrics, err := h.engine.GetClusterMetrics(c.Request.Context(), c.Param("uuid"), all)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) getStorageLocations(c *gin.Context) {
	target := c.DefaultQuery("target", "edge")
	locations, err := h.engine.GetStorageLocations(c.Request.Context(), target)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, locations)
}

func (h *Handler) getDeployments(c *gin.Context) {
	deployments, err := h.engine.ListDeployments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, deployments)
}

type deploymentRequest struct {
	DeploymentUUID string                            `json:"deployment_uuid" binding:"required"`
	Clusters       []string                          `json:"clusters" binding:"required"`
	PerCluster     map[string]model.ClusterSelector   `json:"per_cluster" binding:"required"`
}

// postDeployments fans out exactly one POST /agent/deployments to each
// listed cluster's owning agent, each carrying only that cluster's
// selector subset, per spec.md §4.8/scenario S6.
func (h *Handler) postDeployments(c *gin.Context) {
	var req deploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d := model.Deployment{DeploymentUUID: req.DeploymentUUID, Clusters: req.Clusters, PerCluster: req.PerCluster}
	if err := h.engine.UpsertDeployment(c.Request.Context(), d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	agents, err := h.engine.GetRegisteredAgents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for _, clusterUUID := range req.Clusters {
		agent, ok := agents[clusterUUID]
		if !ok {
			continue
		}
		selectors := req.PerCluster[clusterUUID]
		flat := make([]string, 0, len(selectors.Labels))
		for k, v := range selectors.Labels {
			flat = append(flat, k+"="+v)
		}
		h.fanOutDeployment(c.Request.Context(), agent.AgentURL, req.DeploymentUUID, flat)
	}

	c.JSON(http.StatusCreated, gin.H{"deployment_uuid": req.DeploymentUUID})
}

func (h *Handler) fanOutDeployment(ctx context.Context, agentURL, deploymentUUID string, selectors []string) {
	body, _ := json.Marshal(map[string]any{"deployment_uuid": deploymentUUID, "k8s_deployments": selectors})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agentURL+"/agent/deployments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("deployment fan-out failed", zap.String("agent_url", agentURL), zap.Error(err))
		return
	}
	resp.Body.Close()
}

// deleteDeployments mirrors the fan-out on delete and corrects the
// original source's tautological status check (spec.md §9): the
// canonical contract is status NOT IN {200,201}, logged otherwise.
func (h *Handler) deleteDeployments(c *gin.Context) {
	uuid := c.Param("uuid")
	deployment, err := h.engine.GetDeployment(c.Request.Context(), uuid)
	if err == nil && deployment != nil {
		agents, aerr := h.engine.GetRegisteredAgents(c.Request.Context())
		if aerr == nil {
			for _, clusterUUID := range deployment.Clusters {
				agent, ok := agents[clusterUUID]
				if !ok {
					continue
				}
				h.fanOutDeploymentDelete(c.Request.Context(), agent.AgentURL, uuid)
			}
		}
	}

	if err := h.engine.DeleteDeployment(c.Request.Context(), uuid); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployment_uuid": uuid})
}

func (h *Handler) fanOutDeploymentDelete(ctx context.Context, agentURL, deploymentUUID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, agentURL+"/agent/deployments/"+deploymentUUID, nil)
	if err != nil {
		return
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("deployment delete fan-out failed", zap.String("agent_url", agentURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		h.logger.Error("deployment delete fan-out returned error status",
			zap.String("agent_url", agentURL), zap.Int("status", resp.StatusCode))
	}
}

type kernelDeploymentRequest struct {
	ClusterUUID    string `json:"cluster_uuid" binding:"required"`
	DeploymentMode string `json:"deployment_mode" binding:"required"`
	KernelMode     string `json:"kernel_mode" binding:"required"`
	CounterDiff    int    `json:"counter_diff"`
}

func (h *Handler) getKernelDeployments(c *gin.Context) {
	list, err := h.engine.ListKernelDeployments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) putKernelDeployments(c *gin.Context) {
	var req kernelDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.UpdateKernelDeployments(c.Request.Context(), req.ClusterUUID, req.DeploymentMode, req.KernelMode, req.CounterDiff); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{})
}

type kernelMetricsRequest struct {
	Logs []map[string]any `json:"logs" binding:"required"`
}

func (h *Handler) postKernelMetrics(c *gin.Context) {
	var req kernelMetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.AddKernelMetrics(c.Request.Context(), req.Logs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{})
}

func (h *Handler) getKernelMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) getDeploymentSpecificMetrics(c *gin.Context) {
	metrics, err := h.engine.GetDeploymentSpecificMetrics(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) getDeploymentMetrics(c *gin.Context) {
	metrics, err := h.engine.GetDeploymentMetrics(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) getPerClusterDeployments(c *gin.Context) {
	rows, err := h.engine.GetPerClusterDeployments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
