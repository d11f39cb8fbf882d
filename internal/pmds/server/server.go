// Package server exposes internal/pmds/query over HTTP. spec.md lists
// the PMDS query API itself as out of scope ("straight lookups over the
// stores") — this is the thin, unauthenticated wrapper a real deployment
// would put Basic auth and a gateway in front of.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ict-serrano/telemetry-fabric/internal/pmds/query"
)

type Handler struct {
	engine *query.Engine
	logger *zap.Logger
}

func New(engine *query.Engine, logger *zap.Logger) *gin.Engine {
	h := &Handler{engine: engine, logger: logger}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	g := r.Group("/pmds")
	g.GET("/:bucket/nodes/:group", h.nodes)
	g.GET("/:bucket/persistent_volumes", h.persistentVolumes)
	g.GET("/:bucket/pods", h.pods)
	g.GET("/:bucket/deployments", h.deployments)
	g.GET("/:bucket/edge_storage", h.edgeStorage)
	g.GET("/serrano_deployments", h.serranoDeployments)
	return r
}

func paramsFromQuery(c *gin.Context) query.Params {
	format := query.FormatCompact
	if c.Query("format") == string(query.FormatRaw) {
		format = query.FormatRaw
	}
	return query.Params{
		Start:       c.Query("start"),
		Stop:        c.Query("stop"),
		Namespace:   c.Query("namespace"),
		Name:        c.Query("name"),
		NodeName:    c.Query("node_name"),
		ClusterUUID: c.Query("cluster_uuid"),
		Phase:       c.Query("phase"),
		Format:      format,
	}
}

func (h *Handler) nodes(c *gin.Context) {
	rows, err := h.engine.QueryNodes(c.Request.Context(), c.Param("bucket"), c.Param("group"), paramsFromQuery(c))
	h.respond(c, rows, err)
}

func (h *Handler) persistentVolumes(c *gin.Context) {
	rows, err := h.engine.QueryPersistentVolumes(c.Request.Context(), c.Param("bucket"), paramsFromQuery(c))
	h.respond(c, rows, err)
}

func (h *Handler) pods(c *gin.Context) {
	rows, err := h.engine.QueryPods(c.Request.Context(), c.Param("bucket"), paramsFromQuery(c))
	h.respond(c, rows, err)
}

func (h *Handler) deployments(c *gin.Context) {
	rows, err := h.engine.QueryDeployments(c.Request.Context(), c.Param("bucket"), paramsFromQuery(c))
	h.respond(c, rows, err)
}

func (h *Handler) edgeStorage(c *gin.Context) {
	rows, err := h.engine.QueryEdgeStorage(c.Request.Context(), c.Param("bucket"), paramsFromQuery(c))
	h.respond(c, rows, err)
}

func (h *Handler) serranoDeployments(c *gin.Context) {
	rows, err := h.engine.QuerySerranoDeployments(c.Request.Context(), paramsFromQuery(c))
	h.respond(c, rows, err)
}

func (h *Handler) respond(c *gin.Context, rows any, err error) {
	if err != nil {
		h.logger.Error("pmds query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
