package handlers

import (
	"net/http"

	"plant_monitor/internal/hub"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	stream   *hub.Hub
	metrics  http.Handler
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, stream *hub.Hub, metrics http.Handler, log *logger.Logger) *Handler {
	return &Handler{services: services, stream: stream, metrics: metrics, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// WebSocket streams (HTTP upgrade) on the same port
	router.GET("/ws", h.wsMachines)
	router.GET("/ws/notifications", h.wsNotifications)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		machines := api.Group("/machines")
		{
			machines.GET("/", h.listMachines)
			machines.GET("/status", h.latestStatuses)
			machines.GET("/:plant_id/:machine_id/data", h.historicalData)
			machines.GET("/:plant_id/:machine_id/filtered", h.filteredData)
		}

		api.GET("/kpis", h.listKPIs)

		notifications := api.Group("/notifications")
		{
			notifications.GET("/", h.listNotifications)
			notifications.PUT("/:id/resolve", h.resolveNotification)
		}
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
