package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"lesson-observer-go/config"
)

// CORS sets the configured access-control headers and answers preflight
// requests.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", cfg.AllowedOrigins)
		c.Header("Access-Control-Allow-Methods", cfg.AllowedMethods)
		c.Header("Access-Control-Allow-Headers", cfg.AllowedHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LimitBody caps request bodies at maxBytes. Reads past the cap fail with
// *http.MaxBytesError, which handlers answer with 413.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RegisterRoutes mounts every API route under /api
func RegisterRoutes(router *gin.Engine, h *APIHandler) {
	api := router.Group("/api")
	{
		// Analysis routes
		api.POST("/analyze", h.Analyze)
		api.POST("/gemini", h.Gemini)
		api.GET("/test-connection", h.TestConnection)

		// History routes
		api.GET("/analyses", h.ListAnalyses)
		api.DELETE("/analyses", h.ClearHistory)
		api.GET("/analyses/:id", h.GetAnalysis)
		api.GET("/analyses/:id/export", h.ExportAnalysis)
		api.PATCH("/analyses/:id/checklist/:itemId", h.ToggleChecklistItem)

		// Checklist routes
		api.GET("/checklists/:method", h.GetChecklist)
		api.POST("/import/checklist", h.ImportChecklist)

		api.GET("/ping", h.PingHandler)
	}
}

// NewRouter builds the gin engine with middleware and routes
func NewRouter(cfg *config.Config, h *APIHandler) *gin.Engine {
	gin.SetMode(strings.ToLower(cfg.Server.GinMode))
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(CORS(cfg.CORS))
	router.Use(LimitBody(cfg.Server.MaxUploadMB << 20))
	router.MaxMultipartMemory = 32 << 20
	RegisterRoutes(router, h)
	return router
}
