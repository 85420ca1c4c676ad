package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mlibrary/internal/middleware"
)

type RouterDeps struct {
	Library *LibraryHandler

	// Metrics and MCP are optional http handlers mounted as-is.
	Metrics         http.Handler
	MCP             http.Handler
	UploadRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/status", deps.Library.Status)

	api.GET("/entries", deps.Library.List)
	api.GET("/entries/:id", deps.Library.Get)
	api.GET("/entries/:id/page", deps.Library.Page)
	api.GET("/entries/:id/pages", deps.Library.Pages)
	api.GET("/entries/:id/source", deps.Library.Source)
	api.DELETE("/entries/:id", deps.Library.Delete)

	api.GET("/search", deps.Library.Search)
	api.POST("/semantic-search", deps.Library.SemanticSearch)

	writeGroup := api.Group("")
	writeGroup.Use(middleware.RateLimit(deps.UploadRateLimit))
	writeGroup.POST("/upload", deps.Library.Upload)

	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.MCP != nil {
		api.Any("/mcp", gin.WrapH(deps.MCP))
	}
}
