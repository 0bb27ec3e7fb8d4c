package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts every read-view endpoint on engine.
func RegisterRoutes(engine *gin.Engine, deps *Dependencies) {
	engine.GET("/health", Health(deps))
	engine.GET("/ready", Ready(deps))
	engine.GET("/status", Status(deps))
	engine.GET("/services", Services(deps))
	engine.GET("/services/:name/health", ServiceHealth(deps))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
