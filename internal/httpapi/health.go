package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gpufleet/orchestrator/internal/status"
)

// ServiceHealthEntry is one row of the per-service health slice returned
// by GET /health and GET /services.
type ServiceHealthEntry struct {
	ServiceKey string           `json:"service_key"`
	PM2Status  status.PM2Status `json:"pm2_status"`
	Health     status.Health    `json:"health"`
}

// Health reports HTTP 200 iff every supervised service is pm2_status==online.
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := deps.Aggregator.Snapshot("on_demand")

		entries := make([]ServiceHealthEntry, 0, len(snap.Status.Services))
		allOnline := true
		for key, svc := range snap.Status.Services {
			entries = append(entries, ServiceHealthEntry{ServiceKey: key, PM2Status: svc.PM2Status, Health: svc.Health})
			if svc.PM2Status != status.PM2Online {
				allOnline = false
			}
		}

		code := http.StatusOK
		if !allOnline {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"healthy": allOnline, "services": entries})
	}
}
