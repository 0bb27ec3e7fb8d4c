package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gpufleet/orchestrator/internal/status"
)

// Ready reports HTTP 200 iff the machine has reached phase=ready and every
// service other than the admin HTTP server itself is healthy.
func Ready(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := deps.Aggregator.Snapshot("on_demand")

		ready := snap.Status.Machine.Phase == status.PhaseReady
		for key, svc := range snap.Status.Services {
			inst, ok := snap.Structure.Services[key]
			if ok && (inst.ServiceType == healthServerName || inst.PM2Name == healthServerName) {
				continue
			}
			if svc.Health != status.HealthHealthy {
				ready = false
			}
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"ready": ready, "phase": snap.Status.Machine.Phase})
	}
}
