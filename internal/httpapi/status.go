package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gpufleet/orchestrator/internal/status"
	"github.com/gpufleet/orchestrator/internal/structure"
)

// StatusResponse is the full /status payload: the aggregator's RuntimeStatus
// plus the immutable Structure and a few fields a dashboard would otherwise
// have to recompute itself.
type StatusResponse struct {
	MachineID string                `json:"machine_id"`
	Timestamp int64                 `json:"timestamp"`
	UptimeMS  int64                 `json:"uptime_ms"`
	Structure *structure.Structure  `json:"structure"`
	Status    *status.RuntimeStatus `json:"status"`
	Endpoints map[string]string     `json:"endpoints"`
	HealthURL string                `json:"health_url"`
}

// Status serves the full status document.
func Status(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := deps.Aggregator.Snapshot("on_demand")

		endpoints := make(map[string]string, len(snap.Structure.Services))
		for key, svc := range snap.Structure.Services {
			if svc.Port == 0 {
				continue
			}
			endpoints[key] = fmt.Sprintf("http://%s:%d", svc.ExpectedHost, svc.Port)
		}

		c.JSON(http.StatusOK, StatusResponse{
			MachineID: snap.MachineID,
			Timestamp: time.Now().UnixMilli(),
			UptimeMS:  snap.Status.Machine.UptimeMS,
			Structure: snap.Structure,
			Status:    snap.Status,
			Endpoints: endpoints,
			HealthURL: snap.HealthURL,
		})
	}
}
