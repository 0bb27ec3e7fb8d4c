package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceDetail is one row of GET /services, joining the immutable
// structure entry with its live runtime state.
type ServiceDetail struct {
	ServiceKey string `json:"service_key"`
	WorkerID   string `json:"worker_id"`
	PM2Name    string `json:"pm2_name"`
	Port       int    `json:"port,omitempty"`
	Status     string `json:"status"`
	Health     string `json:"health"`
	PM2Status  string `json:"pm2_status"`
}

// Services lists every service instance with its current runtime state.
func Services(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := deps.Aggregator.Snapshot("on_demand")

		out := make([]ServiceDetail, 0, len(snap.Structure.Services))
		for key, inst := range snap.Structure.Services {
			rs := snap.Status.Services[key]
			out = append(out, ServiceDetail{
				ServiceKey: key,
				WorkerID:   inst.WorkerID,
				PM2Name:    inst.PM2Name,
				Port:       inst.Port,
				Status:     string(rs.Status),
				Health:     string(rs.Health),
				PM2Status:  string(rs.PM2Status),
			})
		}
		c.JSON(http.StatusOK, gin.H{"services": out})
	}
}

// ServiceHealth drills into a single service by its service_key.
func ServiceHealth(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("name")
		snap := deps.Aggregator.Snapshot("on_demand")

		inst, ok := snap.Structure.Services[key]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found", "service_key": key})
			return
		}
		rs := snap.Status.Services[key]
		c.JSON(http.StatusOK, ServiceDetail{
			ServiceKey: key,
			WorkerID:   inst.WorkerID,
			PM2Name:    inst.PM2Name,
			Port:       inst.Port,
			Status:     string(rs.Status),
			Health:     string(rs.Health),
			PM2Status:  string(rs.PM2Status),
		})
	}
}
