// Package httpapi is the external read-view (Component H): thin JSON
// endpoints over the aggregator's latest RuntimeStatus and Structure. It
// never mutates either.
package httpapi

import (
	"github.com/gpufleet/orchestrator/internal/aggregator"
)

// healthServerName is excluded from /ready's service health check: the
// admin HTTP server reporting on its own health is not a useful signal.
const healthServerName = "health-server"

// Dependencies bundles what every handler needs to answer a read-only
// query. Handlers never reach into the orchestrator or the descriptor
// loader directly; the aggregator is the single source of truth.
type Dependencies struct {
	Aggregator *aggregator.Aggregator
}
