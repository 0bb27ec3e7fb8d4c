// Package config resolves the orchestrator's runtime configuration from
// the environment and persists the last-known-good derived Structure for
// diagnostics, mirroring the teacher's atomic JSON config manager.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	orcherrors "github.com/gpufleet/orchestrator/internal/errors"
)

// Config is the fully-resolved set of environment variables spec.md's
// external interfaces table names.
type Config struct {
	Workers              string
	MachineID            string
	StatusUpdateInterval time.Duration
	RedisURL             string
	WorkerAuthToken      string
	GPUMode              string
	ServicePortOverrides map[string]int
	AdminAddr            string
}

const (
	GPUModeActual = "actual"
	GPUModeMock   = "mock"

	envWorkers          = "WORKERS"
	envMachineID        = "MACHINE_ID"
	envStatusInterval   = "MACHINE_STATUS_UPDATE_INTERVAL_SECONDS"
	envRedisURL         = "HUB_REDIS_URL"
	envAuthToken        = "WORKER_WEBSOCKET_AUTH_TOKEN"
	envGPUMode          = "GPU_MODE"
	envComfyUIPortStart = "COMFYUI_PORT_START"
	envAdminAddr        = "GGOD_ADMIN_ADDR"
)

// servicePortEnv lists the *_PORT overrides spec.md's table allows,
// mirrored against the service names the bundled mapping table defines.
var servicePortEnv = map[string]string{
	"comfyui":    "COMFYUI_PORT_START",
	"a1111":      "A1111_PORT",
	"ollama":     "OLLAMA_PORT",
	"simulation": "SIMULATION_PORT",
}

// Load reads the environment into a Config, applying the defaults spec.md
// specifies. WORKERS is the only variable whose absence is fatal.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault(envStatusInterval, 10)
	v.SetDefault(envGPUMode, GPUModeActual)
	v.SetDefault(envAdminAddr, ":9090")

	workers := v.GetString(envWorkers)
	if workers == "" {
		return nil, orcherrors.BadRequest("WORKERS is required")
	}

	overrides := make(map[string]int)
	for svc, env := range servicePortEnv {
		if p := v.GetInt(env); p > 0 {
			overrides[svc] = p
		}
	}

	return &Config{
		Workers:              workers,
		MachineID:            v.GetString(envMachineID),
		StatusUpdateInterval: time.Duration(v.GetInt(envStatusInterval)) * time.Second,
		RedisURL:             v.GetString(envRedisURL),
		WorkerAuthToken:      v.GetString(envAuthToken),
		GPUMode:              v.GetString(envGPUMode),
		ServicePortOverrides: overrides,
		AdminAddr:            v.GetString(envAdminAddr),
	}, nil
}
