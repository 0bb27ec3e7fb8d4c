package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envWorkers, envMachineID, envStatusInterval, envRedisURL, envAuthToken, envGPUMode, envComfyUIPortStart, envAdminAddr, "A1111_PORT", "OLLAMA_PORT", "SIMULATION_PORT"} {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoadRequiresWorkers(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv(envWorkers, "simulation:1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "simulation:1", cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.StatusUpdateInterval)
	assert.Equal(t, GPUModeActual, cfg.GPUMode)
	assert.Equal(t, ":9090", cfg.AdminAddr)
}

func TestLoadParsesServicePortOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv(envWorkers, "ollama:1")
	os.Setenv("OLLAMA_PORT", "11500")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 11500, cfg.ServicePortOverrides["ollama"])
}
