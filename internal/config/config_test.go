package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 8, cfg.Screen.Concurrency)
	assert.InDelta(t, 3500, cfg.Screen.MaxDensity, 0.001)
	assert.InDelta(t, 3000, cfg.Rollup.MaxMeanDensity, 0.001)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SITESELECT_LOG_LEVEL", "debug")
	t.Setenv("SITESELECT_SCREEN_MIN_POPULATION", "20000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.InDelta(t, 20000, cfg.Screen.MinPopulation, 0.001)
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestValidate_OK(t *testing.T) {
	cfg := &Config{Store: StoreConfig{DatabaseURL: "postgres://localhost/siteselect"}}
	assert.NoError(t, cfg.Validate())
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "warn", Format: "console"})
	assert.NoError(t, err)
}
