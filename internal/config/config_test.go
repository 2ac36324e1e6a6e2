package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCharger() ChargerConfig {
	return ChargerConfig{
		CpId: "cp-1", Vendor: "Acme", Model: "X1",
		NumConnectors: 1, Phases: 1,
	}
}

func TestChargerConfigValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := validCharger()
	assert.NoError(t, cfg.Validate())
}

func TestChargerConfigValidateRejectsMissingIdentity(t *testing.T) {
	cfg := validCharger()
	cfg.CpId = ""
	assert.Error(t, cfg.Validate())
}

func TestChargerConfigValidateRejectsBadPhaseCount(t *testing.T) {
	cfg := validCharger()
	cfg.Phases = 2
	assert.Error(t, cfg.Validate())
}

func TestChargerConfigValidateRejectsConnectorCountOutOfRange(t *testing.T) {
	cfg := validCharger()
	cfg.NumConnectors = 100
	assert.Error(t, cfg.Validate())
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFleetConfig().WSURL, cfg.WSURL)
	assert.Equal(t, 120, cfg.CallTimeoutSeconds)
	assert.Equal(t, 15, cfg.MeterTickSeconds)
}

func TestLoadAppliesFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "ws_url: ws://csms.example/ocpp\ncall_timeout_seconds: 30\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://csms.example/ocpp", cfg.WSURL)
	assert.Equal(t, 30, cfg.CallTimeoutSeconds)
}

func TestLoadEnvOverridesWsUrl(t *testing.T) {
	t.Setenv("WS_URL", "ws://env-override/ocpp")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws://env-override/ocpp", cfg.WSURL)
}

func TestWebSocketSchemeChecks(t *testing.T) {
	assert.True(t, IsWebSocketScheme("ws://host/path"))
	assert.True(t, IsWebSocketScheme("wss://host/path"))
	assert.False(t, IsWebSocketScheme("http://host/path"))
	assert.True(t, IsSecureScheme("wss://host/path"))
	assert.False(t, IsSecureScheme("ws://host/path"))
}
