package fleet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

func TestGenerateChargersCreatesSequentiallyNamedRoster(t *testing.T) {
	m := testManager(t)
	ids, err := m.GenerateChargers("fleet-a", 3, config.ChargerConfig{Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"fleet-a-001", "fleet-a-002", "fleet-a-003"}, ids)
	assert.Len(t, m.List(), 3)
}

func TestGenerateChargersStopsOnFirstConflict(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "fleet-b-002", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}))

	ids, err := m.GenerateChargers("fleet-b", 3, config.ChargerConfig{Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1})
	assert.Error(t, err)
	assert.Equal(t, []string{"fleet-b-001"}, ids)
}

func TestConnectRejectsNonWebSocketEndpoint(t *testing.T) {
	m := testManager(t)
	m.SetWsUrl("http://not-a-websocket/ocpp")
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-1", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}))

	err := m.Connect(context.Background(), "cp-1")
	require.Error(t, err)
	ve, ok := err.(*vcperr.VCPError)
	require.True(t, ok)
	assert.Equal(t, vcperr.AdminInvalid, ve.Kind)
}

func TestGetAndSetWsUrl(t *testing.T) {
	m := testManager(t)
	original := m.GetWsUrl()
	assert.NotEmpty(t, original)

	m.SetWsUrl("ws://new-endpoint/ocpp")
	assert.Equal(t, "ws://new-endpoint/ocpp", m.GetWsUrl())
}

func TestBulkSetConnectorStatusReportsPerChargerOutcome(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-1", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}))
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-2", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}))

	results := m.BulkSetConnectorStatus([]string{"cp-1", "cp-2", "cp-missing"}, 1, "Unavailable", "")
	assert.NoError(t, results["cp-1"])
	assert.NoError(t, results["cp-2"])
	assert.Error(t, results["cp-missing"])
}

func TestBulkSendChangeConfigurationReportsRejections(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-1", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}))

	results := m.BulkSendChangeConfiguration([]string{"cp-1"}, "HeartbeatInterval", "60")
	assert.NoError(t, results["cp-1"])

	results = m.BulkSendChangeConfiguration([]string{"cp-1"}, "NumberOfConnectors", "5")
	assert.Error(t, results["cp-1"])
}

func TestListChargersReportsConnectorSnapshots(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-1", Vendor: "Acme", Model: "X1", NumConnectors: 2, Phases: 1}))

	summaries := m.ListChargers()
	require.Len(t, summaries, 1)
	assert.Equal(t, "cp-1", summaries[0].CpId)
	assert.False(t, summaries[0].Connected)
	assert.Len(t, summaries[0].Connectors, 2)
}

func TestGetChargerReturnsSummaryForKnownCharger(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-1", Vendor: "Acme", Model: "X1", NumConnectors: 2, Phases: 3}))

	summary, err := m.GetCharger("cp-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", summary.CpId)
	assert.Equal(t, "Acme", summary.Config.Vendor)
	assert.False(t, summary.Connected)
	require.Len(t, summary.Connectors, 2)
	assert.Equal(t, 1, summary.Connectors[0].ConnectorID)
	assert.Equal(t, 2, summary.Connectors[1].ConnectorID)
}

func TestGetChargerUnknownIdFails(t *testing.T) {
	m := testManager(t)
	_, err := m.GetCharger("cp-missing")
	require.Error(t, err)
	ve, ok := err.(*vcperr.VCPError)
	require.True(t, ok)
	assert.Equal(t, vcperr.AdminNotFound, ve.Kind)
}

func TestSnapshotMatchesListChargers(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Add(config.ChargerConfig{CpId: "cp-1", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}))
	assert.Equal(t, m.ListChargers(), m.Snapshot())
}

func TestListCarProfilesReturnsCatalog(t *testing.T) {
	m := testManager(t)
	profiles := m.ListCarProfiles()
	assert.NotEmpty(t, profiles)
}
