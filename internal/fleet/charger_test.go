package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carprofile"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

func TestPlugInCarTransitionsAvailableToPreparing(t *testing.T) {
	mc := testCharger(t)
	require.NoError(t, mc.PlugInCar(1, "generic-medium", 0.5))

	status, err := mc.GetCarStatus(1)
	require.NoError(t, err)
	assert.True(t, status.Attached)
	assert.Equal(t, "generic-medium", status.ProfileID)
	assert.Equal(t, 0.5, status.Soc)

	conn := mc.Connectors[1]
	assert.Equal(t, ocpp16.StatusPreparing, conn.Snapshot().Status)
}

func TestPlugInCarRejectsUnknownProfile(t *testing.T) {
	mc := testCharger(t)
	err := mc.PlugInCar(1, "no-such-profile", 0.5)
	assert.Error(t, err)
}

func TestPlugInCarRejectsUnknownConnector(t *testing.T) {
	mc := testCharger(t)
	err := mc.PlugInCar(99, "generic-medium", 0.5)
	assert.Error(t, err)
}

func TestPlugInCarLimitsPhasesToConnectorCapability(t *testing.T) {
	cfg := config.ChargerConfig{CpId: "cp-1p", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}
	mc := newManagedCharger(cfg, carprofile.NewCatalog(), zerolog.Nop())
	require.NoError(t, mc.PlugInCar(1, "3p-fast", 0.5))
	// 3p-fast profile has 3 phases but the charger only supports 1.
	mc.mu.RLock()
	sim := mc.carSims[1]
	mc.mu.RUnlock()
	assert.Equal(t, 3, sim.Profile.Phases)
	assert.Equal(t, 1, sim.EffectivePhases)
}

func TestUnplugCarWithNoTransactionReturnsToAvailable(t *testing.T) {
	mc := testCharger(t)
	require.NoError(t, mc.PlugInCar(1, "generic-medium", 0.5))
	require.NoError(t, mc.UnplugCar(1))

	status, err := mc.GetCarStatus(1)
	require.NoError(t, err)
	assert.False(t, status.Attached)
	assert.Equal(t, ocpp16.StatusAvailable, mc.Connectors[1].Snapshot().Status)
}

func TestSetConnectorStatusDefaultsErrorCodeToNoError(t *testing.T) {
	mc := testCharger(t)
	require.NoError(t, mc.SetConnectorStatus(1, ocpp16.StatusUnavailable, ""))
	snap := mc.Connectors[1].Snapshot()
	assert.Equal(t, ocpp16.StatusUnavailable, snap.Status)
	assert.Equal(t, "NoError", snap.ErrorCode)
}

func TestSetChargingCurrentUpdatesOfferedPower(t *testing.T) {
	mc := testCharger(t)
	require.NoError(t, mc.SetChargingCurrent(1, 16))
	snap := mc.Connectors[1].Snapshot()
	assert.Equal(t, 16.0, snap.OfferedCurrentA)
	assert.Equal(t, 16.0*3*230, snap.ReportedPowerW)
}

func TestResetEnergyZeroesRegister(t *testing.T) {
	mc := testCharger(t)
	mc.Connectors[1].AddEnergy(500)
	require.NoError(t, mc.ResetEnergy(1))
	assert.Equal(t, 0.0, mc.Connectors[1].Snapshot().EnergyImportedWh)
}

func TestSetTransactionIDBindsAndClears(t *testing.T) {
	mc := testCharger(t)
	id := 77
	require.NoError(t, mc.SetTransactionID(1, &id))
	assert.Equal(t, 77, *mc.Connectors[1].Snapshot().TransactionID)

	require.NoError(t, mc.SetTransactionID(1, nil))
	assert.Nil(t, mc.Connectors[1].Snapshot().TransactionID)
}

func TestStartTransactionFailsWhenNotConnected(t *testing.T) {
	mc := testCharger(t)
	err := mc.StartTransaction(context.Background(), 1, "TAG1")
	assert.Error(t, err)
}

func TestStopTransactionFailsWithNoOpenTransaction(t *testing.T) {
	mc := testCharger(t)
	err := mc.StopTransaction(context.Background(), 1, "Local")
	assert.Error(t, err)
}

var fakeCSMSUpgrader = websocket.Upgrader{
	Subprotocols: []string{"ocpp1.6"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// fakeCSMS upgrades one connection and answers just enough of the boot and
// transaction handshake to let a charge point reach a running transaction,
// forwarding every MeterValues.req it receives onto meterValues.
func fakeCSMS(t *testing.T, meterValues chan<- ocpp16.MeterValuesRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fakeCSMSUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := ocpp16.ParseFrame(data)
			if err != nil || frame.Type != ocpp16.TypeCall {
				continue
			}

			var resp []byte
			switch frame.Call.Action {
			case ocpp16.ActionBootNotification:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.BootNotificationResponse{
					Status: ocpp16.RegistrationAccepted, CurrentTime: "2026-07-29T00:00:00.000Z", Interval: 0,
				})
			case ocpp16.ActionStatusNotification:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.StatusNotificationResponse{})
			case ocpp16.ActionAuthorize:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.AuthorizeResponse{
					IdTagInfo: ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted},
				})
			case ocpp16.ActionStartTransaction:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.StartTransactionResponse{
					IdTagInfo: ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}, TransactionId: 777,
				})
			case ocpp16.ActionMeterValues:
				var req ocpp16.MeterValuesRequest
				_ = json.Unmarshal(frame.Call.Payload, &req)
				select {
				case meterValues <- req:
				default:
				}
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.MeterValuesResponse{})
			default:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, struct{}{})
			}
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// silentStartCSMS answers the boot and authorize handshake but never
// responds to StartTransaction.req, so the charge point's call times out.
func silentStartCSMS(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fakeCSMSUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := ocpp16.ParseFrame(data)
			if err != nil || frame.Type != ocpp16.TypeCall {
				continue
			}

			var resp []byte
			switch frame.Call.Action {
			case ocpp16.ActionStartTransaction:
				continue // the .conf never arrives
			case ocpp16.ActionBootNotification:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.BootNotificationResponse{
					Status: ocpp16.RegistrationAccepted, CurrentTime: "2026-07-29T00:00:00.000Z", Interval: 0,
				})
			case ocpp16.ActionAuthorize:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, ocpp16.AuthorizeResponse{
					IdTagInfo: ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted},
				})
			default:
				resp, _ = ocpp16.MarshalCallResult(frame.Call.MessageID, struct{}{})
			}
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}))
}

func TestStartTransactionKeepsPlaceholderIDWhenConfNeverArrives(t *testing.T) {
	srv := silentStartCSMS(t)
	defer srv.Close()

	cfg := config.ChargerConfig{CpId: "cp-orphan", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}
	mc := newManagedCharger(cfg, carprofile.NewCatalog(), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mc.Connect(ctx, wsURL(srv.URL), 200*time.Millisecond, nil))
	defer mc.Disconnect()

	require.NoError(t, mc.StartTransaction(ctx, 1, "TAG1"),
		"a missing StartTransaction.conf must not fail the local transaction")

	snap := mc.Connectors[1].Snapshot()
	require.NotNil(t, snap.TransactionID, "connector must not be stranded without a bound transaction")
	assert.Negative(t, *snap.TransactionID, "locally-assigned placeholder ids are negative")
	_, open := mc.txManager.Get(*snap.TransactionID)
	assert.True(t, open, "the placeholder transaction must be tracked by the transaction manager")
	assert.NotEqual(t, ocpp16.StatusPreparing, snap.Status, "connector must move on from Preparing")
}

func TestMeterLoopSendsMeterValuesDuringRunningTransaction(t *testing.T) {
	prevInterval := meterTickInterval
	meterTickInterval = 20 * time.Millisecond
	defer func() { meterTickInterval = prevInterval }()

	meterValues := make(chan ocpp16.MeterValuesRequest, 4)
	srv := fakeCSMS(t, meterValues)
	defer srv.Close()

	cfg := config.ChargerConfig{CpId: "cp-meter", Vendor: "Acme", Model: "X1", NumConnectors: 1, Phases: 1}
	mc := newManagedCharger(cfg, carprofile.NewCatalog(), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mc.Connect(ctx, wsURL(srv.URL), 2*time.Second, nil))
	defer mc.Disconnect()

	require.NoError(t, mc.StartTransaction(ctx, 1, "TAG1"))
	require.NoError(t, mc.SetConnectorStatus(1, ocpp16.StatusCharging, ""))
	require.NoError(t, mc.SetChargingCurrent(1, 16))

	select {
	case req := <-meterValues:
		assert.Equal(t, 1, req.ConnectorId)
		assert.Equal(t, 777, req.TransactionId)
		require.Len(t, req.MeterValue, 1)
		require.NotEmpty(t, req.MeterValue[0].SampledValue)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a MeterValues.req to be sent to the CSMS during a running transaction")
	}
}
