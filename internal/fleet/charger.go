// Package fleet manages a roster of virtual charge points: connecting and
// disconnecting sessions, wiring each charge point's OCPP dispatch
// registry, running its per-connector car simulation loops, and serving
// the admin operations that control all of it.
package fleet

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carprofile"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carsim"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/connector"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/dispatch"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/meter"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/metrics"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/session"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/transaction"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

// meterTickInterval is how often a charging connector's draw is resampled
// and reported via MeterValues.req. A var, not a const, so tests can shrink
// it rather than waiting out the real interval.
var meterTickInterval = 15 * time.Second

// placeholderTxSeq feeds nextPlaceholderTxID.
var placeholderTxSeq int64

// nextPlaceholderTxID hands out locally-unique negative transaction ids for
// transactions whose StartTransaction.conf never arrived. Negative so a
// late CSMS-assigned id can never collide with one.
func nextPlaceholderTxID() int {
	return -int(atomic.AddInt64(&placeholderTxSeq, 1))
}

// CarStatus is the snapshot returned by GetCarStatus.
type CarStatus struct {
	Attached          bool
	ProfileID         string
	Soc               float64
	ActualCurrentA    float64
	EnergyDeliveredWh float64
}

// ManagedCharger is one charge point's runtime state: its configuration,
// connectors, any live session, and the transaction manager bound to it.
type ManagedCharger struct {
	mu sync.RWMutex

	Config     config.ChargerConfig
	Connectors map[int]*connector.State

	sess       *session.Session
	registry   *dispatch.Registry
	txManager  *transaction.Manager
	carSims    map[int]*carsim.Simulator
	meterStop  map[int]chan struct{}
	ocppConfig map[string]configEntry
	meterTick  time.Duration
	log        zerolog.Logger

	catalog *carprofile.Catalog
}

func newManagedCharger(cfg config.ChargerConfig, catalog *carprofile.Catalog, log zerolog.Logger) *ManagedCharger {
	mc := &ManagedCharger{
		Config:     cfg,
		Connectors: make(map[int]*connector.State, cfg.NumConnectors),
		carSims:    make(map[int]*carsim.Simulator),
		meterStop:  make(map[int]chan struct{}),
		meterTick:  meterTickInterval,
		log:        log.With().Str("cp_id", cfg.CpId).Logger(),
		catalog:    catalog,
	}
	for i := 1; i <= cfg.NumConnectors; i++ {
		mc.Connectors[i] = connector.New(i)
	}
	return mc
}

// IsConnected reports whether a session is currently live.
func (mc *ManagedCharger) IsConnected() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.sess != nil
}

// Connect dials the CSMS, sends BootNotification, and starts the
// heartbeat loop. Calling Connect while already connected returns an
// AdminConflict error.
func (mc *ManagedCharger) Connect(ctx context.Context, endpoint string, callTimeout time.Duration, tlsCfg *config.TLSConfig) error {
	if !config.IsWebSocketScheme(endpoint) {
		return vcperr.New(vcperr.AdminInvalid, fmt.Sprintf("endpoint %q is not a ws:// or wss:// URL", endpoint))
	}

	mc.mu.Lock()
	if mc.sess != nil {
		mc.mu.Unlock()
		return vcperr.New(vcperr.AdminConflict, "charge point already connected")
	}

	reg := mc.buildRegistry()
	sess := session.New(session.Options{
		Endpoint:      endpoint,
		ChargePointID: mc.Config.CpId,
		Registry:      reg,
		TLS:           tlsCfg,
		CallTimeout:   callTimeout,
		Logger:        mc.log,
		OnClose: func(err error) {
			mc.handleDisconnect(err)
		},
	})
	mc.sess = sess
	mc.registry = reg
	mc.txManager = transaction.NewManager(sess)
	mc.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		mc.mu.Lock()
		mc.sess = nil
		mc.mu.Unlock()
		return err
	}

	time.Sleep(100 * time.Millisecond)

	if err := mc.bootNotification(ctx); err != nil {
		mc.log.Warn().Err(err).Msg("BootNotification failed")
	}

	return nil
}

func (mc *ManagedCharger) handleDisconnect(err error) {
	mc.mu.Lock()
	mc.sess = nil
	stops := mc.meterStop
	mc.meterStop = make(map[int]chan struct{})
	mc.mu.Unlock()

	for _, stop := range stops {
		close(stop)
	}

	if err != nil {
		mc.log.Warn().Err(err).Msg("session closed")
	} else {
		mc.log.Info().Msg("session closed")
	}
}

// Disconnect closes the live session, if any. The meter loops are stopped
// by the session's close callback once its receive loop exits, not before
// Disconnect returns; connector/transaction state is left untouched.
func (mc *ManagedCharger) Disconnect() error {
	mc.mu.Lock()
	sess := mc.sess
	mc.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}

func (mc *ManagedCharger) bootNotification(ctx context.Context) error {
	mc.mu.RLock()
	sess := mc.sess
	cfg := mc.Config
	mc.mu.RUnlock()
	if sess == nil {
		return vcperr.New(vcperr.TransportClosed, "not connected")
	}

	req := ocpp16.BootNotificationRequest{
		ChargePointVendor:       cfg.Vendor,
		ChargePointModel:        cfg.Model,
		ChargePointSerialNumber: cfg.SerialNumber,
		FirmwareVersion:         cfg.FirmwareVersion,
		Iccid:                   cfg.Iccid,
		Imsi:                    cfg.Imsi,
		MeterType:               cfg.MeterType,
		MeterSerialNumber:       cfg.MeterSerialNumber,
	}

	resp, err := sess.Call(ctx, ocpp16.ActionBootNotification, req)
	if err != nil {
		return fmt.Errorf("BootNotification failed: %w", err)
	}

	bootResp, ok := resp.(*ocpp16.BootNotificationResponse)
	if !ok {
		return fmt.Errorf("unexpected BootNotification response type")
	}

	mc.log.Info().Str("status", string(bootResp.Status)).Int("interval", bootResp.Interval).Msg("BootNotification accepted")

	if bootResp.Status == ocpp16.RegistrationAccepted && bootResp.Interval > 0 {
		go mc.heartbeatLoop(time.Duration(bootResp.Interval) * time.Second)
	}

	_ = mc.sendStatusNotification(ctx, 0, ocpp16.StatusAvailable, "NoError")
	ids := make([]int, 0, len(mc.Connectors))
	for id := range mc.Connectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		conn := mc.Connectors[id]
		conn.OnNotify(mc.statusNotifier(id))
		snap := conn.Snapshot()
		_ = mc.sendStatusNotification(ctx, id, snap.Status, snap.ErrorCode)
	}

	return nil
}

func (mc *ManagedCharger) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		mc.mu.RLock()
		sess := mc.sess
		mc.mu.RUnlock()
		if sess == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := sess.Call(ctx, ocpp16.ActionHeartbeat, ocpp16.HeartbeatRequest{})
		cancel()
		if err != nil {
			mc.log.Warn().Err(err).Msg("Heartbeat failed")
		}
	}
}

func (mc *ManagedCharger) statusNotifier(connectorID int) func(st connector.Status, errorCode string, ts time.Time) {
	return func(st connector.Status, errorCode string, ts time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = mc.sendStatusNotification(ctx, connectorID, st, errorCode)
	}
}

func (mc *ManagedCharger) sendStatusNotification(ctx context.Context, connectorID int, status connector.Status, errorCode string) error {
	mc.mu.RLock()
	sess := mc.sess
	mc.mu.RUnlock()
	if sess == nil {
		return nil
	}
	req := ocpp16.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   errorCode,
		Status:      status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	_, err := sess.Call(ctx, ocpp16.ActionStatusNotification, req)
	return err
}

func (mc *ManagedCharger) connectorOrErr(connectorID int) (*connector.State, error) {
	mc.mu.RLock()
	conn, ok := mc.Connectors[connectorID]
	mc.mu.RUnlock()
	if !ok {
		return nil, vcperr.New(vcperr.AdminNotFound, fmt.Sprintf("connector %d not found", connectorID))
	}
	return conn, nil
}

// PlugInCar attaches a simulated EV to a connector: Available -> Preparing.
// It does not start a transaction; call StartTransaction next.
func (mc *ManagedCharger) PlugInCar(connectorID int, profileID string, initialSoc float64) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	profile, ok := mc.catalog.Get(profileID)
	if !ok {
		return vcperr.New(vcperr.AdminInvalid, fmt.Sprintf("unknown car profile %q", profileID))
	}
	if initialSoc < 0 || initialSoc > 1 {
		return vcperr.New(vcperr.AdminInvalid, fmt.Sprintf("initial SoC %.3f outside [0, 1]", initialSoc))
	}

	effPhases := profile.Phases
	if mc.Config.Phases < effPhases {
		effPhases = mc.Config.Phases
	}

	sim := carsim.New(profile, effPhases, initialSoc, rand.New(rand.NewSource(time.Now().UnixNano())))

	mc.mu.Lock()
	mc.carSims[connectorID] = sim
	mc.mu.Unlock()

	snap := conn.Snapshot()
	if snap.Status == ocpp16.StatusAvailable {
		return conn.Transition(ocpp16.StatusPreparing, "NoError")
	}
	if snap.Status == ocpp16.StatusPreparing && snap.TransactionID != nil {
		go mc.resumeAfterPlugIn(connectorID, conn)
	}
	return nil
}

func (mc *ManagedCharger) resumeAfterPlugIn(connectorID int, conn *connector.State) {
	if conn.Snapshot().Status != ocpp16.StatusSuspendedEV {
		_ = conn.Transition(ocpp16.StatusSuspendedEV, "NoError")
	}
	delay := time.Duration(2000+rand.Intn(1000)) * time.Millisecond
	time.Sleep(delay)
	if err := conn.Transition(ocpp16.StatusCharging, "NoError"); err == nil {
		mc.startMeterLoop(connectorID, conn)
	}
}

// UnplugCar detaches the simulated EV: the connector returns to Preparing
// (transaction still active) or Available.
func (mc *ManagedCharger) UnplugCar(connectorID int) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}

	mc.mu.Lock()
	delete(mc.carSims, connectorID)
	stop, hasStop := mc.meterStop[connectorID]
	delete(mc.meterStop, connectorID)
	mc.mu.Unlock()
	if hasStop {
		close(stop)
	}

	snap := conn.Snapshot()
	if snap.TransactionID != nil {
		return conn.Transition(ocpp16.StatusPreparing, "NoError")
	}
	return conn.Transition(ocpp16.StatusAvailable, "NoError")
}

// StartTransaction authorizes idTag and opens a transaction on connectorID.
// Refuses if the connector already has one bound.
func (mc *ManagedCharger) StartTransaction(ctx context.Context, connectorID int, idTag string) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	if conn.Snapshot().TransactionID != nil {
		return vcperr.New(vcperr.AdminConflict, fmt.Sprintf("connector %d already has an open transaction", connectorID))
	}

	mc.mu.RLock()
	sess := mc.sess
	mc.mu.RUnlock()
	if sess == nil {
		return vcperr.New(vcperr.TransportClosed, "not connected")
	}

	authResp, err := sess.Call(ctx, ocpp16.ActionAuthorize, ocpp16.AuthorizeRequest{IdTag: idTag})
	if err != nil {
		return fmt.Errorf("Authorize failed: %w", err)
	}
	auth, ok := authResp.(*ocpp16.AuthorizeResponse)
	if !ok || auth.IdTagInfo.Status != ocpp16.AuthAccepted {
		return vcperr.New(vcperr.AdminInvalid, "idTag not accepted by CSMS")
	}

	time.Sleep(500 * time.Millisecond)

	startWh := conn.Snapshot().EnergyImportedWh
	startReq := ocpp16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  int(startWh + 0.5),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := conn.Transition(ocpp16.StatusPreparing, "NoError"); err != nil {
		mc.log.Debug().Err(err).Msg("already Preparing")
	}

	var txID int
	startResp, err := sess.Call(ctx, ocpp16.ActionStartTransaction, startReq)
	if err != nil {
		// The StartTransaction.req is already on the wire; keep the local
		// transaction open under a placeholder id rather than stranding the
		// connector in Preparing.
		txID = nextPlaceholderTxID()
		mc.log.Warn().Err(err).Int("transaction_id", txID).
			Msg("no StartTransaction.conf, keeping transaction open under a local placeholder id")
	} else {
		start, ok := startResp.(*ocpp16.StartTransactionResponse)
		if !ok {
			return fmt.Errorf("unexpected StartTransaction response type")
		}
		txID = start.TransactionId
	}
	conn.BindTransaction(&txID)

	meterPhases := mc.Config.Phases
	mc.mu.RLock()
	if sim, ok := mc.carSims[connectorID]; ok {
		meterPhases = sim.EffectivePhases
	}
	mc.mu.RUnlock()
	mc.txManager.Start(txID, connectorID, idTag, startWh, meterPhases, 0)

	if err := conn.Transition(ocpp16.StatusSuspendedEV, "NoError"); err != nil {
		return nil
	}

	mc.mu.RLock()
	_, hasCar := mc.carSims[connectorID]
	mc.mu.RUnlock()
	if hasCar {
		go mc.resumeAfterPlugIn(connectorID, conn)
	}

	return nil
}

// StopTransaction closes the connector's open transaction.
func (mc *ManagedCharger) StopTransaction(ctx context.Context, connectorID int, reason string) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	snap := conn.Snapshot()
	if snap.TransactionID == nil {
		return vcperr.New(vcperr.AdminNotFound, fmt.Sprintf("connector %d has no open transaction", connectorID))
	}
	txID := *snap.TransactionID

	mc.mu.Lock()
	if stop, ok := mc.meterStop[connectorID]; ok {
		close(stop)
		delete(mc.meterStop, connectorID)
	}
	sess := mc.sess
	mc.mu.Unlock()

	var finalWh float64
	if mc.txManager != nil {
		finalWh, _ = mc.txManager.Stop(txID)
	}

	if sess != nil {
		req := ocpp16.StopTransactionRequest{
			MeterStop:     int(finalWh + 0.5),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			TransactionId: txID,
			Reason:        reason,
		}
		if _, err := sess.Call(ctx, ocpp16.ActionStopTransaction, req); err != nil {
			mc.log.Warn().Err(err).Msg("StopTransaction failed")
		}
	}

	conn.BindTransaction(nil)

	mc.mu.RLock()
	_, hasCar := mc.carSims[connectorID]
	mc.mu.RUnlock()
	if hasCar {
		return conn.Transition(ocpp16.StatusPreparing, "NoError")
	}
	return conn.Transition(ocpp16.StatusAvailable, "NoError")
}

func (mc *ManagedCharger) startMeterLoop(connectorID int, conn *connector.State) {
	mc.mu.Lock()
	if _, exists := mc.meterStop[connectorID]; exists {
		mc.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	mc.meterStop[connectorID] = stop
	mc.mu.Unlock()

	go mc.meterLoop(connectorID, conn, stop)
}

func (mc *ManagedCharger) meterLoop(connectorID int, conn *connector.State, stop chan struct{}) {
	ticker := time.NewTicker(mc.meterTick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			snap := conn.Snapshot()
			if snap.Status != ocpp16.StatusCharging || snap.OfferedCurrentA <= 0 || snap.TransactionID == nil {
				continue
			}

			mc.mu.RLock()
			sim, hasCar := mc.carSims[connectorID]
			txm := mc.txManager
			mc.mu.RUnlock()
			if txm == nil {
				continue
			}

			var tick carsim.TickResult
			if hasCar {
				tick = sim.Tick(snap.OfferedCurrentA, mc.meterTick)
			} else {
				tick = carsim.TickResult{ActualCurrentA: snap.OfferedCurrentA}
			}

			sample := meter.SampleFromTick(t, snap.OfferedCurrentA, mc.meterTick.Seconds(), tick, snap.TransactionID)
			if !hasCar {
				sample.Soc = nil
			}
			entry, energyDeltaWh := txm.TickSample(*snap.TransactionID, sample)
			conn.AddEnergy(energyDeltaWh)

			mc.mu.RLock()
			sess := mc.sess
			mc.mu.RUnlock()
			if sess != nil {
				req := ocpp16.MeterValuesRequest{
					ConnectorId:   connectorID,
					TransactionId: *snap.TransactionID,
					MeterValue:    []ocpp16.MeterValueEntry{entry},
				}
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := sess.Call(ctx, ocpp16.ActionMeterValues, req); err != nil {
					mc.log.Warn().Err(err).Msg("MeterValues failed")
				}
				cancel()
			}

			if hasCar && tick.ReachedFullCharge {
				close(stop)
				mc.mu.Lock()
				delete(mc.meterStop, connectorID)
				mc.mu.Unlock()
				_ = conn.Transition(ocpp16.StatusSuspendedEV, "NoError")
				return
			}
		}
	}
}

// SetConnectorStatus forces a connector's status/errorCode, emitting a
// StatusNotification if connected.
func (mc *ManagedCharger) SetConnectorStatus(connectorID int, status connector.Status, errorCode string) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	if errorCode == "" {
		errorCode = "NoError"
	}
	return conn.Transition(status, errorCode)
}

// SetChargingCurrent updates the offered current on a connector, driving
// the reported power estimate until the next meter tick recomputes it.
func (mc *ManagedCharger) SetChargingCurrent(connectorID int, amps float64) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	powerW := amps * float64(mc.Config.Phases) * 230
	conn.SetOffered(amps, powerW)

	mc.mu.RLock()
	sim, hasCar := mc.carSims[connectorID]
	mc.mu.RUnlock()
	if hasCar {
		sim.SetOffered(amps)
	}

	if amps > 0 {
		mc.startMeterLoop(connectorID, conn)
	}
	return nil
}

// SetTransactionID overrides the connector's bound transaction ID without
// going through StartTransaction/StopTransaction, for admin test fixtures.
func (mc *ManagedCharger) SetTransactionID(connectorID int, txID *int) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	conn.BindTransaction(txID)
	return nil
}

// ResetEnergy zeroes a connector's energy register.
func (mc *ManagedCharger) ResetEnergy(connectorID int) error {
	conn, err := mc.connectorOrErr(connectorID)
	if err != nil {
		return err
	}
	snap := conn.Snapshot()
	conn.AddEnergy(-snap.EnergyImportedWh)
	return nil
}

// GetCarStatus returns the attached car simulator's live state, if any.
func (mc *ManagedCharger) GetCarStatus(connectorID int) (CarStatus, error) {
	if _, err := mc.connectorOrErr(connectorID); err != nil {
		return CarStatus{}, err
	}
	mc.mu.RLock()
	sim, ok := mc.carSims[connectorID]
	mc.mu.RUnlock()
	if !ok {
		return CarStatus{Attached: false}, nil
	}
	return CarStatus{
		Attached:          true,
		ProfileID:         sim.Profile.ID,
		Soc:               sim.Soc,
		ActualCurrentA:    sim.ActualCurrentA,
		EnergyDeliveredWh: sim.EnergyDeliveredWh,
	}, nil
}

// updateGauges refreshes the roster-size gauge after a roster mutation.
// ActiveSessions is owned by internal/session (Inc/Dec around the
// WebSocket lifetime), not set here, to avoid two writers racing the same
// gauge; the connected count is accepted for callers that want it without
// a second lock round-trip but is otherwise unused by this function.
func updateGauges(total, _ int) {
	metrics.ManagedChargers.Set(float64(total))
}
