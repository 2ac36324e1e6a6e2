package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carprofile"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/connector"
)

// AdminAPI is the narrow command surface an external HTTP layer binds to;
// *Manager is its in-process implementation. Every method is safe to call
// concurrently.
type AdminAPI interface {
	ListChargers() []ChargerSummary
	GetCharger(cpID string) (ChargerSummary, error)
	AddCharger(cfg config.ChargerConfig) error
	GenerateChargers(prefix string, count int, baseConfig config.ChargerConfig) ([]string, error)
	RemoveCharger(cpID string) error
	Connect(ctx context.Context, cpID string) error
	ConnectAll(ctx context.Context) map[string]error
	Disconnect(cpID string) error
	SetConnectorStatus(cpID string, connectorID int, status connector.Status, errorCode string) error
	SetChargingCurrent(cpID string, connectorID int, amps float64) error
	SetTransactionID(cpID string, connectorID int, txID *int) error
	StartTransaction(ctx context.Context, cpID string, connectorID int, idTag string) error
	StopTransaction(ctx context.Context, cpID string, connectorID int, reason string) error
	ResetEnergy(cpID string, connectorID int) error
	PlugInCar(cpID string, connectorID int, profileID string, initialSoc float64) error
	UnplugCar(cpID string, connectorID int) error
	GetCarStatus(cpID string, connectorID int) (CarStatus, error)
	ListCarProfiles() []carprofile.Profile
	BulkSetConnectorStatus(cpIDs []string, connectorID int, status connector.Status, errorCode string) map[string]error
	BulkSetChargingCurrent(cpIDs []string, connectorID int, amps float64) map[string]error
	BulkSendChangeConfiguration(cpIDs []string, key, value string) map[string]error
	GetWsUrl() string
	SetWsUrl(url string)
}

var _ AdminAPI = (*Manager)(nil)

// ChargerSummary is the listChargers/getCharger view of one roster entry.
type ChargerSummary struct {
	CpId       string               `json:"cpId"`
	Config     config.ChargerConfig `json:"config"`
	Connected  bool                 `json:"connected"`
	Connectors []connector.Snapshot `json:"connectors"`
}

// summarize builds one roster entry's external view, connectors ordered by
// ID.
func summarize(cpID string, mc *ManagedCharger) ChargerSummary {
	mc.mu.RLock()
	conns := make([]connector.Snapshot, 0, len(mc.Connectors))
	for _, c := range mc.Connectors {
		conns = append(conns, c.Snapshot())
	}
	cfg := mc.Config
	mc.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].ConnectorID < conns[j].ConnectorID })
	return ChargerSummary{
		CpId:       cpID,
		Config:     cfg,
		Connected:  mc.IsConnected(),
		Connectors: conns,
	}
}

// ListChargers reports every roster entry with its live connector states.
func (m *Manager) ListChargers() []ChargerSummary {
	m.mu.RLock()
	ids := make([]string, 0, len(m.chargers))
	for id := range m.chargers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]ChargerSummary, 0, len(ids))
	for _, id := range ids {
		mc, err := m.Get(id)
		if err != nil {
			continue
		}
		out = append(out, summarize(id, mc))
	}
	return out
}

// GetCharger reports one roster entry with its live connector states.
func (m *Manager) GetCharger(cpID string) (ChargerSummary, error) {
	mc, err := m.Get(cpID)
	if err != nil {
		return ChargerSummary{}, err
	}
	return summarize(cpID, mc), nil
}

// Snapshot returns the same per-charger view ListChargers serves, for tests
// and debug tooling that want a point-in-time copy of the whole fleet.
func (m *Manager) Snapshot() []ChargerSummary {
	return m.ListChargers()
}

// AddCharger registers cfg in the roster and persists the updated roster
// file.
func (m *Manager) AddCharger(cfg config.ChargerConfig) error {
	return m.Add(cfg)
}

// RemoveCharger drops cpID from the roster, disconnecting it first, and
// persists the updated roster file.
func (m *Manager) RemoveCharger(cpID string) error {
	return m.Remove(cpID)
}

// GenerateChargers synthesizes count chargers named prefix-NNN (1-based,
// 3-digit zero-padded) from baseConfig, adding each to the roster. It
// returns the generated cpIds in order; a failure partway through still
// returns the ids added so far alongside the error.
func (m *Manager) GenerateChargers(prefix string, count int, baseConfig config.ChargerConfig) ([]string, error) {
	ids := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		cpID := fmt.Sprintf("%s-%03d", prefix, i)
		cfg := baseConfig
		cfg.CpId = cpID
		if err := m.Add(cfg); err != nil {
			return ids, err
		}
		ids = append(ids, cpID)
	}
	return ids, nil
}

// GetWsUrl reports the CSMS endpoint new Connect calls dial.
func (m *Manager) GetWsUrl() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fleetCfg.WSURL
}

// SetWsUrl overrides the CSMS endpoint for subsequent Connect calls. It
// does not affect already-open sessions.
func (m *Manager) SetWsUrl(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fleetCfg.WSURL = url
}

// PlugInCar attaches a car simulator to a connector without affecting any
// transaction.
func (m *Manager) PlugInCar(cpID string, connectorID int, profileID string, initialSoc float64) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.PlugInCar(connectorID, profileID, initialSoc)
}

// UnplugCar detaches a connector's car simulator without affecting any
// transaction.
func (m *Manager) UnplugCar(cpID string, connectorID int) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.UnplugCar(connectorID)
}

// StartTransaction authorizes idTag and opens a transaction on a connector.
func (m *Manager) StartTransaction(ctx context.Context, cpID string, connectorID int, idTag string) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.StartTransaction(ctx, connectorID, idTag)
}

// StopTransaction closes whatever transaction is open on a connector.
func (m *Manager) StopTransaction(ctx context.Context, cpID string, connectorID int, reason string) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.StopTransaction(ctx, connectorID, reason)
}

// SetConnectorStatus forces a connector's StatusNotification state.
func (m *Manager) SetConnectorStatus(cpID string, connectorID int, status connector.Status, errorCode string) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.SetConnectorStatus(connectorID, status, errorCode)
}

// SetChargingCurrent overrides the current a connector offers its car.
func (m *Manager) SetChargingCurrent(cpID string, connectorID int, amps float64) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.SetChargingCurrent(connectorID, amps)
}

// SetTransactionID overrides the transaction ID bound to a connector, for
// exercising CSMS behavior against an out-of-band or duplicate ID.
func (m *Manager) SetTransactionID(cpID string, connectorID int, txID *int) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.SetTransactionID(connectorID, txID)
}

// ResetEnergy zeroes a connector's accumulated energy register.
func (m *Manager) ResetEnergy(cpID string, connectorID int) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	return mc.ResetEnergy(connectorID)
}

// GetCarStatus reports the simulated car attached to a connector, if any.
func (m *Manager) GetCarStatus(cpID string, connectorID int) (CarStatus, error) {
	mc, err := m.Get(cpID)
	if err != nil {
		return CarStatus{}, err
	}
	return mc.GetCarStatus(connectorID)
}

// ListCarProfiles lists every car profile available for plugInCar.
func (m *Manager) ListCarProfiles() []carprofile.Profile {
	return m.catalog.List()
}

// BulkResult is one charge point's outcome within a bulk operation.
type BulkResult struct {
	CpId string `json:"cpId"`
	Err  error  `json:"-"`
}

func (m *Manager) bulk(cpIDs []string, fn func(cpID string) error) map[string]error {
	results := make(map[string]error, len(cpIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range cpIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := fn(id)
			mu.Lock()
			results[id] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

// BulkSetConnectorStatus applies SetConnectorStatus across a set of charge
// points, best-effort, returning each one's outcome.
func (m *Manager) BulkSetConnectorStatus(cpIDs []string, connectorID int, status connector.Status, errorCode string) map[string]error {
	return m.bulk(cpIDs, func(id string) error {
		return m.SetConnectorStatus(id, connectorID, status, errorCode)
	})
}

// BulkSetChargingCurrent applies SetChargingCurrent across a set of charge
// points, best-effort, returning each one's outcome.
func (m *Manager) BulkSetChargingCurrent(cpIDs []string, connectorID int, amps float64) map[string]error {
	return m.bulk(cpIDs, func(id string) error {
		return m.SetChargingCurrent(id, connectorID, amps)
	})
}

// BulkSendChangeConfiguration applies a configuration key/value across a
// set of charge points' local configuration tables, the same way an
// incoming ChangeConfiguration.req from a CSMS would, best-effort.
func (m *Manager) BulkSendChangeConfiguration(cpIDs []string, key, value string) map[string]error {
	return m.bulk(cpIDs, func(id string) error {
		mc, err := m.Get(id)
		if err != nil {
			return err
		}
		if status := mc.setConfigValue(key, value); status != "Accepted" {
			return &rejectedConfigError{key: key, status: status}
		}
		return nil
	})
}

type rejectedConfigError struct {
	key    string
	status string
}

func (e *rejectedConfigError) Error() string {
	return "configuration key " + e.key + ": " + e.status
}
