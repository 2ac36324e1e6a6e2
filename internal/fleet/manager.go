package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carprofile"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

// Manager owns the roster of every charge point this process simulates.
type Manager struct {
	mu       sync.RWMutex
	chargers map[string]*ManagedCharger

	fleetCfg config.FleetConfig
	catalog  *carprofile.Catalog
	log      zerolog.Logger

	rosterPath string
}

// NewManager builds an empty fleet manager bound to fleetCfg.
func NewManager(fleetCfg config.FleetConfig, catalog *carprofile.Catalog, log zerolog.Logger) *Manager {
	return &Manager{
		chargers:   make(map[string]*ManagedCharger),
		fleetCfg:   fleetCfg,
		catalog:    catalog,
		log:        log,
		rosterPath: fleetCfg.RosterPath,
	}
}

// Add registers a new charge point in the roster without connecting it, and
// rewrites the roster file so the entry survives a restart.
func (m *Manager) Add(cfg config.ChargerConfig) error {
	if err := cfg.Validate(); err != nil {
		return vcperr.Wrap(vcperr.AdminInvalid, "invalid charger configuration", err)
	}

	m.mu.Lock()
	if _, exists := m.chargers[cfg.CpId]; exists {
		m.mu.Unlock()
		return vcperr.New(vcperr.AdminConflict, fmt.Sprintf("charge point %q already exists", cfg.CpId))
	}
	mc := newManagedCharger(cfg, m.catalog, m.log)
	if m.fleetCfg.MeterTickSeconds > 0 {
		mc.meterTick = time.Duration(m.fleetCfg.MeterTickSeconds) * time.Second
	}
	m.chargers[cfg.CpId] = mc
	updateGauges(len(m.chargers), m.countConnectedLocked())
	m.mu.Unlock()

	m.persistRoster()
	return nil
}

// Remove disconnects (if needed) and deletes a charge point from the roster,
// rewriting the roster file.
func (m *Manager) Remove(cpID string) error {
	m.mu.Lock()
	mc, ok := m.chargers[cpID]
	if !ok {
		m.mu.Unlock()
		return vcperr.New(vcperr.AdminNotFound, fmt.Sprintf("charge point %q not found", cpID))
	}
	delete(m.chargers, cpID)
	m.mu.Unlock()

	_ = mc.Disconnect()
	m.mu.Lock()
	updateGauges(len(m.chargers), m.countConnectedLocked())
	m.mu.Unlock()

	m.persistRoster()
	return nil
}

// persistRoster rewrites the roster file after a mutation. A write failure
// is logged, not surfaced: the in-memory roster stays authoritative.
func (m *Manager) persistRoster() {
	if m.rosterPath == "" {
		return
	}
	if err := m.SaveRoster(); err != nil {
		m.log.Warn().Err(err).Str("path", m.rosterPath).Msg("failed to persist roster")
	}
}

// Get returns the named charge point.
func (m *Manager) Get(cpID string) (*ManagedCharger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.chargers[cpID]
	if !ok {
		return nil, vcperr.New(vcperr.AdminNotFound, fmt.Sprintf("charge point %q not found", cpID))
	}
	return mc, nil
}

// List returns every charge point ID in the roster.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.chargers))
	for id := range m.chargers {
		ids = append(ids, id)
	}
	return ids
}

// Connect dials one charge point's session against the fleet's configured
// endpoint.
func (m *Manager) Connect(ctx context.Context, cpID string) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	m.mu.RLock()
	endpoint := m.fleetCfg.WSURL
	tlsCfg := m.fleetCfg.TLS
	timeout := time.Duration(m.fleetCfg.CallTimeoutSeconds) * time.Second
	m.mu.RUnlock()

	err = mc.Connect(ctx, endpoint, timeout, tlsCfg)
	m.mu.Lock()
	updateGauges(len(m.chargers), m.countConnectedLocked())
	m.mu.Unlock()
	return err
}

// Disconnect closes one charge point's session.
func (m *Manager) Disconnect(cpID string) error {
	mc, err := m.Get(cpID)
	if err != nil {
		return err
	}
	err = mc.Disconnect()
	m.mu.Lock()
	updateGauges(len(m.chargers), m.countConnectedLocked())
	m.mu.Unlock()
	return err
}

// ConnectAll dials every charge point currently not connected, one at a
// time in roster order. Failures are collected and returned together
// rather than aborting the rollout.
func (m *Manager) ConnectAll(ctx context.Context) map[string]error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.chargers))
	for id, mc := range m.chargers {
		if !mc.IsConnected() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	results := make(map[string]error, len(ids))
	for _, id := range ids {
		results[id] = m.Connect(ctx, id)
	}
	return results
}

// DisconnectAll closes every connected charge point's session.
func (m *Manager) DisconnectAll() map[string]error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.chargers))
	for id := range m.chargers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	results := make(map[string]error, len(ids))
	for _, id := range ids {
		results[id] = m.Disconnect(id)
	}
	return results
}

// CarProfiles lists every car profile available for plugInCar.
func (m *Manager) CarProfiles() []carprofile.Profile {
	return m.catalog.List()
}

func (m *Manager) countConnectedLocked() int {
	n := 0
	for _, mc := range m.chargers {
		if mc.IsConnected() {
			n++
		}
	}
	return n
}
