// Package transaction tracks open charging transactions for one charge
// point and drives the periodic MeterValues.req a transaction emits while
// it is running.
package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/meter"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/metrics"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

// Caller is the subset of session behavior a transaction needs: making
// outbound OCPP calls.
type Caller interface {
	Call(ctx context.Context, action string, req interface{}) (interface{}, error)
}

// State tracks one open transaction.
type State struct {
	ID             int
	ConnectorID    int
	IdTag          string
	StartWh        float64
	MeterBuilder   *meter.Builder
	SampleInterval time.Duration

	cancel context.CancelFunc
}

// Manager owns every open transaction for one charge point.
type Manager struct {
	mu           sync.Mutex
	transactions map[int]*State
	caller       Caller
}

// NewManager builds a transaction manager bound to a session's Caller.
func NewManager(caller Caller) *Manager {
	return &Manager{
		transactions: make(map[int]*State),
		caller:       caller,
	}
}

// Start records a new open transaction and, when sampleInterval is
// positive, launches its periodic MeterValues.req ticker at that period; a
// zero or negative sampleInterval starts no ticker.
func (m *Manager) Start(id, connectorID int, idTag string, startWh float64, phases int, sampleInterval time.Duration) *State {
	st := &State{
		ID:             id,
		ConnectorID:    connectorID,
		IdTag:          idTag,
		StartWh:        startWh,
		MeterBuilder:   meter.NewBuilder(phases, startWh, nil),
		SampleInterval: sampleInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel

	m.mu.Lock()
	m.transactions[id] = st
	m.mu.Unlock()
	metrics.ActiveTransactions.Inc()

	if sampleInterval > 0 {
		go m.meterLoop(ctx, st)
	}
	return st
}

func (m *Manager) meterLoop(ctx context.Context, st *State) {
	ticker := time.NewTicker(st.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.emitMeterValues(ctx, st, t)
		}
	}
}

// emitMeterValues sends one MeterValues.req built from a sample with no
// current draw; it backs the built-in ticker and EmitNow. Callers with a
// live draw push it through TickSample instead.
func (m *Manager) emitMeterValues(ctx context.Context, st *State, at time.Time) {
	sample := meter.Sample{Timestamp: at, IntervalSeconds: st.SampleInterval.Seconds(), TransactionID: &st.ID}
	entry, _ := st.MeterBuilder.BuildEntry(sample)

	req := ocpp16.MeterValuesRequest{
		ConnectorId:   st.ConnectorID,
		TransactionId: st.ID,
		MeterValue:    []ocpp16.MeterValueEntry{entry},
	}
	_, _ = m.caller.Call(ctx, ocpp16.ActionMeterValues, req)
}

// EmitNow sends an out-of-cycle MeterValues.req for an open transaction,
// reporting false when id is not an open transaction.
func (m *Manager) EmitNow(ctx context.Context, id int) bool {
	m.mu.Lock()
	st, ok := m.transactions[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.emitMeterValues(ctx, st, time.Now())
	return true
}

// TickSample lets the car simulation loop push a live sample into the
// transaction's meter builder immediately, used by the fleet's charging
// loop so MeterValues.req reflects the simulated draw rather than zeros. It
// returns the built entry and the Wh increment just folded into the meter
// register, so the caller can keep its own connector energy counter in step
// with what was actually reported.
func (m *Manager) TickSample(id int, sample meter.Sample) (ocpp16.MeterValueEntry, float64) {
	m.mu.Lock()
	st, ok := m.transactions[id]
	m.mu.Unlock()
	if !ok {
		return ocpp16.MeterValueEntry{}, 0
	}
	return st.MeterBuilder.BuildEntry(sample)
}

// Get returns the state for an open transaction.
func (m *Manager) Get(id int) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.transactions[id]
	return st, ok
}

// ByConnector finds the open transaction on a connector, if any.
func (m *Manager) ByConnector(connectorID int) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.transactions {
		if st.ConnectorID == connectorID {
			return st, true
		}
	}
	return nil, false
}

// Stop ends a transaction, returning its final energy register reading in
// Wh for the StopTransaction.req's meterStop field.
func (m *Manager) Stop(id int) (finalWh float64, ok bool) {
	m.mu.Lock()
	st, exists := m.transactions[id]
	if exists {
		delete(m.transactions, id)
	}
	m.mu.Unlock()

	if !exists {
		return 0, false
	}
	st.cancel()
	metrics.ActiveTransactions.Dec()
	return st.MeterBuilder.EnergyWh, true
}

// Count returns the number of currently open transactions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}
