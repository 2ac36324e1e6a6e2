// Package connector models one connector's charging status state machine
// and the StatusNotification emissions that accompany each transition.
package connector

import (
	"fmt"
	"sync"
	"time"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/metrics"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

// Status is a connector's OCPP 1.6 ChargePointStatus value.
type Status = ocpp16.ChargePointStatus

// allowed holds the adjacency list of the status machine: from each status,
// which statuses a single transition may move to. Faulted and Unavailable
// are reachable from anywhere; recovery from either returns to Available.
var allowed = map[Status][]Status{
	ocpp16.StatusAvailable: {
		ocpp16.StatusPreparing, ocpp16.StatusReserved,
		ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusPreparing: {
		ocpp16.StatusCharging, ocpp16.StatusSuspendedEV, ocpp16.StatusSuspendedEVSE,
		ocpp16.StatusAvailable, ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusCharging: {
		ocpp16.StatusSuspendedEV, ocpp16.StatusSuspendedEVSE,
		ocpp16.StatusFinishing, ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusSuspendedEV: {
		ocpp16.StatusCharging, ocpp16.StatusSuspendedEVSE,
		ocpp16.StatusFinishing, ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusSuspendedEVSE: {
		ocpp16.StatusCharging, ocpp16.StatusSuspendedEV,
		ocpp16.StatusFinishing, ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusFinishing: {
		ocpp16.StatusAvailable, ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusReserved: {
		ocpp16.StatusPreparing, ocpp16.StatusAvailable,
		ocpp16.StatusUnavailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusUnavailable: {
		ocpp16.StatusAvailable, ocpp16.StatusFaulted,
	},
	ocpp16.StatusFaulted: {
		ocpp16.StatusAvailable, ocpp16.StatusUnavailable,
	},
}

// State is one connector's mutable charging state.
type State struct {
	mu sync.Mutex

	ConnectorID      int
	Status           Status
	ErrorCode        string
	OfferedCurrentA  float64
	ReportedPowerW   float64
	EnergyImportedWh float64
	TransactionID    *int

	notify func(st Status, errorCode string, timestamp time.Time)
}

// Snapshot is a point-in-time copy of a connector's state, safe to hand out
// across goroutines and to marshal at the admin boundary.
type Snapshot struct {
	ConnectorID      int     `json:"connectorId"`
	Status           Status  `json:"status"`
	ErrorCode        string  `json:"errorCode"`
	OfferedCurrentA  float64 `json:"offeredCurrentA"`
	ReportedPowerW   float64 `json:"reportedPowerW"`
	EnergyImportedWh float64 `json:"energyImportedWh"`
	TransactionID    *int    `json:"transactionId,omitempty"`
}

// New builds a connector in Available/NoError with no transaction, ready to
// have its notify callback set by whoever wires it to a session.
func New(connectorID int) *State {
	return &State{
		ConnectorID: connectorID,
		Status:      ocpp16.StatusAvailable,
		ErrorCode:   "NoError",
	}
}

// OnNotify registers the callback fired after every accepted transition,
// used to emit a StatusNotification.req.
func (s *State) OnNotify(fn func(st Status, errorCode string, timestamp time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Transition attempts to move the connector to a new status with the given
// error code. It returns an error if the transition is not permitted from
// the current status; Faulted and Unavailable can be entered from any
// status as an interrupt.
func (s *State) Transition(to Status, errorCode string) error {
	s.mu.Lock()
	from := s.Status
	allowedTargets, ok := allowed[from]
	permitted := false
	if to == from || to == ocpp16.StatusFaulted || to == ocpp16.StatusUnavailable {
		permitted = true
	} else if ok {
		for _, t := range allowedTargets {
			if t == to {
				permitted = true
				break
			}
		}
	}
	if !permitted {
		s.mu.Unlock()
		return fmt.Errorf("connector %d: transition %s -> %s not permitted", s.ConnectorID, from, to)
	}

	s.Status = to
	s.ErrorCode = errorCode
	notify := s.notify
	s.mu.Unlock()

	metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	if notify != nil {
		notify(to, errorCode, timeNow())
	}
	return nil
}

// Snapshot returns a copy of the mutable fields, safe for reading
// concurrently with Transition and meter updates.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ConnectorID:      s.ConnectorID,
		Status:           s.Status,
		ErrorCode:        s.ErrorCode,
		OfferedCurrentA:  s.OfferedCurrentA,
		ReportedPowerW:   s.ReportedPowerW,
		EnergyImportedWh: s.EnergyImportedWh,
		TransactionID:    s.TransactionID,
	}
}

// SetOffered updates the offered current and power without a status
// transition, used when the charging current limit is changed.
func (s *State) SetOffered(currentA, powerW float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OfferedCurrentA = currentA
	s.ReportedPowerW = powerW
}

// AddEnergy accumulates imported energy, used by the meter builder.
func (s *State) AddEnergy(deltaWh float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EnergyImportedWh += deltaWh
}

// BindTransaction records or clears the active transaction ID.
func (s *State) BindTransaction(id *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransactionID = id
}

// timeNow is a seam so tests can stub the clock if needed; production code
// always uses the wall clock.
var timeNow = time.Now
