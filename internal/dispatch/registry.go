// Package dispatch holds two action-keyed registries (Incoming = CSMS→VCP,
// Outgoing = VCP→CSMS), schema-validating both directions and routing each
// decoded payload to a per-action handler function.
package dispatch

import (
	"encoding/json"
	"sync"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

// Direction records which side originates a message.
type Direction int

const (
	Incoming Direction = iota // CSMS -> VCP
	Outgoing                  // VCP -> CSMS
)

// ReqHandler processes an Incoming Call and returns the CallResult payload,
// or a *vcperr.VCPError (Kind CallError, Code set) to send a CallError
// instead.
type ReqHandler func(sess Session, req interface{}) (resp interface{}, err error)

// ResHandler fires when a pending Outgoing call's CallResult arrives,
// receiving the original request and the decoded, schema-validated
// response.
type ResHandler func(sess Session, req interface{}, resp interface{})

// Descriptor is the per-action registration record.
type Descriptor struct {
	Action      string
	Direction   Direction
	NewRequest  func() interface{}
	NewResponse func() interface{}
	ReqHandler  ReqHandler // only meaningful for Incoming
	ResHandler  ResHandler // only meaningful for Outgoing
}

// PendingCall is the server-side correlation record for one outstanding
// Outgoing call.
type PendingCall struct {
	Action   string
	Request  interface{}
	Complete func(resp interface{}, callErr *vcperr.VCPError)
}

// Session is the minimal surface Dispatch needs from a VCP session: send
// frames, and pop a pending call by messageId. internal/session.Session
// implements this.
type Session interface {
	SendCallResult(messageID string, payload interface{}) error
	SendCallError(messageID string, code ocpp16.ErrorCode, description string, details interface{}) error
	TakePending(messageID string) (*PendingCall, bool)
}

// Registry holds the two action-keyed descriptor maps for one OCPP
// dialect/session. Each ManagedCharger builds its own Registry so that
// ReqHandlers can close over that charger's state.
type Registry struct {
	mu       sync.RWMutex
	incoming map[string]*Descriptor
	outgoing map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		incoming: make(map[string]*Descriptor),
		outgoing: make(map[string]*Descriptor),
	}
}

// Register adds or replaces a descriptor, keyed by (action, direction).
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Direction == Incoming {
		r.incoming[d.Action] = d
	} else {
		r.outgoing[d.Action] = d
	}
}

func (r *Registry) lookup(action string, dir Direction) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var m map[string]*Descriptor
	if dir == Incoming {
		m = r.incoming
	} else {
		m = r.outgoing
	}
	d, ok := m[action]
	return d, ok
}

// decodeAndValidate unmarshals raw into a fresh value produced by newVal and
// validates it against its struct tags.
func decodeAndValidate(raw json.RawMessage, newVal func() interface{}, validate func(interface{}) error) (interface{}, error) {
	val := newVal()
	if err := json.Unmarshal(raw, val); err != nil {
		return nil, vcperr.Wrap(vcperr.ProtocolFraming, "payload is not valid JSON for this action", err)
	}
	if err := validate(val); err != nil {
		return nil, err
	}
	return val, nil
}
