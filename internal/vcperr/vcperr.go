// Package vcperr defines the error taxonomy shared by every layer of the
// simulator, from wire parsing up through the fleet admin surface.
package vcperr

import "fmt"

// Kind classifies a VCPError so callers (and the out-of-process admin layer)
// can react without string-matching messages.
type Kind string

const (
	SchemaValidation Kind = "SchemaValidation"
	ProtocolFraming  Kind = "ProtocolFraming"
	UnknownAction    Kind = "UnknownAction"
	CallTimeout      Kind = "CallTimeout"
	CallError        Kind = "CallError"
	TransportClosed  Kind = "TransportClosed"
	ConnectFailure   Kind = "ConnectFailure"
	AdminNotFound    Kind = "AdminNotFound"
	AdminConflict    Kind = "AdminConflict"
	AdminInvalid     Kind = "AdminInvalidArgument"
)

// VCPError wraps an error with a Kind so it can be mapped to an OCPP
// CallError code on the wire or an HTTP status class at the (external) admin
// boundary, without this package knowing about HTTP.
type VCPError struct {
	Kind    Kind
	Message string
	Code    string // OCPP error code, set for CallError and for SchemaValidation errors from internal/schema
	Cause   error
}

func (e *VCPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VCPError) Unwrap() error { return e.Cause }

// New builds a VCPError with no wrapped cause.
func New(kind Kind, message string) *VCPError {
	return &VCPError{Kind: kind, Message: message}
}

// Wrap builds a VCPError around an existing error.
func Wrap(kind Kind, message string, cause error) *VCPError {
	return &VCPError{Kind: kind, Message: message, Cause: cause}
}

// WrapCallError builds a VCPError carrying an OCPP CallError code, used when
// a pending call is rejected by the CSMS.
func WrapCallError(code, description string) *VCPError {
	return &VCPError{Kind: CallError, Message: description, Code: code}
}

// Severity buckets a Kind the way an HTTP boundary would: 4xx-shaped client
// faults vs 5xx-shaped transport/server faults.
func (k Kind) Severity() string {
	switch k {
	case AdminNotFound, AdminConflict, AdminInvalid, SchemaValidation, ProtocolFraming, UnknownAction:
		return "client"
	default:
		return "server"
	}
}
