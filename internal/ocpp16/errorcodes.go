package ocpp16

// ErrorCode enumerates the OCPP-J 1.6 CallError codes a CALLERROR frame may
// carry.
type ErrorCode string

const (
	ErrGenericError                  ErrorCode = "GenericError"
	ErrFormatViolation               ErrorCode = "FormatViolation"
	ErrNotImplemented                ErrorCode = "NotImplemented"
	ErrNotSupported                  ErrorCode = "NotSupported"
	ErrInternalError                 ErrorCode = "InternalError"
	ErrOccurrenceConstraintViolation ErrorCode = "OccurrenceConstraintViolation"
	ErrPropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrProtocolError                 ErrorCode = "ProtocolError"
	ErrSecurityError                 ErrorCode = "SecurityError"
	ErrTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
)
