package ocpp16

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message type indicators for OCPP-J frames.
const (
	TypeCall       = 2
	TypeCallResult = 3
	TypeCallError  = 4
)

// Call is a parsed [2, messageId, action, payload] frame.
type Call struct {
	MessageID string
	Action    string
	Payload   json.RawMessage
}

// CallResult is a parsed [3, messageId, payload] frame.
type CallResult struct {
	MessageID string
	Payload   json.RawMessage
}

// CallErrorFrame is a parsed [4, messageId, errorCode, errorDescription, errorDetails] frame.
type CallErrorFrame struct {
	MessageID        string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// NewMessageID mints a fresh UUID v4 messageId, one per outbound call.
func NewMessageID() string {
	return uuid.New().String()
}

// MarshalCall serializes a Type-2 request frame.
func MarshalCall(messageID, action string, payload interface{}) ([]byte, error) {
	frame := []interface{}{TypeCall, messageID, action, payload}
	return json.Marshal(frame)
}

// MarshalCallResult serializes a Type-3 response frame.
func MarshalCallResult(messageID string, payload interface{}) ([]byte, error) {
	frame := []interface{}{TypeCallResult, messageID, payload}
	return json.Marshal(frame)
}

// MarshalCallError serializes a Type-4 error frame.
func MarshalCallError(messageID string, code ErrorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = struct{}{}
	}
	frame := []interface{}{TypeCallError, messageID, string(code), description, details}
	return json.Marshal(frame)
}

// ParsedFrame is the result of classifying an inbound OCPP-J frame. Exactly
// one of Call, Result, or Err is populated, matching Type.
type ParsedFrame struct {
	Type   int
	Call   *Call
	Result *CallResult
	Err    *CallErrorFrame
}

// FrameError describes a malformed inbound frame. MessageID carries the
// frame's messageId when one could be extracted before parsing failed, so
// the receiver can answer with a CallError instead of dropping the frame
// silently; it is empty when the frame broke before the messageId element.
type FrameError struct {
	MessageID string
	Code      ErrorCode
	msg       string
}

func (e *FrameError) Error() string { return e.msg }

func frameErr(messageID, format string, args ...interface{}) *FrameError {
	return &FrameError{MessageID: messageID, Code: ErrProtocolError, msg: fmt.Sprintf(format, args...)}
}

// ParseFrame decodes a raw OCPP-J frame and classifies it by message type.
// Frames that are not JSON arrays, whose type indicator is not an integer,
// or whose indicator is outside {2,3,4} are rejected with a *FrameError
// carrying the messageId when it was readable.
func ParseFrame(data []byte) (*ParsedFrame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, frameErr("", "frame is not a JSON array: %v", err)
	}
	if len(raw) < 3 {
		return nil, frameErr("", "frame has %d elements, need at least 3", len(raw))
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, frameErr("", "message type indicator is not an integer: %v", err)
	}

	var messageID string
	if err := json.Unmarshal(raw[1], &messageID); err != nil {
		return nil, frameErr("", "messageId is not a string: %v", err)
	}

	switch msgType {
	case TypeCall:
		if len(raw) < 4 {
			return nil, frameErr(messageID, "Call frame has %d elements, need 4", len(raw))
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, frameErr(messageID, "action is not a string: %v", err)
		}
		return &ParsedFrame{Type: msgType, Call: &Call{MessageID: messageID, Action: action, Payload: raw[3]}}, nil

	case TypeCallResult:
		return &ParsedFrame{Type: msgType, Result: &CallResult{MessageID: messageID, Payload: raw[2]}}, nil

	case TypeCallError:
		if len(raw) < 4 {
			return nil, frameErr(messageID, "CallError frame has %d elements, need at least 4", len(raw))
		}
		var code string
		if err := json.Unmarshal(raw[2], &code); err != nil {
			return nil, frameErr(messageID, "errorCode is not a string: %v", err)
		}
		var description string
		if err := json.Unmarshal(raw[3], &description); err != nil {
			return nil, frameErr(messageID, "errorDescription is not a string: %v", err)
		}
		var details json.RawMessage
		if len(raw) >= 5 {
			details = raw[4]
		}
		return &ParsedFrame{Type: msgType, Err: &CallErrorFrame{
			MessageID:        messageID,
			ErrorCode:        ErrorCode(code),
			ErrorDescription: description,
			ErrorDetails:     details,
		}}, nil

	default:
		return nil, frameErr(messageID, "unknown message type indicator %d", msgType)
	}
}
