package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

type fakeSession struct {
	results []callResultRecord
	errors  []callErrorRecord
	pending map[string]*PendingCall
}

type callResultRecord struct {
	messageID string
	payload   interface{}
}

type callErrorRecord struct {
	messageID   string
	code        ocpp16.ErrorCode
	description string
}

func newFakeSession() *fakeSession {
	return &fakeSession{pending: make(map[string]*PendingCall)}
}

func (f *fakeSession) SendCallResult(messageID string, payload interface{}) error {
	f.results = append(f.results, callResultRecord{messageID, payload})
	return nil
}

func (f *fakeSession) SendCallError(messageID string, code ocpp16.ErrorCode, description string, details interface{}) error {
	f.errors = append(f.errors, callErrorRecord{messageID, code, description})
	return nil
}

func (f *fakeSession) TakePending(messageID string) (*PendingCall, bool) {
	p, ok := f.pending[messageID]
	if ok {
		delete(f.pending, messageID)
	}
	return p, ok
}

func TestHandleCallUnknownActionSendsNotImplemented(t *testing.T) {
	reg := NewRegistry()
	sess := newFakeSession()

	frame := &ocpp16.ParsedFrame{Type: ocpp16.TypeCall, Call: &ocpp16.Call{
		MessageID: "m1", Action: "NoSuchAction", Payload: json.RawMessage(`{}`),
	}}
	HandleFrame(reg, sess, frame)

	require.Len(t, sess.errors, 1)
	assert.Equal(t, "m1", sess.errors[0].messageID)
	assert.Equal(t, ocpp16.ErrNotImplemented, sess.errors[0].code)
	assert.Empty(t, sess.results)
}

func TestHandleCallSuccessfulHandlerSendsResult(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{
		Action:     "Heartbeat",
		Direction:  Incoming,
		NewRequest: func() interface{} { return &ocpp16.HeartbeatRequest{} },
		ReqHandler: func(sess Session, req interface{}) (interface{}, error) {
			return ocpp16.HeartbeatResponse{CurrentTime: "2026-07-29T00:00:00.000Z"}, nil
		},
	})
	sess := newFakeSession()

	frame := &ocpp16.ParsedFrame{Type: ocpp16.TypeCall, Call: &ocpp16.Call{
		MessageID: "m2", Action: "Heartbeat", Payload: json.RawMessage(`{}`),
	}}
	HandleFrame(reg, sess, frame)

	require.Len(t, sess.results, 1)
	assert.Equal(t, "m2", sess.results[0].messageID)
	assert.Empty(t, sess.errors)
}

func TestHandleCallHandlerErrorSendsCallError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{
		Action:     "Reset",
		Direction:  Incoming,
		NewRequest: func() interface{} { return &ocpp16.ResetRequest{} },
		ReqHandler: func(sess Session, req interface{}) (interface{}, error) {
			return nil, vcperr.WrapCallError(string(ocpp16.ErrInternalError), "boom")
		},
	})
	sess := newFakeSession()

	frame := &ocpp16.ParsedFrame{Type: ocpp16.TypeCall, Call: &ocpp16.Call{
		MessageID: "m3", Action: "Reset", Payload: json.RawMessage(`{"type":"Hard"}`),
	}}
	HandleFrame(reg, sess, frame)

	require.Len(t, sess.errors, 1)
	assert.Equal(t, "m3", sess.errors[0].messageID)
}

func TestHandleResultCorrelatesToPendingCall(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Descriptor{
		Action:      "Heartbeat",
		Direction:   Outgoing,
		NewResponse: func() interface{} { return &ocpp16.HeartbeatResponse{} },
	})
	sess := newFakeSession()

	var gotErr *vcperr.VCPError
	var gotResp interface{}
	sess.pending["m4"] = &PendingCall{
		Action: "Heartbeat",
		Complete: func(resp interface{}, callErr *vcperr.VCPError) {
			gotResp = resp
			gotErr = callErr
		},
	}

	frame := &ocpp16.ParsedFrame{Type: ocpp16.TypeCallResult, Result: &ocpp16.CallResult{
		MessageID: "m4", Payload: json.RawMessage(`{"currentTime":"2026-07-29T00:00:00.000Z"}`),
	}}
	HandleFrame(reg, sess, frame)

	assert.Nil(t, gotErr)
	require.NotNil(t, gotResp)
}

func TestHandleResultWithNoPendingCallIsIgnored(t *testing.T) {
	reg := NewRegistry()
	sess := newFakeSession()

	frame := &ocpp16.ParsedFrame{Type: ocpp16.TypeCallResult, Result: &ocpp16.CallResult{
		MessageID: "unknown", Payload: json.RawMessage(`{}`),
	}}
	assert.NotPanics(t, func() { HandleFrame(reg, sess, frame) })
}

func TestHandleErrorCompletesPendingCallWithError(t *testing.T) {
	sess := newFakeSession()
	var gotErr *vcperr.VCPError
	sess.pending["m5"] = &PendingCall{
		Action: "Heartbeat",
		Complete: func(resp interface{}, callErr *vcperr.VCPError) {
			gotErr = callErr
		},
	}

	frame := &ocpp16.ParsedFrame{Type: ocpp16.TypeCallError, Err: &ocpp16.CallErrorFrame{
		MessageID: "m5", ErrorCode: ocpp16.ErrInternalError, ErrorDescription: "failure",
	}}
	HandleFrame(NewRegistry(), sess, frame)

	require.NotNil(t, gotErr)
	assert.Equal(t, "failure", gotErr.Message)
}
