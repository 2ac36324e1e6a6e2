package dispatch

import (
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/metrics"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/schema"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

// HandleFrame routes one parsed inbound frame to the appropriate registry
// entry. It is safe to call from the session's receive loop directly, or
// from a per-message goroutine — it does not block on network I/O itself
// beyond the Session's send methods.
func HandleFrame(reg *Registry, sess Session, frame *ocpp16.ParsedFrame) {
	switch frame.Type {
	case ocpp16.TypeCall:
		handleCall(reg, sess, frame.Call)
	case ocpp16.TypeCallResult:
		handleResult(reg, sess, frame.Result)
	case ocpp16.TypeCallError:
		handleError(sess, frame.Err)
	}
}

func handleCall(reg *Registry, sess Session, call *ocpp16.Call) {
	metrics.CallsReceived.WithLabelValues(call.Action).Inc()

	desc, ok := reg.lookup(call.Action, Incoming)
	if !ok {
		sess.SendCallError(call.MessageID, ocpp16.ErrNotImplemented, "action not implemented: "+call.Action, nil)
		return
	}

	req, err := decodeAndValidate(call.Payload, desc.NewRequest, schema.Validate)
	if err != nil {
		code, description := classify(err)
		sess.SendCallError(call.MessageID, code, description, nil)
		return
	}

	if desc.ReqHandler == nil {
		sess.SendCallError(call.MessageID, ocpp16.ErrNotImplemented, "no handler registered for "+call.Action, nil)
		return
	}

	resp, herr := desc.ReqHandler(sess, req)
	if herr != nil {
		code, description := classify(herr)
		sess.SendCallError(call.MessageID, code, description, nil)
		return
	}

	sess.SendCallResult(call.MessageID, resp)
}

func handleResult(reg *Registry, sess Session, result *ocpp16.CallResult) {
	pending, ok := sess.TakePending(result.MessageID)
	if !ok {
		return // no waiter; stale or duplicate response, nothing to correlate
	}

	desc, ok := reg.lookup(pending.Action, Outgoing)
	if !ok {
		pending.Complete(nil, vcperr.WrapCallError(string(ocpp16.ErrInternalError), "no outgoing descriptor for "+pending.Action))
		return
	}

	resp, err := decodeAndValidate(result.Payload, desc.NewResponse, schema.Validate)
	if err != nil {
		pending.Complete(nil, vcperr.WrapCallError(string(ocpp16.ErrFormatViolation), err.Error()))
		return
	}

	if desc.ResHandler != nil {
		desc.ResHandler(sess, pending.Request, resp)
	}
	pending.Complete(resp, nil)
}

func handleError(sess Session, errFrame *ocpp16.CallErrorFrame) {
	pending, ok := sess.TakePending(errFrame.MessageID)
	if !ok {
		return
	}
	pending.Complete(nil, vcperr.WrapCallError(string(errFrame.ErrorCode), errFrame.ErrorDescription))
}

// classify turns a decode/validation error into the OCPP CallError code and
// description to send back.
func classify(err error) (ocpp16.ErrorCode, string) {
	if ve, ok := err.(*vcperr.VCPError); ok && ve.Code != "" {
		return ocpp16.ErrorCode(ve.Code), ve.Message
	}
	return ocpp16.ErrFormatViolation, err.Error()
}
