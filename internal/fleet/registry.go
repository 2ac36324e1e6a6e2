package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/dispatch"
	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

// buildRegistry wires every action this charge point sends or handles into
// a fresh dispatch.Registry, with ReqHandlers closing over mc's state so
// each charge point's incoming Calls are answered independently.
func (mc *ManagedCharger) buildRegistry() *dispatch.Registry {
	reg := dispatch.NewRegistry()

	// Outgoing descriptors only need NewResponse (to decode the CallResult);
	// ResHandler is optional bookkeeping run after Call() already unblocks
	// the caller.
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionBootNotification, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.BootNotificationResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionHeartbeat, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.HeartbeatResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionStatusNotification, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.StatusNotificationResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionAuthorize, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.AuthorizeResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionStartTransaction, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.StartTransactionResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionStopTransaction, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.StopTransactionResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionMeterValues, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.MeterValuesResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionDataTransfer, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.DataTransferResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionFirmwareStatusNotification, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.FirmwareStatusNotificationResponse{} }})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionDiagnosticsStatusNotification, Direction: dispatch.Outgoing,
		NewResponse: func() interface{} { return &ocpp16.DiagnosticsStatusNotificationResponse{} }})

	// Incoming: CSMS-initiated operations.
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionReset, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.ResetRequest{} },
		ReqHandler: mc.handleReset})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionTriggerMessage, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.TriggerMessageRequest{} },
		ReqHandler: mc.handleTriggerMessage})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionChangeConfiguration, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.ChangeConfigurationRequest{} },
		ReqHandler: mc.handleChangeConfiguration})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionGetConfiguration, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.GetConfigurationRequest{} },
		ReqHandler: mc.handleGetConfiguration})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionChangeAvailability, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.ChangeAvailabilityRequest{} },
		ReqHandler: mc.handleChangeAvailability})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionRemoteStartTransaction, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.RemoteStartTransactionRequest{} },
		ReqHandler: mc.handleRemoteStartTransaction})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionRemoteStopTransaction, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.RemoteStopTransactionRequest{} },
		ReqHandler: mc.handleRemoteStopTransaction})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionUnlockConnector, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.UnlockConnectorRequest{} },
		ReqHandler: mc.handleUnlockConnector})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionDataTransfer, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.DataTransferRequest{} },
		ReqHandler: mc.handleDataTransfer})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionReserveNow, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.ReserveNowRequest{} },
		ReqHandler: mc.handleReserveNow})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionCancelReservation, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.CancelReservationRequest{} },
		ReqHandler: mc.handleCancelReservation})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionSetChargingProfile, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.SetChargingProfileRequest{} },
		ReqHandler: mc.handleSetChargingProfile})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionClearChargingProfile, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.ClearChargingProfileRequest{} },
		ReqHandler: mc.handleClearChargingProfile})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionGetCompositeSchedule, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.GetCompositeScheduleRequest{} },
		ReqHandler: mc.handleGetCompositeSchedule})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionSendLocalList, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.SendLocalListRequest{} },
		ReqHandler: mc.handleSendLocalList})
	reg.Register(&dispatch.Descriptor{Action: ocpp16.ActionGetLocalListVersion, Direction: dispatch.Incoming,
		NewRequest: func() interface{} { return &ocpp16.GetLocalListVersionRequest{} },
		ReqHandler: mc.handleGetLocalListVersion})

	return reg
}

func (mc *ManagedCharger) handleReset(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.ResetRequest)
	mc.log.Info().Str("type", r.Type).Msg("Reset requested")
	go func() {
		time.Sleep(2 * time.Second)
		_ = mc.Disconnect()
	}()
	return &ocpp16.ResetResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleTriggerMessage(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.TriggerMessageRequest)

	switch r.RequestedMessage {
	case "BootNotification", "Heartbeat", "StatusNotification":
	default:
		return &ocpp16.TriggerMessageResponse{Status: "NotImplemented"}, nil
	}

	mc.mu.RLock()
	sess := mc.sess
	mc.mu.RUnlock()
	if sess == nil {
		return &ocpp16.TriggerMessageResponse{Status: "Rejected"}, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		switch r.RequestedMessage {
		case "BootNotification":
			_ = mc.bootNotification(ctx)
		case "Heartbeat":
			_, _ = sess.Call(ctx, ocpp16.ActionHeartbeat, ocpp16.HeartbeatRequest{})
		case "StatusNotification":
			id := 1
			if r.ConnectorId != nil {
				id = *r.ConnectorId
			}
			if conn, ok := mc.Connectors[id]; ok {
				snap := conn.Snapshot()
				_ = mc.sendStatusNotification(ctx, id, snap.Status, snap.ErrorCode)
			}
		}
	}()

	return &ocpp16.TriggerMessageResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleChangeConfiguration(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.ChangeConfigurationRequest)
	status := mc.setConfigValue(r.Key, r.Value)
	return &ocpp16.ChangeConfigurationResponse{Status: status}, nil
}

func (mc *ManagedCharger) handleGetConfiguration(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.GetConfigurationRequest)
	keys, unknown := mc.getConfigValues(r.Key)
	return &ocpp16.GetConfigurationResponse{ConfigurationKey: keys, UnknownKey: unknown}, nil
}

func (mc *ManagedCharger) handleChangeAvailability(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.ChangeAvailabilityRequest)

	apply := func(id int) error {
		conn, ok := mc.Connectors[id]
		if !ok {
			return fmt.Errorf("connector %d not found", id)
		}
		if r.Type == "Inoperative" {
			return conn.Transition(ocpp16.StatusUnavailable, "NoError")
		}
		return conn.Transition(ocpp16.StatusAvailable, "NoError")
	}

	if r.ConnectorId == 0 {
		for id := range mc.Connectors {
			_ = apply(id)
		}
		return &ocpp16.ChangeAvailabilityResponse{Status: "Accepted"}, nil
	}

	if err := apply(r.ConnectorId); err != nil {
		return &ocpp16.ChangeAvailabilityResponse{Status: "Rejected"}, nil
	}
	return &ocpp16.ChangeAvailabilityResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleRemoteStartTransaction(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.RemoteStartTransactionRequest)

	connectorID := r.ConnectorId
	if connectorID == 0 {
		connectorID = mc.firstAvailableConnector()
	}
	if connectorID == 0 {
		return &ocpp16.RemoteStartTransactionResponse{Status: "Rejected"}, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mc.StartTransaction(ctx, connectorID, r.IdTag); err != nil {
			mc.log.Warn().Err(err).Msg("RemoteStartTransaction-triggered StartTransaction failed")
		}
	}()

	return &ocpp16.RemoteStartTransactionResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleRemoteStopTransaction(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.RemoteStopTransactionRequest)

	mc.mu.RLock()
	txm := mc.txManager
	mc.mu.RUnlock()
	if txm == nil {
		return &ocpp16.RemoteStopTransactionResponse{Status: "Rejected"}, nil
	}

	st, ok := txm.Get(r.TransactionId)
	if !ok {
		return &ocpp16.RemoteStopTransactionResponse{Status: "Rejected"}, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mc.StopTransaction(ctx, st.ConnectorID, "Remote"); err != nil {
			mc.log.Warn().Err(err).Msg("RemoteStopTransaction-triggered StopTransaction failed")
		}
	}()

	return &ocpp16.RemoteStopTransactionResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleUnlockConnector(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.UnlockConnectorRequest)
	if _, ok := mc.Connectors[r.ConnectorId]; !ok {
		return &ocpp16.UnlockConnectorResponse{Status: "NotSupported"}, nil
	}
	return &ocpp16.UnlockConnectorResponse{Status: "Unlocked"}, nil
}

func (mc *ManagedCharger) handleDataTransfer(_ dispatch.Session, req interface{}) (interface{}, error) {
	mc.log.Info().Msg("DataTransfer.req received")
	return &ocpp16.DataTransferResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleReserveNow(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.ReserveNowRequest)
	if conn, ok := mc.Connectors[r.ConnectorId]; ok {
		if err := conn.Transition(ocpp16.StatusReserved, "NoError"); err != nil {
			mc.log.Debug().Err(err).Int("connector_id", r.ConnectorId).Msg("connector kept its status despite reservation")
		}
	}
	return &ocpp16.ReserveNowResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleCancelReservation(_ dispatch.Session, req interface{}) (interface{}, error) {
	for _, conn := range mc.Connectors {
		if conn.Snapshot().Status == ocpp16.StatusReserved {
			_ = conn.Transition(ocpp16.StatusAvailable, "NoError")
		}
	}
	return &ocpp16.CancelReservationResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleSetChargingProfile(_ dispatch.Session, req interface{}) (interface{}, error) {
	return &ocpp16.SetChargingProfileResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleClearChargingProfile(_ dispatch.Session, req interface{}) (interface{}, error) {
	return &ocpp16.ClearChargingProfileResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleGetCompositeSchedule(_ dispatch.Session, req interface{}) (interface{}, error) {
	r := req.(*ocpp16.GetCompositeScheduleRequest)
	return &ocpp16.GetCompositeScheduleResponse{Status: "Accepted", ConnectorId: r.ConnectorId}, nil
}

func (mc *ManagedCharger) handleSendLocalList(_ dispatch.Session, req interface{}) (interface{}, error) {
	return &ocpp16.SendLocalListResponse{Status: "Accepted"}, nil
}

func (mc *ManagedCharger) handleGetLocalListVersion(_ dispatch.Session, req interface{}) (interface{}, error) {
	return &ocpp16.GetLocalListVersionResponse{ListVersion: 0}, nil
}

func (mc *ManagedCharger) firstAvailableConnector() int {
	for id, conn := range mc.Connectors {
		if conn.Snapshot().Status == ocpp16.StatusAvailable {
			return id
		}
	}
	return 0
}
