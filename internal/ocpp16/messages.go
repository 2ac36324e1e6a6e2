package ocpp16

// Action names for every message this simulator sends or handles.
// Direction is recorded in the dispatch registry, not here.
const (
	ActionBootNotification              = "BootNotification"
	ActionHeartbeat                     = "Heartbeat"
	ActionStatusNotification            = "StatusNotification"
	ActionAuthorize                     = "Authorize"
	ActionStartTransaction              = "StartTransaction"
	ActionStopTransaction               = "StopTransaction"
	ActionMeterValues                   = "MeterValues"
	ActionDataTransfer                  = "DataTransfer"
	ActionFirmwareStatusNotification    = "FirmwareStatusNotification"
	ActionDiagnosticsStatusNotification = "DiagnosticsStatusNotification"

	ActionReset                  = "Reset"
	ActionTriggerMessage         = "TriggerMessage"
	ActionChangeConfiguration    = "ChangeConfiguration"
	ActionGetConfiguration       = "GetConfiguration"
	ActionChangeAvailability     = "ChangeAvailability"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionUnlockConnector        = "UnlockConnector"
	ActionReserveNow             = "ReserveNow"
	ActionCancelReservation      = "CancelReservation"
	ActionSetChargingProfile     = "SetChargingProfile"
	ActionClearChargingProfile   = "ClearChargingProfile"
	ActionGetCompositeSchedule   = "GetCompositeSchedule"
	ActionSendLocalList          = "SendLocalList"
	ActionGetLocalListVersion    = "GetLocalListVersion"
)

// ChargePointStatus is the per-connector status enum.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// RegistrationStatus is the BootNotification acceptance enum.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus is the idTagInfo.status enum.
type AuthorizationStatus string

const (
	AuthAccepted     AuthorizationStatus = "Accepted"
	AuthBlocked      AuthorizationStatus = "Blocked"
	AuthExpired      AuthorizationStatus = "Expired"
	AuthInvalid      AuthorizationStatus = "Invalid"
	AuthConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// --- BootNotification ---

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    string `json:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               string `json:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"required,oneof=Accepted Pending Rejected"`
	CurrentTime string             `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval"`
}

// --- Heartbeat ---

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime" validate:"required"`
}

// --- StatusNotification ---

type StatusNotificationRequest struct {
	ConnectorId     int               `json:"connectorId" validate:"gte=0"`
	ErrorCode       string            `json:"errorCode" validate:"required"`
	Status          ChargePointStatus `json:"status" validate:"required"`
	Timestamp       string            `json:"timestamp,omitempty"`
	Info            string            `json:"info,omitempty" validate:"omitempty,max=50"`
	VendorId        string            `json:"vendorId,omitempty" validate:"omitempty,max=255"`
	VendorErrorCode string            `json:"vendorErrorCode,omitempty" validate:"omitempty,max=50"`
}

type StatusNotificationResponse struct{}

// --- Authorize ---

type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

type IdTagInfo struct {
	Status      AuthorizationStatus `json:"status" validate:"required"`
	ExpiryDate  string              `json:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// --- StartTransaction ---

type StartTransactionRequest struct {
	ConnectorId   int    `json:"connectorId" validate:"gte=1"`
	IdTag         string `json:"idTag" validate:"required,max=20"`
	MeterStart    int    `json:"meterStart"`
	Timestamp     string `json:"timestamp" validate:"required"`
	ReservationId int    `json:"reservationId,omitempty"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionId int       `json:"transactionId"`
}

// --- StopTransaction ---

type StopTransactionRequest struct {
	IdTag           string            `json:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       int               `json:"meterStop"`
	Timestamp       string            `json:"timestamp" validate:"required"`
	TransactionId   int               `json:"transactionId"`
	Reason          string            `json:"reason,omitempty"`
	TransactionData []MeterValueEntry `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// --- MeterValues ---

type MeterValuesRequest struct {
	ConnectorId   int               `json:"connectorId" validate:"gte=0"`
	TransactionId int               `json:"transactionId,omitempty"`
	MeterValue    []MeterValueEntry `json:"meterValue" validate:"required,min=1"`
}

type MeterValueEntry struct {
	Timestamp    string         `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type MeterValuesResponse struct{}

// --- DataTransfer ---

type DataTransferRequest struct {
	VendorId  string `json:"vendorId" validate:"required,max=255"`
	MessageId string `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      string `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected UnknownMessageId UnknownVendorId"`
	Data   string `json:"data,omitempty"`
}

// --- FirmwareStatusNotification / DiagnosticsStatusNotification ---

type FirmwareStatusNotificationRequest struct {
	Status string `json:"status" validate:"required"`
}
type FirmwareStatusNotificationResponse struct{}

type DiagnosticsStatusNotificationRequest struct {
	Status string `json:"status" validate:"required"`
}
type DiagnosticsStatusNotificationResponse struct{}

// --- Reset ---

type ResetRequest struct {
	Type string `json:"type" validate:"required,oneof=Hard Soft"`
}
type ResetResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

// --- TriggerMessage ---

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required"`
	ConnectorId      *int   `json:"connectorId,omitempty"`
}
type TriggerMessageResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected NotImplemented"`
}

// --- ChangeConfiguration / GetConfiguration ---

type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"max=500"`
}
type ChangeConfigurationResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected RebootRequired NotSupported"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}
type ConfigurationKey struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}
type GetConfigurationResponse struct {
	ConfigurationKey []ConfigurationKey `json:"configurationKey,omitempty"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

// --- ChangeAvailability ---

type ChangeAvailabilityRequest struct {
	ConnectorId int    `json:"connectorId" validate:"gte=0"`
	Type        string `json:"type" validate:"required,oneof=Inoperative Operative"`
}
type ChangeAvailabilityResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected Scheduled"`
}

// --- Remote{Start,Stop}Transaction ---

type RemoteStartTransactionRequest struct {
	IdTag           string           `json:"idTag" validate:"required,max=20"`
	ConnectorId     int              `json:"connectorId,omitempty"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}
type RemoteStartTransactionResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}
type RemoteStopTransactionResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

// --- UnlockConnector ---

type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId" validate:"gte=1"`
}
type UnlockConnectorResponse struct {
	Status string `json:"status" validate:"required,oneof=Unlocked UnlockFailed NotSupported"`
}

// --- Reserve / Cancel ---

type ReserveNowRequest struct {
	ConnectorId   int    `json:"connectorId"`
	ExpiryDate    string `json:"expiryDate" validate:"required"`
	IdTag         string `json:"idTag" validate:"required,max=20"`
	ParentIdTag   string `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	ReservationId int    `json:"reservationId"`
}
type ReserveNowResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Faulted Occupied Rejected Unavailable"`
}

type CancelReservationRequest struct {
	ReservationId int `json:"reservationId"`
}
type CancelReservationResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

// --- Charging profiles ---

type ChargingProfile struct {
	ChargingProfileId      int               `json:"chargingProfileId"`
	TransactionId          int               `json:"transactionId,omitempty"`
	StackLevel             int               `json:"stackLevel"`
	ChargingProfilePurpose string            `json:"chargingProfilePurpose"`
	ChargingProfileKind    string            `json:"chargingProfileKind"`
	RecurrencyKind         string            `json:"recurrencyKind,omitempty"`
	ValidFrom              string            `json:"validFrom,omitempty"`
	ValidTo                string            `json:"validTo,omitempty"`
	ChargingSchedule       *ChargingSchedule `json:"chargingSchedule"`
}

type ChargingSchedule struct {
	Duration               int                      `json:"duration,omitempty"`
	StartSchedule          string                   `json:"startSchedule,omitempty"`
	ChargingRateUnit       string                   `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate        float64                  `json:"minChargingRate,omitempty"`
}

type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases int     `json:"numberPhases,omitempty"`
}

type SetChargingProfileRequest struct {
	ConnectorId     int              `json:"connectorId"`
	ChargingProfile *ChargingProfile `json:"csChargingProfiles"`
}
type SetChargingProfileResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected NotSupported"`
}

type ClearChargingProfileRequest struct {
	Id                     *int   `json:"id,omitempty"`
	ConnectorId            *int   `json:"connectorId,omitempty"`
	ChargingProfilePurpose string `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int   `json:"stackLevel,omitempty"`
}
type ClearChargingProfileResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Unknown"`
}

type GetCompositeScheduleRequest struct {
	ConnectorId      int    `json:"connectorId"`
	Duration         int    `json:"duration"`
	ChargingRateUnit string `json:"chargingRateUnit,omitempty"`
}
type GetCompositeScheduleResponse struct {
	Status           string            `json:"status" validate:"required,oneof=Accepted Rejected"`
	ConnectorId      int               `json:"connectorId,omitempty"`
	ScheduleStart    string            `json:"scheduleStart,omitempty"`
	ChargingSchedule *ChargingSchedule `json:"chargingSchedule,omitempty"`
}

// --- Local auth list ---

type AuthorizationData struct {
	IdTag     string     `json:"idTag" validate:"required,max=20"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type SendLocalListRequest struct {
	ListVersion   int                 `json:"listVersion"`
	LocalAuthList []AuthorizationData `json:"localAuthorizationList,omitempty"`
	UpdateType    string              `json:"updateType" validate:"required,oneof=Differential Full"`
}
type SendLocalListResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Failed NotSupported VersionMismatch"`
}

type GetLocalListVersionRequest struct{}
type GetLocalListVersionResponse struct {
	ListVersion int `json:"listVersion"`
}
