package fleet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/ocpp16"
)

// configEntry is one configuration key's stored value and mutability.
type configEntry struct {
	value    string
	readonly bool
}

// ensureConfig lazily seeds the full OCPP 1.6 Core/SmartCharging/LocalAuth
// configuration table this simulator reports via GetConfiguration, derived
// from the charger's static capabilities where applicable.
func (mc *ManagedCharger) ensureConfig() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.ocppConfig != nil {
		return
	}

	rotations := make([]string, 0, mc.Config.NumConnectors+1)
	for i := 0; i <= mc.Config.NumConnectors; i++ {
		rotations = append(rotations, fmt.Sprintf("%d.RST", i))
	}

	mc.ocppConfig = map[string]configEntry{
		"SupportedFeatureProfiles":                {value: "Core,FirmwareManagement,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger", readonly: true},
		"NumberOfConnectors":                      {value: strconv.Itoa(mc.Config.NumConnectors), readonly: true},
		"HeartbeatInterval":                       {value: "300"},
		"ConnectionTimeOut":                       {value: "60"},
		"GetConfigurationMaxKeys":                 {value: "99", readonly: true},
		"MeterValueSampleInterval":                {value: "15"},
		"MeterValuesSampledData":                  {value: "Energy.Active.Import.Register,Power.Active.Import,Current.Import,Voltage"},
		"MeterValuesAlignedData":                  {value: "Energy.Active.Import.Register"},
		"ClockAlignedDataInterval":                {value: "0"},
		"AuthorizeRemoteTxRequests":               {value: "false"},
		"LocalAuthorizeOffline":                   {value: "true"},
		"LocalPreAuthorize":                       {value: "false"},
		"AuthorizationCacheEnabled":               {value: "true"},
		"StopTransactionOnEVSideDisconnect":       {value: "true"},
		"StopTransactionOnInvalidId":              {value: "true"},
		"UnlockConnectorOnEVSideDisconnect":       {value: "true"},
		"ChargeProfileMaxStackLevel":              {value: "99", readonly: true},
		"ChargingScheduleAllowedChargingRateUnit": {value: "Current,Power", readonly: true},
		"ChargingScheduleMaxPeriods":              {value: "24", readonly: true},
		"MaxChargingProfilesInstalled":            {value: "10", readonly: true},
		"LocalAuthListEnabled":                    {value: "true"},
		"LocalAuthListMaxLength":                  {value: "100", readonly: true},
		"SendLocalListMaxLength":                  {value: "100", readonly: true},
		"ReserveConnectorZeroSupported":           {value: "true", readonly: true},
		"ConnectorPhaseRotation":                  {value: strings.Join(rotations, ",")},
		"ConnectorPhaseRotationMaxLength":         {value: strconv.Itoa(mc.Config.NumConnectors + 1), readonly: true},
		"ChargePointVendor":                       {value: mc.Config.Vendor, readonly: true},
		"ChargePointModel":                        {value: mc.Config.Model, readonly: true},
		"ChargePointSerialNumber":                 {value: mc.Config.SerialNumber, readonly: true},
		"FirmwareVersion":                         {value: mc.Config.FirmwareVersion, readonly: true},
		"MeterType":                               {value: mc.Config.MeterType, readonly: true},
		"MeterSerialNumber":                       {value: mc.Config.MeterSerialNumber, readonly: true},
	}
}

// setConfigValue implements ChangeConfiguration: unknown keys are rejected
// with NotSupported, readonly keys with Rejected, matching the table
// ensureConfig seeds.
func (mc *ManagedCharger) setConfigValue(key, value string) string {
	mc.ensureConfig()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	entry, ok := mc.ocppConfig[key]
	if !ok {
		return "NotSupported"
	}
	if entry.readonly {
		return "Rejected"
	}
	entry.value = value
	mc.ocppConfig[key] = entry
	return "Accepted"
}

func (mc *ManagedCharger) getConfigValues(keys []string) ([]ocpp16.ConfigurationKey, []string) {
	mc.ensureConfig()
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(keys) == 0 {
		out := make([]ocpp16.ConfigurationKey, 0, len(mc.ocppConfig))
		for k, e := range mc.ocppConfig {
			v := e.value
			out = append(out, ocpp16.ConfigurationKey{Key: k, Readonly: e.readonly, Value: &v})
		}
		return out, nil
	}

	var out []ocpp16.ConfigurationKey
	var unknown []string
	for _, k := range keys {
		e, ok := mc.ocppConfig[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		v := e.value
		out = append(out, ocpp16.ConfigurationKey{Key: k, Readonly: e.readonly, Value: &v})
	}
	return out, unknown
}
