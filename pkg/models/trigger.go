package models

import (
	"strconv"
	"strings"
	"time"
)

// TriggerKind identifies the condition a Trigger describes. Values are the
// wire tags stored in trigger blobs.
type TriggerKind string

const (
	TriggerTime           TriggerKind = "TIME"
	TriggerBLE            TriggerKind = "BLE"
	TriggerLocation       TriggerKind = "LOCATION"
	TriggerWiFi           TriggerKind = "WIFI"
	TriggerAppLaunch      TriggerKind = "APP_LAUNCH"
	TriggerBatteryLevel   TriggerKind = "BATTERY_LEVEL"
	TriggerChargingState  TriggerKind = "CHARGING_STATE"
	TriggerHeadphoneState TriggerKind = "HEADPHONE_CONNECTION"
)

// TriggerKinds lists every kind the validator and evaluator understand.
var TriggerKinds = []TriggerKind{
	TriggerTime,
	TriggerBLE,
	TriggerLocation,
	TriggerWiFi,
	TriggerAppLaunch,
	TriggerBatteryLevel,
	TriggerChargingState,
	TriggerHeadphoneState,
}

// Known reports whether k is one of TriggerKinds. Unknown kinds survive
// decoding so newer blobs can be stored and deleted by older builds.
func (k TriggerKind) Known() bool {
	for _, known := range TriggerKinds {
		if k == known {
			return true
		}
	}

	return false
}

func (k TriggerKind) String() string { return string(k) }

// ParseTriggerKind normalizes a user supplied tag. It never fails: unknown
// tags are returned as-is.
func ParseTriggerKind(s string) TriggerKind {
	return TriggerKind(strings.ToUpper(strings.TrimSpace(s)))
}

// Trigger is a typed condition attached to a workflow.
type Trigger struct {
	ID         uint64      `json:"id"`
	WorkflowID uint64      `json:"workflowId"`
	Kind       TriggerKind `json:"type"`
	Value      string      `json:"value"`
}

// IsValid reports whether the trigger's (Kind, Value) pair passes the
// validator for its kind.
func (t Trigger) IsValid() bool {
	return IsValid(t.Kind, t.Value)
}

// ValidationError returns a human readable reason the trigger is invalid, or
// the empty string.
func (t Trigger) ValidationError() string {
	return ValidationErrorMessage(t.Kind, t.Value)
}

// Validate returns a *ValidationError when the trigger is invalid.
func (t Trigger) Validate() error {
	return ValidateAt(t.Kind, t.Value, time.Now())
}

// NewTimeTrigger fires at the given instant.
func NewTimeTrigger(at time.Time) Trigger {
	return Trigger{Kind: TriggerTime, Value: strconv.FormatInt(at.UnixMilli(), 10)}
}

// NewBLETrigger matches a nearby device by MAC address or advertised name.
func NewBLETrigger(addressOrName string) Trigger {
	return Trigger{Kind: TriggerBLE, Value: addressOrName}
}

// NewLocationTrigger builds a "lat,lng,radius" geofence value.
func NewLocationTrigger(lat, lng, radius float64) Trigger {
	return Trigger{Kind: TriggerLocation, Value: FormatCoordinates(lat, lng, radius)}
}

// NewWiFiTrigger matches a WiFi radio or connection state.
func NewWiFiTrigger(state string) Trigger {
	return Trigger{Kind: TriggerWiFi, Value: strings.ToUpper(state)}
}

// NewWiFiSSIDTrigger matches a connection to a specific network.
func NewWiFiSSIDTrigger(ssid string) Trigger {
	return Trigger{Kind: TriggerWiFi, Value: mustJSON(map[string]string{wifiSSIDKey: ssid})}
}

// NewAppLaunchTrigger matches an application package coming to the foreground.
func NewAppLaunchTrigger(packageName string) Trigger {
	return Trigger{Kind: TriggerAppLaunch, Value: packageName}
}

// NewBatteryTrigger fires when the battery level drops to level or below.
func NewBatteryTrigger(level int) Trigger {
	return Trigger{Kind: TriggerBatteryLevel, Value: strconv.Itoa(level)}
}

// NewChargingTrigger matches the power source state.
func NewChargingTrigger(state string) Trigger {
	return Trigger{Kind: TriggerChargingState, Value: strings.ToUpper(state)}
}

// NewHeadphoneTrigger matches the headphone connection state.
func NewHeadphoneTrigger(state string) Trigger {
	return Trigger{Kind: TriggerHeadphoneState, Value: strings.ToUpper(state)}
}
