package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxTimeTriggerOffset bounds how far a Time trigger may sit from now, in
	// either direction.
	MaxTimeTriggerOffset = 24 * time.Hour

	maxBLENameLength = 248
	maxSSIDLength    = 32

	wifiSSIDKey = "wifiSsid"
)

var (
	macAddressPattern  = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)
	packageNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)*$`)
)

// IsValid validates against the current wall clock.
func IsValid(kind TriggerKind, value string) bool {
	return ValidateAt(kind, value, time.Now()) == nil
}

// IsValidAt is the clock-explicit form of IsValid; it has no other inputs.
func IsValidAt(kind TriggerKind, value string, now time.Time) bool {
	return ValidateAt(kind, value, now) == nil
}

// ValidationErrorMessage returns the reason (kind, value) is invalid, or "".
// It exists for UI feedback only.
func ValidationErrorMessage(kind TriggerKind, value string) string {
	err := ValidateAt(kind, value, time.Now())
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}

	return err.Error()
}

// ValidateAt checks a trigger value against its kind's grammar. It performs no
// I/O; the only time dependency is the explicit now.
func ValidateAt(kind TriggerKind, value string, now time.Time) error {
	tag := strings.TrimSpace(string(kind))
	value = strings.TrimSpace(value)

	if tag == "" {
		return newTriggerError("type", "trigger type cannot be empty")
	}

	if value == "" {
		return newTriggerError("value", "trigger value cannot be empty")
	}

	switch TriggerKind(tag) {
	case TriggerTime:
		_, err := parseTimeAt(value, now)

		return err
	case TriggerBLE:
		return validateBLE(value)
	case TriggerLocation:
		_, err := ParseLocation(value)

		return err
	case TriggerWiFi:
		_, err := ParseWiFi(value)

		return err
	case TriggerAppLaunch:
		_, err := ParseAppPackage(value)

		return err
	case TriggerBatteryLevel:
		_, err := ParseBatteryLevel(value)

		return err
	case TriggerChargingState:
		_, err := ParseChargingState(value)

		return err
	case TriggerHeadphoneState:
		_, err := ParseHeadphoneState(value)

		return err
	default:
		return newTriggerError("type", fmt.Sprintf("unknown trigger type: %s", tag))
	}
}

// ParseTime returns the target instant of a Time trigger value without
// checking the validity window.
func ParseTime(value string) (time.Time, error) {
	millis, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, newTriggerError("value", "invalid timestamp format or value out of range")
	}

	return time.UnixMilli(millis), nil
}

func parseTimeAt(value string, now time.Time) (time.Time, error) {
	target, err := ParseTime(value)
	if err != nil {
		return time.Time{}, err
	}

	if target.Before(now.Add(-MaxTimeTriggerOffset)) || target.After(now.Add(MaxTimeTriggerOffset)) {
		return time.Time{}, newTriggerError("value", "invalid timestamp format or value out of range")
	}

	return target, nil
}

func validateBLE(value string) error {
	if macAddressPattern.MatchString(value) {
		return nil
	}

	if n := utf8.RuneCountInString(value); n < 1 || n > maxBLENameLength {
		return newTriggerError("value", "invalid BLE device address or name format")
	}

	return nil
}

// IsMACAddress reports whether value is a colon or hyphen delimited MAC.
func IsMACAddress(value string) bool {
	return macAddressPattern.MatchString(strings.TrimSpace(value))
}

// WiFiState is the radio or connection state a WiFi trigger expects.
type WiFiState string

const (
	WiFiOn           WiFiState = "ON"
	WiFiOff          WiFiState = "OFF"
	WiFiConnected    WiFiState = "CONNECTED"
	WiFiDisconnected WiFiState = "DISCONNECTED"
)

func parseWiFiState(s string) (WiFiState, bool) {
	switch state := WiFiState(strings.ToUpper(strings.TrimSpace(s))); state {
	case WiFiOn, WiFiOff, WiFiConnected, WiFiDisconnected:
		return state, true
	default:
		return "", false
	}
}

// WiFiCondition is a parsed WiFi trigger value. SSID is set only when the
// value names a network.
type WiFiCondition struct {
	State WiFiState
	SSID  string
}

type wifiValue struct {
	TargetState *string `json:"wifiTargetState"`
	State       *string `json:"state"`
	SSID        *string `json:"wifiSsid"`
	LegacySSID  *string `json:"ssid"`
}

// ParseWiFi accepts a bare state or a JSON object with a target state and/or
// an SSID. An SSID without a state means "connected to that network".
func ParseWiFi(value string) (WiFiCondition, error) {
	value = strings.TrimSpace(value)
	invalid := newTriggerError("value", "invalid WiFi state or SSID format")

	if !looksLikeJSONObject(value) {
		state, ok := parseWiFiState(value)
		if !ok {
			return WiFiCondition{}, invalid
		}

		return WiFiCondition{State: state}, nil
	}

	if err := checkSchema(wifiSchema, value); err != nil {
		return WiFiCondition{}, invalid
	}

	var raw wifiValue
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return WiFiCondition{}, invalid
	}

	cond := WiFiCondition{State: WiFiConnected}

	target := raw.TargetState
	if target == nil {
		target = raw.State
	}

	if target != nil {
		state, ok := parseWiFiState(*target)
		if !ok {
			return WiFiCondition{}, invalid
		}

		cond.State = state
	}

	ssid := raw.SSID
	if ssid == nil {
		ssid = raw.LegacySSID
	}

	if ssid != nil {
		n := utf8.RuneCountInString(*ssid)
		if strings.TrimSpace(*ssid) == "" || n > maxSSIDLength {
			return WiFiCondition{}, invalid
		}

		cond.SSID = *ssid
	}

	return cond, nil
}

type appLaunchValue struct {
	PackageName string `json:"appPackageName"`
}

// ParseAppPackage returns the package name of an AppLaunch trigger value.
func ParseAppPackage(value string) (string, error) {
	value = strings.TrimSpace(value)
	invalid := newTriggerError("value", "invalid app package name")

	name := value

	if looksLikeJSONObject(value) {
		if err := checkSchema(appLaunchSchema, value); err != nil {
			return "", invalid
		}

		var raw appLaunchValue
		if err := json.Unmarshal([]byte(value), &raw); err != nil {
			return "", invalid
		}

		name = strings.TrimSpace(raw.PackageName)
	}

	if len(name) < 3 || len(name) > 255 || !packageNamePattern.MatchString(name) {
		return "", invalid
	}

	return name, nil
}

// ParseBatteryLevel returns the percentage of a BatteryLevel trigger value.
func ParseBatteryLevel(value string) (int, error) {
	level, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || level < 0 || level > 100 {
		return 0, newTriggerError("value", "battery level must be an integer between 0 and 100")
	}

	return level, nil
}

// ChargingState is the power source state a ChargingState trigger expects.
type ChargingState string

const (
	Charging    ChargingState = "CHARGING"
	NotCharging ChargingState = "NOT_CHARGING"
	Plugged     ChargingState = "PLUGGED"
	Unplugged   ChargingState = "UNPLUGGED"
)

// PluggedIn reports whether the state implies external power.
func (s ChargingState) PluggedIn() bool {
	return s == Charging || s == Plugged
}

func ParseChargingState(value string) (ChargingState, error) {
	switch state := ChargingState(strings.ToUpper(strings.TrimSpace(value))); state {
	case Charging, NotCharging, Plugged, Unplugged:
		return state, nil
	default:
		return "", newTriggerError("value", "charging state must be one of CHARGING, NOT_CHARGING, PLUGGED, UNPLUGGED")
	}
}

// ParseHeadphoneState returns true for CONNECTED and false for DISCONNECTED.
func ParseHeadphoneState(value string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "CONNECTED":
		return true, nil
	case "DISCONNECTED":
		return false, nil
	default:
		return false, newTriggerError("value", "headphone state must be CONNECTED or DISCONNECTED")
	}
}
