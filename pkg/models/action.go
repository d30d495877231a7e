package models

import (
	"strings"
	"unicode/utf8"
)

// ActionKind identifies the effect an Action describes.
type ActionKind string

const (
	ActionNotification     ActionKind = "SEND_NOTIFICATION"
	ActionToggleWiFi       ActionKind = "TOGGLE_WIFI"
	ActionToggleBluetooth  ActionKind = "TOGGLE_BLUETOOTH"
	ActionToggleSettings   ActionKind = "TOGGLE_SETTINGS"
	ActionRunScript        ActionKind = "RUN_SCRIPT"
	ActionLaunchApp        ActionKind = "LAUNCH_APP"
	ActionSendSMS          ActionKind = "SEND_SMS"
	ActionPlaySound        ActionKind = "PLAY_SOUND"
	ActionSetVolume        ActionKind = "SET_VOLUME"
	ActionToggleFlashlight ActionKind = "TOGGLE_FLASHLIGHT"
	ActionSetSoundMode     ActionKind = "SET_SOUND_MODE"
	ActionBlockApps        ActionKind = "BLOCK_APPS"
)

var actionDisplayNames = map[ActionKind]string{
	ActionNotification:     "Show Notification",
	ActionToggleWiFi:       "Toggle WiFi",
	ActionToggleBluetooth:  "Toggle Bluetooth",
	ActionToggleSettings:   "Toggle Setting",
	ActionRunScript:        "Run Script",
	ActionLaunchApp:        "Launch App",
	ActionSendSMS:          "Send SMS",
	ActionPlaySound:        "Play Sound",
	ActionSetVolume:        "Set Volume",
	ActionToggleFlashlight: "Toggle Flashlight",
	ActionSetSoundMode:     "Change Sound Mode",
	ActionBlockApps:        "Block Apps",
}

// Known reports whether the kind is one this build can describe.
func (k ActionKind) Known() bool {
	_, ok := actionDisplayNames[k]

	return ok
}

// ParseActionKind normalizes a user supplied tag. Unknown tags are returned
// upper-cased.
func ParseActionKind(s string) ActionKind {
	return ActionKind(strings.ToUpper(strings.TrimSpace(s)))
}

// Priority is the urgency of a notification action.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityMax    Priority = "Max"
)

// Valid reports whether p is one of the four priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityMax:
		return true
	default:
		return false
	}
}

// ParsePriority accepts any casing and maps the legacy "Urgent" to Max.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, true
	case "normal":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	case "max", "urgent":
		return PriorityMax, true
	default:
		return "", false
	}
}

const (
	MaxNotificationTitleLength   = 50
	MaxNotificationMessageLength = 200
)

// Action is inert data describing an effect; an external executor interprets
// it. Empty strings mean "absent". Notification actions use Title, Message and
// Priority; every other kind uses Value and, for timed effects, Duration in
// milliseconds.
type Action struct {
	Kind     ActionKind `json:"type"`
	Title    string     `json:"title,omitempty"`
	Message  string     `json:"message,omitempty"`
	Priority Priority   `json:"priority,omitempty"`
	Value    string     `json:"value,omitempty"`
	Duration int64      `json:"duration,omitempty"`
}

// IsNotification reports whether the action is a notification.
func (a Action) IsNotification() bool {
	return a.Kind == ActionNotification
}

// DisplayName is a short label for lists.
func (a Action) DisplayName() string {
	if name, ok := actionDisplayNames[a.Kind]; ok {
		return name
	}

	return "Unknown Action"
}

// Validate checks the fields the action's kind requires.
func (a Action) Validate() error {
	if strings.TrimSpace(string(a.Kind)) == "" {
		return newActionError("type", "action type cannot be empty")
	}

	if !a.IsNotification() {
		if a.Title != "" || a.Message != "" || a.Priority != "" {
			return newActionError("title", "only notification actions carry title, message or priority")
		}

		if a.Duration < 0 {
			return newActionError("duration", "duration cannot be negative")
		}

		return nil
	}

	switch {
	case strings.TrimSpace(a.Title) == "":
		return newActionError("title", "notification title is required")
	case utf8.RuneCountInString(a.Title) > MaxNotificationTitleLength:
		return newActionError("title", "notification title is too long")
	case strings.TrimSpace(a.Message) == "":
		return newActionError("message", "notification message is required")
	case utf8.RuneCountInString(a.Message) > MaxNotificationMessageLength:
		return newActionError("message", "notification message is too long")
	case !a.Priority.Valid():
		return newActionError("priority", "notification priority must be one of Low, Normal, High, Max")
	case a.Value != "" || a.Duration != 0:
		return newActionError("value", "notification actions do not carry a value")
	}

	return nil
}

// NewNotificationAction builds a notification with the given priority.
func NewNotificationAction(title, message string, priority Priority) Action {
	return Action{Kind: ActionNotification, Title: title, Message: message, Priority: priority}
}

func NewWiFiToggleAction(enabled bool) Action {
	return Action{Kind: ActionToggleWiFi, Value: onOff(enabled)}
}

func NewBluetoothToggleAction(enabled bool) Action {
	return Action{Kind: ActionToggleBluetooth, Value: onOff(enabled)}
}

func NewSoundModeAction(mode string) Action {
	return Action{Kind: ActionSetSoundMode, Value: mode}
}

// NewBlockAppsAction blocks a comma separated list of packages, optionally for
// a limited time.
func NewBlockAppsAction(packages string, durationMillis int64) Action {
	return Action{Kind: ActionBlockApps, Value: packages, Duration: durationMillis}
}

func NewScriptAction(script string) Action {
	return Action{Kind: ActionRunScript, Value: script}
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}

	return "OFF"
}
