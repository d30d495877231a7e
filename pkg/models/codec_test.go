package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerCodec_RoundTrip(t *testing.T) {
	triggers := []Trigger{
		{ID: 1, WorkflowID: 7, Kind: TriggerLocation, Value: "37.7749,-122.4194,100"},
		{Kind: TriggerBLE, Value: "AA:BB:CC:DD:EE:FF"},
		{ID: 3, Kind: TriggerWiFi, Value: `{"wifiSsid":"Home \"Net\""}`},
		{ID: 18446744073709551615, Kind: TriggerBatteryLevel, Value: "15"},
		{Kind: TriggerKind("FUTURE_KIND"), Value: "whatever"},
	}

	for _, trigger := range triggers {
		decoded, ok := DecodeTrigger(EncodeTrigger(trigger))
		require.True(t, ok)
		assert.Equal(t, trigger, *decoded)
	}
}

func TestEncodeTrigger_AlwaysEmitsAllFields(t *testing.T) {
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(EncodeTrigger(Trigger{Kind: TriggerTime})), &fields))

	assert.Len(t, fields, 4)
	assert.Equal(t, "", fields["value"])
	assert.EqualValues(t, 0, fields["id"])
	assert.EqualValues(t, 0, fields["workflowId"])
	assert.Equal(t, "TIME", fields["type"])
}

func TestDecodeTrigger(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want *Trigger
	}{
		{name: "empty", blob: ""},
		{name: "blank", blob: "   "},
		{name: "not json", blob: "not json"},
		{name: "array", blob: `[1,2]`},
		{name: "null", blob: `null`},
		{name: "missing type", blob: `{"id":1,"value":"x"}`},
		{name: "blank type", blob: `{"type":"  ","value":"x"}`},
		{
			name: "type is trimmed",
			blob: `{"type":" BLE ","value":"Car"}`,
			want: &Trigger{Kind: TriggerBLE, Value: "Car"},
		},
		{
			name: "string ids",
			blob: `{"id":"4","workflowId":"9","type":"TIME","value":"1"}`,
			want: &Trigger{ID: 4, WorkflowID: 9, Kind: TriggerTime, Value: "1"},
		},
		{
			name: "garbage ids read as zero",
			blob: `{"id":"abc","workflowId":-3,"type":"TIME","value":"1"}`,
			want: &Trigger{Kind: TriggerTime, Value: "1"},
		},
		{
			name: "numeric value",
			blob: `{"type":"BATTERY_LEVEL","value":20}`,
			want: &Trigger{Kind: TriggerBatteryLevel, Value: "20"},
		},
		{
			name: "missing value",
			blob: `{"type":"WIFI"}`,
			want: &Trigger{Kind: TriggerWiFi},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeTrigger(tt.blob)
			if tt.want == nil {
				assert.False(t, ok)
				assert.Nil(t, got)

				_, err := ParseTriggerBlob(tt.blob)
				assert.ErrorIs(t, err, ErrMalformedBlob)

				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeTrigger_UnknownKindIsKeptButInvalid(t *testing.T) {
	got, ok := DecodeTrigger(`{"type":"MANUAL","value":"quick_action"}`)
	require.True(t, ok)
	assert.Equal(t, TriggerKind("MANUAL"), got.Kind)
	assert.False(t, got.IsValid())
}

func TestActionCodec_RoundTrip(t *testing.T) {
	actions := []Action{
		NewNotificationAction("Bye", "Leaving", PriorityNormal),
		NewNotificationAction("Alarm", "Wake up", PriorityMax),
		NewWiFiToggleAction(true),
		NewSoundModeAction("Vibrate"),
		NewBlockAppsAction("com.a.b,com.c.d", 60000),
		NewScriptAction(`echo "hi"`),
		{Kind: ActionToggleFlashlight},
	}

	for _, action := range actions {
		require.NoError(t, action.Validate())

		decoded, ok := DecodeAction(EncodeAction(action))
		require.True(t, ok)
		assert.Equal(t, action, *decoded)
	}
}

func TestEncodeAction_OmitsUnusedFields(t *testing.T) {
	var fields map[string]any

	require.NoError(t, json.Unmarshal([]byte(EncodeAction(NewWiFiToggleAction(false))), &fields))
	assert.Equal(t, map[string]any{"type": "TOGGLE_WIFI", "value": "OFF"}, fields)

	fields = nil
	require.NoError(t, json.Unmarshal([]byte(EncodeAction(Action{Kind: ActionNotification, Title: "T"})), &fields))
	assert.Equal(t, map[string]any{"type": "SEND_NOTIFICATION", "title": "T"}, fields)
}

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want *Action
	}{
		{name: "empty", blob: ""},
		{name: "not json", blob: "{oops"},
		{name: "missing type", blob: `{"value":"ON"}`},
		{
			name: "incomplete notification keeps only kind",
			blob: `{"type":"SEND_NOTIFICATION","title":"Hi","message":"There"}`,
			want: &Action{Kind: ActionNotification},
		},
		{
			name: "legacy notification keys",
			blob: `{"type":"SEND_NOTIFICATION","notificationTitle":"Hi","notificationMessage":"There","notificationPriority":"High"}`,
			want: &Action{Kind: ActionNotification, Title: "Hi", Message: "There", Priority: PriorityHigh},
		},
		{
			name: "legacy urgent priority",
			blob: `{"type":"SEND_NOTIFICATION","title":"Hi","message":"There","priority":"Urgent"}`,
			want: &Action{Kind: ActionNotification, Title: "Hi", Message: "There", Priority: PriorityMax},
		},
		{
			name: "numeric value",
			blob: `{"type":"SET_VOLUME","value":50}`,
			want: &Action{Kind: ActionSetVolume, Value: "50"},
		},
		{
			name: "unknown kind",
			blob: `{"type":"LEVITATE","value":"1m"}`,
			want: &Action{Kind: ActionKind("LEVITATE"), Value: "1m"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeAction(tt.blob)
			if tt.want == nil {
				assert.False(t, ok)
				assert.Nil(t, got)

				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAction_Validate(t *testing.T) {
	assert.NoError(t, NewNotificationAction("Bye", "Leaving", PriorityNormal).Validate())
	assert.ErrorIs(t, Action{}.Validate(), ErrInvalidAction)
	assert.ErrorIs(t, Action{Kind: ActionNotification, Title: "T", Message: "M"}.Validate(), ErrInvalidAction)
	assert.ErrorIs(t, NewNotificationAction("T", "M", Priority("Loud")).Validate(), ErrInvalidAction)
	assert.ErrorIs(t, Action{Kind: ActionToggleWiFi, Title: "stray"}.Validate(), ErrInvalidAction)

	assert.Equal(t, "Toggle WiFi", NewWiFiToggleAction(true).DisplayName())
	assert.Equal(t, "Unknown Action", Action{Kind: "NOPE"}.DisplayName())
}
