package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Trigger and action blobs are the flat JSON strings stored next to a
// workflow's id, name and enabled flag. Decoding never fails loudly: a damaged
// blob decodes to "absent" so the record stays inspectable and deletable.

type triggerWire struct {
	ID         uint64 `json:"id"`
	WorkflowID uint64 `json:"workflowId"`
	Type       string `json:"type"`
	Value      string `json:"value"`
}

type actionWire struct {
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
	Priority string `json:"priority,omitempty"`
	Value    string `json:"value,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// EncodeTrigger renders {id, workflowId, type, value}. Every field is always
// present; absent strings encode as "".
func EncodeTrigger(t Trigger) string {
	return mustJSON(triggerWire{
		ID:         t.ID,
		WorkflowID: t.WorkflowID,
		Type:       string(t.Kind),
		Value:      t.Value,
	})
}

// DecodeTrigger is the lenient decoder used when loading records.
func DecodeTrigger(blob string) (*Trigger, bool) {
	t, err := ParseTriggerBlob(blob)
	if err != nil {
		return nil, false
	}

	return &t, true
}

// ParseTriggerBlob decodes a trigger blob and explains failures with an error
// wrapping ErrMalformedBlob. Unknown type tags are accepted.
func ParseTriggerBlob(blob string) (Trigger, error) {
	fields, err := decodeObject(blob)
	if err != nil {
		return Trigger{}, err
	}

	kind := strings.TrimSpace(rawString(fields["type"]))
	if kind == "" {
		return Trigger{}, fmt.Errorf("%w: trigger type is empty", ErrMalformedBlob)
	}

	return Trigger{
		ID:         rawUint(fields["id"]),
		WorkflowID: rawUint(fields["workflowId"]),
		Kind:       TriggerKind(kind),
		Value:      rawString(fields["value"]),
	}, nil
}

// EncodeAction renders only the fields the action's kind uses: title, message
// and priority for notifications, value and duration for everything else.
// Empty fields are omitted.
func EncodeAction(a Action) string {
	wire := actionWire{Type: string(a.Kind)}

	if a.IsNotification() {
		wire.Title = a.Title
		wire.Message = a.Message
		wire.Priority = string(a.Priority)
	} else {
		wire.Value = a.Value
		wire.Duration = a.Duration
	}

	return mustJSON(wire)
}

// DecodeAction is the lenient decoder used when loading records.
func DecodeAction(blob string) (*Action, bool) {
	a, err := ParseActionBlob(blob)
	if err != nil {
		return nil, false
	}

	return &a, true
}

// ParseActionBlob decodes an action blob. Notification fields are read from
// the flat keys first and from the legacy notificationTitle,
// notificationMessage and notificationPriority keys second. A notification
// missing any of the three decodes with only its kind set.
func ParseActionBlob(blob string) (Action, error) {
	fields, err := decodeObject(blob)
	if err != nil {
		return Action{}, err
	}

	kind := strings.TrimSpace(rawString(fields["type"]))
	if kind == "" {
		return Action{}, fmt.Errorf("%w: action type is empty", ErrMalformedBlob)
	}

	action := Action{Kind: ActionKind(kind)}

	if action.IsNotification() {
		title := firstNonEmpty(rawString(fields["title"]), rawString(fields["notificationTitle"]))
		message := firstNonEmpty(rawString(fields["message"]), rawString(fields["notificationMessage"]))
		priority := firstNonEmpty(rawString(fields["priority"]), rawString(fields["notificationPriority"]))

		if title == "" || message == "" || priority == "" {
			return action, nil
		}

		action.Title = title
		action.Message = message
		action.Priority = Priority(priority)

		if p, ok := ParsePriority(priority); ok {
			action.Priority = p
		}

		return action, nil
	}

	action.Value = rawString(fields["value"])
	action.Duration = rawInt(fields["duration"])

	return action, nil
}

func decodeObject(blob string) (map[string]json.RawMessage, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedBlob)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}

	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedBlob)
	}

	return fields, nil
}

// rawString reads a JSON string, or the literal text of a number or boolean.
// Null, absent and composite values read as "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}

		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

func rawUint(raw json.RawMessage) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(rawString(raw)), 10, 64)
	if err != nil {
		return 0
	}

	return n
}

func rawInt(raw json.RawMessage) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(rawString(raw)), 10, 64)
	if err != nil {
		return 0
	}

	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
