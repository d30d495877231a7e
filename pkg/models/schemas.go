package models

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSON forms of trigger values are checked structurally before any range
// checks run.
var (
	locationSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"coordinates":         {"type": "string"},
			"locationCoordinates": {"type": "string"},
			"latitude":            {"type": "number"},
			"longitude":           {"type": "number"},
			"radius":              {"type": "number"},
			"locationRadius":      {"type": "number"},
			"locationName":        {"type": "string"},
			"triggerOn":           {"type": "string"}
		},
		"anyOf": [
			{"required": ["coordinates"]},
			{"required": ["locationCoordinates"]},
			{"required": ["latitude", "longitude"]}
		]
	}`)

	wifiSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"wifiTargetState": {"type": "string"},
			"state":           {"type": "string"},
			"wifiSsid":        {"type": "string"},
			"ssid":            {"type": "string"}
		},
		"anyOf": [
			{"required": ["wifiTargetState"]},
			{"required": ["state"]},
			{"required": ["wifiSsid"]},
			{"required": ["ssid"]}
		]
	}`)

	appLaunchSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"appPackageName": {"type": "string"},
			"appClassName":   {"type": "string"}
		},
		"required": ["appPackageName"]
	}`)
)

var errSchemaMismatch = errors.New("value does not match schema")

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("models: invalid embedded schema: " + err.Error())
	}

	return schema
}

func checkSchema(schema *gojsonschema.Schema, value string) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(value))
	if err != nil {
		return err
	}

	if !result.Valid() {
		return errSchemaMismatch
	}

	return nil
}

func looksLikeJSONObject(value string) bool {
	return strings.HasPrefix(value, "{") && json.Valid([]byte(value))
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic("models: " + err.Error())
	}

	return string(b)
}
