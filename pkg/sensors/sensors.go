// Package sensors declares the device capabilities trigger evaluation reads
// from. Platform integrations implement these interfaces; the static
// subpackage provides configuration driven stand-ins.
package sensors

import (
	"context"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// Capability names a kind of sensor access.
type Capability string

const (
	CapabilityBLE           Capability = "ble"
	CapabilityLocation      Capability = "location"
	CapabilityWiFi          Capability = "wifi"
	CapabilityBattery       Capability = "battery"
	CapabilityHeadphones    Capability = "headphones"
	CapabilityForegroundApp Capability = "foreground_app"
)

// Device is a BLE advertisement observed during a scan.
type Device struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	RSSI    int    `yaml:"rssi"`
}

// ScanCallbacks receive the events of one scan. Any of them may be nil.
// Callbacks may be invoked from a goroutine owned by the scanner.
type ScanCallbacks struct {
	OnDeviceFound func(Device)
	OnStarted     func()
	OnStopped     func()
	OnError       func(error)
}

// BLEScanner runs one scan at a time. StartScan returns once the scan is
// running or has failed to start; StopScan is idempotent.
type BLEScanner interface {
	StartScan(ctx context.Context, cb ScanCallbacks) error
	StopScan()
}

// Fix is a location reading.
type Fix struct {
	Latitude  float64   `yaml:"latitude"`
	Longitude float64   `yaml:"longitude"`
	Accuracy  float64   `yaml:"accuracy"` // meters
	Time      time.Time `yaml:"time"`
}

// Point returns the fix coordinates.
func (f Fix) Point() models.Point {
	return models.Point{Latitude: f.Latitude, Longitude: f.Longitude}
}

// LocationCallbacks receive the outcome of one location request. Exactly one
// of them is called.
type LocationCallbacks struct {
	OnReceived         func(Fix)
	OnError            func(error)
	OnPermissionDenied func()
}

// LocationProvider answers a request with the last known or a fresh fix.
// GetLast may block until it has answered or return at once and call back
// later from its own goroutine. The request counts as running until one
// callback has fired or ctx is done, and no second request is issued
// meanwhile. Once ctx is done the provider should abandon the request.
type LocationProvider interface {
	GetLast(ctx context.Context, cb LocationCallbacks)
}

// WiFiProvider reports whether the WiFi radio is on.
type WiFiProvider interface {
	IsEnabled() (bool, error)
}

// WiFiConnectionProvider is optionally implemented by a WiFiProvider that
// can also report the current association.
type WiFiConnectionProvider interface {
	Connection() (ssid string, connected bool, err error)
}

// BatteryProvider reports battery level in percent and the power state.
type BatteryProvider interface {
	Level() (int, error)
	Charging() (models.ChargingState, error)
}

type HeadphoneProvider interface {
	HeadphonesConnected() (bool, error)
}

type ForegroundAppProvider interface {
	ForegroundPackage() (string, error)
}

// Providers bundles the capabilities available to an evaluation engine. A nil
// field means the capability is absent on this device.
type Providers struct {
	BLE           BLEScanner
	Location      LocationProvider
	WiFi          WiFiProvider
	Battery       BatteryProvider
	Headphones    HeadphoneProvider
	ForegroundApp ForegroundAppProvider
}
