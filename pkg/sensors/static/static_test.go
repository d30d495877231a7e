package static

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/sensors"
)

func TestNew_AbsentCapabilities(t *testing.T) {
	providers := New(Fixture{})

	assert.Nil(t, providers.BLE)
	assert.Nil(t, providers.Location)
	assert.Nil(t, providers.WiFi)
	assert.Nil(t, providers.Battery)
	assert.Nil(t, providers.Headphones)
	assert.Nil(t, providers.ForegroundApp)
}

func TestScanner_DeliversDevices(t *testing.T) {
	scanner := NewScanner(BLEFixture{
		Devices:  []sensors.Device{{Address: "AA:BB:CC:DD:EE:FF", Name: "Car"}, {Name: "Watch"}},
		Interval: time.Millisecond,
	})

	var (
		mu    sync.Mutex
		found []string
	)

	stopped := make(chan struct{})

	err := scanner.StartScan(context.Background(), sensors.ScanCallbacks{
		OnDeviceFound: func(d sensors.Device) {
			mu.Lock()
			found = append(found, d.Name)
			mu.Unlock()
		},
		OnStopped: func() { close(stopped) },
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(found) == 2
	}, time.Second, time.Millisecond)

	scanner.StopScan()
	scanner.StopScan()

	<-stopped
	assert.Equal(t, []string{"Car", "Watch"}, found)
}

func TestScanner_Failures(t *testing.T) {
	err := NewScanner(BLEFixture{PermissionDenied: true}).StartScan(context.Background(), sensors.ScanCallbacks{})
	assert.ErrorIs(t, err, sensors.ErrPermissionDenied)

	err = NewScanner(BLEFixture{Disabled: true}).StartScan(context.Background(), sensors.ScanCallbacks{})
	assert.ErrorIs(t, err, sensors.ErrServiceDisabled)
}

func TestLocation(t *testing.T) {
	fix := &sensors.Fix{Latitude: 1, Longitude: 2}

	var got sensors.Fix

	(&Location{fixture: LocationFixture{Fix: fix}}).GetLast(context.Background(), sensors.LocationCallbacks{
		OnReceived: func(f sensors.Fix) { got = f },
	})
	assert.InDelta(t, 1.0, got.Latitude, 0.0001)
	assert.False(t, got.Time.IsZero())

	var denied bool

	(&Location{fixture: LocationFixture{PermissionDenied: true}}).GetLast(context.Background(), sensors.LocationCallbacks{
		OnPermissionDenied: func() { denied = true },
	})
	assert.True(t, denied)

	var gotErr error

	(&Location{fixture: LocationFixture{}}).GetLast(context.Background(), sensors.LocationCallbacks{
		OnError: func(err error) { gotErr = err },
	})
	assert.ErrorIs(t, gotErr, sensors.ErrNoFix)
}

func TestSimpleProviders(t *testing.T) {
	headphones := true
	app := "com.spotify.music"

	providers := New(Fixture{
		WiFi:          &WiFiFixture{Enabled: true, Connected: true, SSID: "HomeNet"},
		Battery:       &BatteryFixture{Level: 12, Charging: models.Charging},
		Headphones:    &headphones,
		ForegroundApp: &app,
	})

	enabled, err := providers.WiFi.IsEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	conn, ok := providers.WiFi.(sensors.WiFiConnectionProvider)
	require.True(t, ok)

	ssid, connected, err := conn.Connection()
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, "HomeNet", ssid)

	level, err := providers.Battery.Level()
	require.NoError(t, err)
	assert.Equal(t, 12, level)

	state, err := providers.Battery.Charging()
	require.NoError(t, err)
	assert.Equal(t, models.Charging, state)

	hp, err := providers.Headphones.HeadphonesConnected()
	require.NoError(t, err)
	assert.True(t, hp)

	pkg, err := providers.ForegroundApp.ForegroundPackage()
	require.NoError(t, err)
	assert.Equal(t, app, pkg)
}
