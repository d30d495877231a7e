package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/sensors"
)

// MockBLEScanner is a mock implementation of sensors.BLEScanner. Set Devices
// to have StartScan report them before returning.
type MockBLEScanner struct {
	mock.Mock

	Devices []sensors.Device
}

func (m *MockBLEScanner) StartScan(ctx context.Context, cb sensors.ScanCallbacks) error {
	args := m.Called(ctx, cb)
	if err := args.Error(0); err != nil {
		return err
	}

	for _, d := range m.Devices {
		if cb.OnDeviceFound != nil {
			cb.OnDeviceFound(d)
		}
	}

	return nil
}

func (m *MockBLEScanner) StopScan() {
	m.Called()
}

// MockLocationProvider is a mock implementation of sensors.LocationProvider.
// Run hooks on the GetLast expectation drive the callbacks.
type MockLocationProvider struct {
	mock.Mock
}

func (m *MockLocationProvider) GetLast(ctx context.Context, cb sensors.LocationCallbacks) {
	m.Called(ctx, cb)
}

// MockWiFiProvider is a mock implementation of sensors.WiFiProvider without
// connection reporting.
type MockWiFiProvider struct {
	mock.Mock
}

func (m *MockWiFiProvider) IsEnabled() (bool, error) {
	args := m.Called()

	return args.Bool(0), args.Error(1)
}

// MockWiFiConnectionProvider also implements sensors.WiFiConnectionProvider.
type MockWiFiConnectionProvider struct {
	MockWiFiProvider
}

func (m *MockWiFiConnectionProvider) Connection() (string, bool, error) {
	args := m.Called()

	return args.String(0), args.Bool(1), args.Error(2)
}

type MockBatteryProvider struct {
	mock.Mock
}

func (m *MockBatteryProvider) Level() (int, error) {
	args := m.Called()

	return args.Int(0), args.Error(1)
}

func (m *MockBatteryProvider) Charging() (models.ChargingState, error) {
	args := m.Called()

	return args.Get(0).(models.ChargingState), args.Error(1)
}

type MockHeadphoneProvider struct {
	mock.Mock
}

func (m *MockHeadphoneProvider) HeadphonesConnected() (bool, error) {
	args := m.Called()

	return args.Bool(0), args.Error(1)
}

type MockForegroundAppProvider struct {
	mock.Mock
}

func (m *MockForegroundAppProvider) ForegroundPackage() (string, error) {
	args := m.Called()

	return args.String(0), args.Error(1)
}

var (
	_ sensors.BLEScanner             = (*MockBLEScanner)(nil)
	_ sensors.LocationProvider       = (*MockLocationProvider)(nil)
	_ sensors.WiFiProvider           = (*MockWiFiProvider)(nil)
	_ sensors.WiFiConnectionProvider = (*MockWiFiConnectionProvider)(nil)
	_ sensors.BatteryProvider        = (*MockBatteryProvider)(nil)
	_ sensors.HeadphoneProvider      = (*MockHeadphoneProvider)(nil)
	_ sensors.ForegroundAppProvider  = (*MockForegroundAppProvider)(nil)
)
