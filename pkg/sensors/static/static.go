// Package static provides sensor capabilities that replay fixed readings
// from configuration. They back headless runs of the CLI and tests.
package static

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/sensors"
)

// Fixture is the device state the static providers report. Nil pointer
// fields leave the matching capability absent.
type Fixture struct {
	BLE           *BLEFixture      `yaml:"ble"`
	Location      *LocationFixture `yaml:"location"`
	WiFi          *WiFiFixture     `yaml:"wifi"`
	Battery       *BatteryFixture  `yaml:"battery"`
	Headphones    *bool            `yaml:"headphones"`
	ForegroundApp *string          `yaml:"foreground_app"`
}

type BLEFixture struct {
	Devices          []sensors.Device `yaml:"devices"`
	Interval         time.Duration    `yaml:"interval"` // between advertisements
	PermissionDenied bool             `yaml:"permission_denied"`
	Disabled         bool             `yaml:"disabled"`
}

type LocationFixture struct {
	Fix              *sensors.Fix  `yaml:"fix"`
	Delay            time.Duration `yaml:"delay"`
	PermissionDenied bool          `yaml:"permission_denied"`
}

type WiFiFixture struct {
	Enabled   bool   `yaml:"enabled"`
	Connected bool   `yaml:"connected"`
	SSID      string `yaml:"ssid"`
}

type BatteryFixture struct {
	Level    int                  `yaml:"level"`
	Charging models.ChargingState `yaml:"charging"`
}

// New returns the providers described by f.
func New(f Fixture) sensors.Providers {
	var providers sensors.Providers

	if f.BLE != nil {
		providers.BLE = NewScanner(*f.BLE)
	}

	if f.Location != nil {
		providers.Location = &Location{fixture: *f.Location}
	}

	if f.WiFi != nil {
		providers.WiFi = &WiFi{fixture: *f.WiFi}
	}

	if f.Battery != nil {
		providers.Battery = &Battery{fixture: *f.Battery}
	}

	if f.Headphones != nil {
		providers.Headphones = Headphones(*f.Headphones)
	}

	if f.ForegroundApp != nil {
		providers.ForegroundApp = ForegroundApp(*f.ForegroundApp)
	}

	return providers
}

// Scanner advertises the fixture devices one per interval and then keeps
// scanning silently until stopped.
type Scanner struct {
	fixture BLEFixture

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewScanner(f BLEFixture) *Scanner {
	if f.Interval <= 0 {
		f.Interval = 10 * time.Millisecond
	}

	return &Scanner{fixture: f}
}

func (s *Scanner) StartScan(ctx context.Context, cb sensors.ScanCallbacks) error {
	switch {
	case s.fixture.PermissionDenied:
		return sensors.NewCapabilityError(sensors.CapabilityBLE, sensors.ErrPermissionDenied, "bluetooth scan permission not granted")
	case s.fixture.Disabled:
		return sensors.NewCapabilityError(sensors.CapabilityBLE, sensors.ErrServiceDisabled, "bluetooth is off")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return sensors.NewCapabilityError(sensors.CapabilityBLE, sensors.ErrUnavailable, "scan already running")
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	if cb.OnStarted != nil {
		cb.OnStarted()
	}

	go func() {
		defer close(done)

		defer func() {
			if cb.OnStopped != nil {
				cb.OnStopped()
			}
		}()

		ticker := time.NewTicker(s.fixture.Interval)
		defer ticker.Stop()

		devices := s.fixture.Devices

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if len(devices) == 0 {
					continue
				}

				if cb.OnDeviceFound != nil {
					cb.OnDeviceFound(devices[0])
				}

				devices = devices[1:]
			}
		}
	}()

	return nil
}

// StopScan ends the running scan and waits for its goroutine. Calling it with
// no scan running is a no-op.
func (s *Scanner) StopScan() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	<-done
}

// Location answers with the fixture fix after the configured delay.
type Location struct {
	fixture LocationFixture
}

func (l *Location) GetLast(ctx context.Context, cb sensors.LocationCallbacks) {
	if l.fixture.PermissionDenied {
		if cb.OnPermissionDenied != nil {
			cb.OnPermissionDenied()
		}

		return
	}

	if l.fixture.Delay > 0 {
		timer := time.NewTimer(l.fixture.Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			if cb.OnError != nil {
				cb.OnError(ctx.Err())
			}

			return
		}
	}

	if l.fixture.Fix == nil {
		if cb.OnError != nil {
			cb.OnError(sensors.ErrNoFix)
		}

		return
	}

	fix := *l.fixture.Fix
	if fix.Time.IsZero() {
		fix.Time = time.Now()
	}

	if cb.OnReceived != nil {
		cb.OnReceived(fix)
	}
}

// WiFi reports the fixture radio and association state.
type WiFi struct {
	fixture WiFiFixture
}

func (w *WiFi) IsEnabled() (bool, error) {
	return w.fixture.Enabled, nil
}

func (w *WiFi) Connection() (string, bool, error) {
	return w.fixture.SSID, w.fixture.Enabled && w.fixture.Connected, nil
}

type Battery struct {
	fixture BatteryFixture
}

func (b *Battery) Level() (int, error) {
	return b.fixture.Level, nil
}

func (b *Battery) Charging() (models.ChargingState, error) {
	if b.fixture.Charging == "" {
		return models.Unplugged, nil
	}

	return b.fixture.Charging, nil
}

type Headphones bool

func (h Headphones) HeadphonesConnected() (bool, error) {
	return bool(h), nil
}

type ForegroundApp string

func (a ForegroundApp) ForegroundPackage() (string, error) {
	return string(a), nil
}
