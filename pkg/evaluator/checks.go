package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/sensors"
)

func unavailable(c sensors.Capability) outcome {
	return soft(c, sensors.ErrUnavailable, string(c)+" capability not available")
}

func (e *Engine) checkTime(value string, now time.Time) outcome {
	target, err := models.ParseTime(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	if now.Before(target) {
		return notFired("target time not reached")
	}

	if late := now.Sub(target); late > e.timeWindow {
		return notFired("target time passed %s ago", late.Round(time.Second))
	}

	return fired("target time reached")
}

// normalizeAddress folds a MAC address to upper case colon form.
func normalizeAddress(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ":"))
}

func deviceMatches(d sensors.Device, target string) bool {
	if d.Address != "" && normalizeAddress(d.Address) == normalizeAddress(target) {
		return true
	}

	return d.Name != "" && d.Name == target
}

func (e *Engine) checkBLE(ctx context.Context, value string) outcome {
	scanner := e.providers.BLE
	if scanner == nil {
		return unavailable(sensors.CapabilityBLE)
	}

	release, err := e.handles[sensors.CapabilityBLE].Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return notFired("evaluation stopped")
		}

		return soft(sensors.CapabilityBLE, err, "waiting for bluetooth scanner")
	}
	defer release()

	scanCtx, cancel := context.WithTimeout(ctx, e.scanTimeout)
	defer cancel()

	var (
		matched     = make(chan sensors.Device, 1)
		failed      = make(chan error, 1)
		stopped     = make(chan struct{})
		stoppedOnce sync.Once
	)

	err = scanner.StartScan(scanCtx, sensors.ScanCallbacks{
		OnDeviceFound: func(d sensors.Device) {
			if !deviceMatches(d, value) {
				return
			}

			select {
			case matched <- d:
			default:
			}
		},
		OnStopped: func() {
			stoppedOnce.Do(func() { close(stopped) })
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	if err != nil {
		return soft(sensors.CapabilityBLE, err, "bluetooth scan could not start")
	}

	defer scanner.StopScan()

	select {
	case d := <-matched:
		return fired("device %s seen", firstNonEmpty(d.Address, d.Name))
	case err := <-failed:
		return soft(sensors.CapabilityBLE, err, "bluetooth scan failed")
	case <-stopped:
		// A match delivered just before the stop still counts.
		select {
		case d := <-matched:
			return fired("device %s seen", firstNonEmpty(d.Address, d.Name))
		default:
		}

		if scanCtx.Err() == nil {
			return notFired("scan ended without seeing the device")
		}
	case <-scanCtx.Done():
	}

	if ctx.Err() != nil {
		return notFired("evaluation stopped")
	}

	return notFired("device not seen within %s", e.scanTimeout)
}

type locationOutcome struct {
	fix    sensors.Fix
	err    error
	denied bool
}

func (e *Engine) checkLocation(ctx context.Context, value string) outcome {
	loc, err := models.ParseLocation(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	provider := e.providers.Location
	if provider == nil {
		return unavailable(sensors.CapabilityLocation)
	}

	release, err := e.handles[sensors.CapabilityLocation].Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return notFired("evaluation stopped")
		}

		return soft(sensors.CapabilityLocation, err, "waiting for location provider")
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.locationTimeout)
	defer cancel()

	var (
		results      = make(chan locationOutcome, 1)
		answered     = make(chan struct{})
		answeredOnce sync.Once
	)

	deliver := func(o locationOutcome) {
		select {
		case results <- o:
		default:
		}

		answeredOnce.Do(func() { close(answered) })
	}

	// The handle is held until GetLast has returned and the request is over,
	// either answered or abandoned through reqCtx. Providers may return before
	// answering.
	go func() {
		defer release()

		func() {
			defer func() {
				if r := recover(); r != nil {
					deliver(locationOutcome{err: fmt.Errorf("location provider panicked: %v", r)})
				}
			}()

			provider.GetLast(reqCtx, sensors.LocationCallbacks{
				OnReceived:         func(fix sensors.Fix) { deliver(locationOutcome{fix: fix}) },
				OnError:            func(err error) { deliver(locationOutcome{err: err}) },
				OnPermissionDenied: func() { deliver(locationOutcome{denied: true}) },
			})
		}()

		select {
		case <-answered:
		case <-reqCtx.Done():
		}
	}()

	var got locationOutcome

	select {
	case got = <-results:
	case <-reqCtx.Done():
		if ctx.Err() != nil {
			return notFired("evaluation stopped")
		}

		return soft(sensors.CapabilityLocation, sensors.ErrTimeout,
			fmt.Sprintf("no location within %s", e.locationTimeout))
	}

	switch {
	case got.err != nil && ctx.Err() != nil:
		return notFired("evaluation stopped")
	case got.denied:
		return soft(sensors.CapabilityLocation, sensors.ErrPermissionDenied, "location permission not granted")
	case got.err != nil:
		return soft(sensors.CapabilityLocation, got.err, "location unavailable")
	}

	distance := models.Distance(loc.Center(), got.fix.Point())
	inside := distance <= loc.Radius

	if loc.Mode == models.LocationExit {
		if !inside {
			return fired("%.0fm from target, outside %.0fm radius", distance, loc.Radius)
		}

		return notFired("%.0fm from target, inside %.0fm radius", distance, loc.Radius)
	}

	if inside {
		return fired("%.0fm from target, inside %.0fm radius", distance, loc.Radius)
	}

	return notFired("%.0fm from target, outside %.0fm radius", distance, loc.Radius)
}

func (e *Engine) checkWiFi(value string) outcome {
	cond, err := models.ParseWiFi(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	provider := e.providers.WiFi
	if provider == nil {
		return unavailable(sensors.CapabilityWiFi)
	}

	enabled, err := provider.IsEnabled()
	if err != nil {
		return soft(sensors.CapabilityWiFi, err, "wifi state not readable")
	}

	conn, reportsConnection := provider.(sensors.WiFiConnectionProvider)

	if cond.State == models.WiFiOn || cond.State == models.WiFiOff {
		return wifiVerdict(enabled == (cond.State == models.WiFiOn), "wifi enabled=%t", enabled)
	}

	if !reportsConnection {
		if cond.SSID != "" {
			return unavailable(sensors.CapabilityWiFi)
		}

		return wifiVerdict(enabled == (cond.State == models.WiFiConnected), "wifi enabled=%t", enabled)
	}

	ssid, connected, err := conn.Connection()
	if err != nil {
		return soft(sensors.CapabilityWiFi, err, "wifi connection not readable")
	}

	onTarget := enabled && connected && (cond.SSID == "" || ssid == cond.SSID)

	if cond.State == models.WiFiConnected {
		return wifiVerdict(onTarget, "wifi connected=%t ssid=%q", connected, ssid)
	}

	return wifiVerdict(!onTarget, "wifi connected=%t ssid=%q", connected, ssid)
}

func wifiVerdict(ok bool, format string, args ...any) outcome {
	if ok {
		return fired(format, args...)
	}

	return notFired(format, args...)
}

func (e *Engine) checkAppLaunch(value string) outcome {
	target, err := models.ParseAppPackage(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	provider := e.providers.ForegroundApp
	if provider == nil {
		return unavailable(sensors.CapabilityForegroundApp)
	}

	current, err := provider.ForegroundPackage()
	if err != nil {
		return soft(sensors.CapabilityForegroundApp, err, "foreground app not readable")
	}

	if current == target {
		return fired("%s in foreground", target)
	}

	return notFired("foreground app is %q", current)
}

func (e *Engine) checkBattery(value string) outcome {
	target, err := models.ParseBatteryLevel(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	provider := e.providers.Battery
	if provider == nil {
		return unavailable(sensors.CapabilityBattery)
	}

	level, err := provider.Level()
	if err != nil {
		return soft(sensors.CapabilityBattery, err, "battery level not readable")
	}

	if level <= target {
		return fired("battery at %d%%, threshold %d%%", level, target)
	}

	return notFired("battery at %d%%, threshold %d%%", level, target)
}

func (e *Engine) checkCharging(value string) outcome {
	target, err := models.ParseChargingState(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	provider := e.providers.Battery
	if provider == nil {
		return unavailable(sensors.CapabilityBattery)
	}

	current, err := provider.Charging()
	if err != nil {
		return soft(sensors.CapabilityBattery, err, "charging state not readable")
	}

	var match bool

	switch target {
	case models.Charging:
		match = current == models.Charging
	case models.NotCharging:
		match = current != models.Charging
	case models.Plugged:
		match = current.PluggedIn()
	case models.Unplugged:
		match = !current.PluggedIn()
	}

	if match {
		return fired("power state %s", current)
	}

	return notFired("power state %s", current)
}

func (e *Engine) checkHeadphones(value string) outcome {
	wantConnected, err := models.ParseHeadphoneState(value)
	if err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	provider := e.providers.Headphones
	if provider == nil {
		return unavailable(sensors.CapabilityHeadphones)
	}

	connected, err := provider.HeadphonesConnected()
	if err != nil {
		return soft(sensors.CapabilityHeadphones, err, "headphone state not readable")
	}

	if connected == wantConnected {
		return fired("headphones connected=%t", connected)
	}

	return notFired("headphones connected=%t", connected)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
