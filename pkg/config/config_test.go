package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autoflow/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", "")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "memory://", cfg.DatabaseURL)
	assert.Equal(t, "@every 5m", cfg.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Evaluator.ScanTimeout)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "autoflow.yaml", `
database_url: sqlite:///var/lib/autoflow/workflows.db
event_bus: Kafka
kafka_brokers: [broker-1:9092, broker-2:9092]
schedule: "*/10 * * * *"
log:
  level: DEBUG
  format: json
evaluator:
  scan_timeout: 10s
  location_timeout: 2s
sensors:
  battery:
    level: 42
    charging: CHARGING
  headphones: true
  ble:
    interval: 50ms
    devices:
      - address: "AA:BB:CC:DD:EE:FF"
        name: Speaker
`)

	cfg, err := load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///var/lib/autoflow/workflows.db", cfg.DatabaseURL)
	assert.Equal(t, "kafka", cfg.EventBus)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10*time.Second, cfg.Evaluator.ScanTimeout)
	assert.Equal(t, 2*time.Second, cfg.Evaluator.LocationTimeout)
	assert.Equal(t, 60*time.Second, cfg.Evaluator.TimeWindow)

	require.NotNil(t, cfg.Sensors.Battery)
	assert.Equal(t, 42, cfg.Sensors.Battery.Level)
	assert.Equal(t, models.Charging, cfg.Sensors.Battery.Charging)
	require.NotNil(t, cfg.Sensors.Headphones)
	assert.True(t, *cfg.Sensors.Headphones)
	require.NotNil(t, cfg.Sensors.BLE)
	assert.Equal(t, 50*time.Millisecond, cfg.Sensors.BLE.Interval)
	require.Len(t, cfg.Sensors.BLE.Devices, 1)
	assert.Equal(t, "Speaker", cfg.Sensors.BLE.Devices[0].Name)
	assert.Nil(t, cfg.Sensors.Location)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "autoflow.yaml", "database_url: file:///tmp/a\nqueue_size: 8\n")

	t.Setenv("AUTOFLOW_DATABASE_URL", "postgres://localhost/autoflow")
	t.Setenv("AUTOFLOW_QUEUE_SIZE", "32")
	t.Setenv("AUTOFLOW_TIME_WINDOW", "2m")
	t.Setenv("AUTOFLOW_TRACING", "true")
	t.Setenv("AUTOFLOW_EVENT_BUS", "kafka")
	t.Setenv("AUTOFLOW_KAFKA_BROKERS", " a:9092, ,b:9092 ")

	cfg, err := load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/autoflow", cfg.DatabaseURL)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, 2*time.Minute, cfg.Evaluator.TimeWindow)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "AUTOFLOW_SERVICE_NAME=autoflow-dotenv\n")

	t.Cleanup(func() { _ = os.Unsetenv("AUTOFLOW_SERVICE_NAME") })

	cfg, err := load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "autoflow-dotenv", cfg.ServiceName)

	cfg, err = load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown event bus", file: "event_bus: rabbitmq\n"},
		{name: "kafka without brokers", file: "event_bus: kafka\n"},
		{name: "unknown log level", file: "log:\n  level: verbose\n"},
		{name: "zero queue", file: "queue_size: 0\n"},
		{name: "negative scan timeout", file: "evaluator:\n  scan_timeout: -1s\n"},
		{name: "bad duration env", env: map[string]string{"AUTOFLOW_SCAN_TIMEOUT": "soon"}},
		{name: "bad queue env", env: map[string]string{"AUTOFLOW_QUEUE_SIZE": "many"}},
		{name: "bad tracing env", env: map[string]string{"AUTOFLOW_TRACING": "sometimes"}},
		{name: "empty database url", env: map[string]string{"AUTOFLOW_DATABASE_URL": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.file != "" {
				path = writeFile(t, "autoflow.yaml", tt.file)
			}

			_, err := load(path, "")
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_UnreadableFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = load(writeFile(t, "bad.yaml", "log: [unterminated"), "")
	assert.Error(t, err)
}
