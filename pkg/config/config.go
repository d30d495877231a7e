// Package config loads autoflow settings from defaults, an optional YAML
// file, a .env file and AUTOFLOW_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dukex/autoflow/pkg/sensors/static"
)

const EnvPrefix = "AUTOFLOW_"

var ErrInvalidConfig = errors.New("invalid configuration")

type LogConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type EvaluatorConfig struct {
	TimeWindow      time.Duration `yaml:"time_window"      validate:"gt=0"`
	ScanTimeout     time.Duration `yaml:"scan_timeout"     validate:"gt=0"`
	LocationTimeout time.Duration `yaml:"location_timeout" validate:"gt=0"`
}

type Config struct {
	ServiceName  string          `yaml:"service_name"  validate:"required"`
	DatabaseURL  string          `yaml:"database_url"  validate:"required"`
	EventBus     string          `yaml:"event_bus"     validate:"oneof=none memory gochannel kafka"`
	KafkaBrokers []string        `yaml:"kafka_brokers" validate:"required_if=EventBus kafka"`
	QueueSize    int             `yaml:"queue_size"    validate:"gte=1"`
	Schedule     string          `yaml:"schedule"      validate:"required"`
	Tracing      bool            `yaml:"tracing"`
	Log          LogConfig       `yaml:"log"`
	Evaluator    EvaluatorConfig `yaml:"evaluator"`
	Sensors      static.Fixture  `yaml:"sensors"`
}

// Default is the configuration used when nothing overrides it: an in-memory
// store, no event bus and a check every five minutes.
func Default() *Config {
	return &Config{
		ServiceName: "autoflow",
		DatabaseURL: "memory://",
		EventBus:    "none",
		QueueSize:   128,
		Schedule:    "@every 5m",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Evaluator: EvaluatorConfig{
			TimeWindow:      60 * time.Second,
			ScanTimeout:     30 * time.Second,
			LocationTimeout: 5 * time.Second,
		},
	}
}

// Load reads path when it is not empty, then .env from the working
// directory if present, then the environment. The result is validated.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SERVICE_NAME": &c.ServiceName,
		"DATABASE_URL": &c.DatabaseURL,
		"EVENT_BUS":    &c.EventBus,
		"SCHEDULE":     &c.Schedule,
		"LOG_LEVEL":    &c.Log.Level,
		"LOG_FORMAT":   &c.Log.Format,
	}

	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TIME_WINDOW":      &c.Evaluator.TimeWindow,
		"SCAN_TIMEOUT":     &c.Evaluator.ScanTimeout,
		"LOCATION_TIMEOUT": &c.Evaluator.LocationTimeout,
	}

	for name, dst := range durations {
		v, ok := lookup(name)
		if !ok {
			continue
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, name, err)
		}

		*dst = d
	}

	if v, ok := lookup("QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sQUEUE_SIZE: %w", ErrInvalidConfig, EnvPrefix, err)
		}

		c.QueueSize = n
	}

	if v, ok := lookup("TRACING"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sTRACING: %w", ErrInvalidConfig, EnvPrefix, err)
		}

		c.Tracing = b
	}

	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.KafkaBrokers = splitList(v)
	}

	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}

	return strings.TrimSpace(v), true
}

func splitList(s string) []string {
	var items []string

	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// Validate checks every field and reports the first problem.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.EventBus = strings.ToLower(c.EventBus)

	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]

		return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.ActualTag())
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}
