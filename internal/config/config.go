// Package config loads the relay configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"tilt-relay/internal/domain"
)

// Radio selects and configures the BLE controller.
type Radio struct {
	Driver        string
	HCIDevice     int
	LockOnAddress bool
}

// WiFi is optional; an empty SSID leaves association to the host.
type WiFi struct {
	SSID      string
	Password  string
	Interface string
}

// Upload describes where readings go and how hard the relay tries.
type Upload struct {
	Sink        string
	URL         string
	StreamID    string
	DbDsn       string
	MaxAttempts int
	MinInterval time.Duration
	MaxFailures int
}

// Connection tunes the connection manager. A zero KeepaliveInterval
// disables link pinging.
type Connection struct {
	ConnectTimeout    time.Duration
	SendTimeout       time.Duration
	KeepaliveInterval time.Duration
	BackoffInitial    time.Duration
	BackoffCeiling    time.Duration
	FailureLimit      int
}

// Supervisor bounds task restarts before a full reset.
type Supervisor struct {
	MaxRestarts   int
	RestartWindow time.Duration
}

// Config holds the full relay configuration.
type Config struct {
	LogLevel   string
	RelayName  string
	TiltNames  map[domain.Color]string
	Radio      Radio
	WiFi       WiFi
	Upload     Upload
	Connection Connection
	Supervisor Supervisor
	// Zero disables the listener.
	HTTPPort int
	GRPCPort int
}

// Load reads the configuration from the environment, applying defaults for
// unset variables. Errors name the offending variable.
func Load() (*Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}

	names, err := ParseTiltNames(os.Getenv(EnvTiltNames))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid %s: %w", EnvTiltNames, err))
	}

	cfg := &Config{
		LogLevel:  normalizeLogLevel(getEnvString(EnvLogLevel, DefaultLogLevel)),
		RelayName: getEnvString(EnvRelayName, DefaultRelayName),
		TiltNames: names,
		Radio: Radio{
			Driver:        strings.ToLower(getEnvString(EnvRadioDriver, DefaultRadioDriver)),
			HCIDevice:     intVar(EnvHCIDevice, DefaultHCIDevice),
			LockOnAddress: boolVar(EnvLockOnAddress, DefaultLockOnAddress),
		},
		WiFi: WiFi{
			SSID:      os.Getenv(EnvWiFiSSID),
			Password:  os.Getenv(EnvWiFiPassword),
			Interface: getEnvString(EnvWiFiInterface, DefaultWiFiInterface),
		},
		Upload: Upload{
			Sink:        strings.ToLower(getEnvString(EnvUploadSink, DefaultUploadSink)),
			URL:         getEnvString(EnvUploadURL, DefaultUploadURL),
			StreamID:    os.Getenv(EnvUploadStreamID),
			DbDsn:       os.Getenv(EnvDbDsn),
			MaxAttempts: intVar(EnvUploadMaxAttempts, DefaultUploadMaxAttempts),
			MinInterval: durationVar(EnvUploadMinInterval, DefaultUploadMinInterval),
			MaxFailures: intVar(EnvUploadMaxFailures, DefaultUploadMaxFailures),
		},
		Connection: Connection{
			ConnectTimeout:    durationVar(EnvConnectTimeout, DefaultConnectTimeout),
			SendTimeout:       durationVar(EnvSendTimeout, DefaultSendTimeout),
			KeepaliveInterval: durationVar(EnvKeepaliveInterval, DefaultKeepaliveInterval),
			BackoffInitial:    durationVar(EnvBackoffInitial, DefaultBackoffInitial),
			BackoffCeiling:    durationVar(EnvBackoffCeiling, DefaultBackoffCeiling),
			FailureLimit:      intVar(EnvConnectFailureLimit, DefaultConnectFailureLimit),
		},
		Supervisor: Supervisor{
			MaxRestarts:   intVar(EnvSupervisorMaxRestarts, DefaultSupervisorMaxRestarts),
			RestartWindow: durationVar(EnvSupervisorRestartWindow, DefaultSupervisorRestartWindow),
		},
		HTTPPort: intVar(EnvHTTPPort, DefaultHTTPPort),
		GRPCPort: intVar(EnvGRPCPort, DefaultGRPCPort),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.Radio.Driver {
	case RadioHCI, RadioStub:
	default:
		errs = append(errs, fmt.Errorf("invalid %s: unknown driver %q", EnvRadioDriver, c.Radio.Driver))
	}
	if c.Radio.HCIDevice < 0 {
		errs = append(errs, fmt.Errorf("invalid %s: must not be negative", EnvHCIDevice))
	}

	switch c.Upload.Sink {
	case SinkHTTP:
		if c.Upload.StreamID == "" {
			errs = append(errs, fmt.Errorf("%s is required for the %s sink", EnvUploadStreamID, SinkHTTP))
		}
	case SinkPostgres:
		if c.Upload.DbDsn == "" {
			errs = append(errs, fmt.Errorf("%s is required for the %s sink", EnvDbDsn, SinkPostgres))
		}
	case SinkMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid %s: unknown sink %q", EnvUploadSink, c.Upload.Sink))
	}

	if c.WiFi.SSID != "" && c.WiFi.Interface == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is set", EnvWiFiInterface, EnvWiFiSSID))
	}

	positive := map[string]time.Duration{
		EnvConnectTimeout:          c.Connection.ConnectTimeout,
		EnvSendTimeout:             c.Connection.SendTimeout,
		EnvBackoffInitial:          c.Connection.BackoffInitial,
		EnvBackoffCeiling:          c.Connection.BackoffCeiling,
		EnvSupervisorRestartWindow: c.Supervisor.RestartWindow,
	}
	keys := make([]string, 0, len(positive))
	for k := range positive {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if positive[k] <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be positive", k))
		}
	}
	if c.Connection.BackoffCeiling < c.Connection.BackoffInitial {
		errs = append(errs, fmt.Errorf("invalid %s: below %s", EnvBackoffCeiling, EnvBackoffInitial))
	}
	if c.Connection.KeepaliveInterval < 0 {
		errs = append(errs, fmt.Errorf("invalid %s: must not be negative", EnvKeepaliveInterval))
	}
	if c.Upload.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("invalid %s: must not be negative", EnvUploadMinInterval))
	}
	if c.Upload.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("invalid %s: must be at least 1", EnvUploadMaxAttempts))
	}
	if c.Upload.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("invalid %s: must be at least 1", EnvUploadMaxFailures))
	}
	if c.Supervisor.MaxRestarts < 0 {
		errs = append(errs, fmt.Errorf("invalid %s: must not be negative", EnvSupervisorMaxRestarts))
	}
	if err := validPort(c.HTTPPort); err != nil {
		errs = append(errs, fmt.Errorf("invalid %s: %w", EnvHTTPPort, err))
	}
	if err := validPort(c.GRPCPort); err != nil {
		errs = append(errs, fmt.Errorf("invalid %s: %w", EnvGRPCPort, err))
	}

	return errors.Join(errs...)
}

// ParseTiltNames parses "red=Primary,green=Lager". An empty string yields
// a nil map.
func ParseTiltNames(raw string) (map[domain.Color]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	names := make(map[domain.Color]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		colorName, name, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q: expected color=name", pair)
		}
		color, err := domain.ParseColor(colorName)
		if err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("entry %q: empty name", pair)
		}
		if _, dup := names[color]; dup {
			return nil, fmt.Errorf("color %s configured twice", color)
		}
		names[color] = name
	}
	return names, nil
}

func validPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(strings.TrimSpace(value))
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(strings.TrimSpace(value))
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(strings.TrimSpace(value))
}

func normalizeLogLevel(level string) string {
	switch level = strings.ToLower(level); level {
	case "debug", "info", "warn", "error":
		return level
	case "warning":
		return "warn"
	default:
		return DefaultLogLevel
	}
}
