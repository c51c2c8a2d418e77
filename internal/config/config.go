package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	// Devices rarely ship a full zoneinfo database.
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the store, the scheduler, the device agent and the CLI.
type Config struct {
	// ServerAddress is the gRPC address of the store service.
	ServerAddress string `yaml:"server_addr"`
	// HTTPAddress is the REST/WebSocket address of the store service.
	HTTPAddress string `yaml:"http_addr"`
	// Timeout is the default duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// Timezone is the IANA zone used for alarm matching and the device clock.
	Timezone string `yaml:"timezone"`
	// LogLevel is the minimum level of emitted log lines.
	LogLevel string `yaml:"log_level"`
	// Store configures the store service backend and its REST surface.
	Store StoreConfig `yaml:"store"`
	// Scheduler configures the per-minute trigger reconciliation loop.
	Scheduler SchedulerConfig `yaml:"scheduler"`
	// Device configures one physical alarm clock.
	Device DeviceConfig `yaml:"device"`
}

// StoreConfig configures where the store service keeps its data.
type StoreConfig struct {
	// Backend is one of BackendMemory, BackendFile, BackendSQLite or BackendPostgres.
	Backend string `yaml:"backend"`
	// StateFile is the JSON snapshot path used by the file backend.
	StateFile string `yaml:"state_file"`
	// DSN is the connection string used by the SQL backends.
	DSN string `yaml:"dsn"`
	// RateLimitPerSec is the per-IP request rate allowed on the REST API.
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	// RateLimitBurst is the per-IP burst allowed on the REST API.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// SchedulerConfig configures the alarm scheduler.
type SchedulerConfig struct {
	// TickEpsilon is added after each minute boundary before the next tick runs.
	TickEpsilon time.Duration `yaml:"tick_epsilon"`
}

// DeviceConfig configures the device agent.
type DeviceConfig struct {
	IdentityFile             string        `yaml:"identity_file"`
	IdentityPrefix           string        `yaml:"identity_prefix"`
	Transport                string        `yaml:"transport"`
	Observer                 string        `yaml:"observer"`
	PollTimeout              time.Duration `yaml:"poll_timeout"`
	StartupGrace             time.Duration `yaml:"startup_grace"`
	ClockTick                time.Duration `yaml:"clock_tick"`
	OverlayTick              time.Duration `yaml:"overlay_tick"`
	DisabledMessageDuration  time.Duration `yaml:"disabled_message_duration"`
	IdentifierDuration       time.Duration `yaml:"identifier_duration"`
	VibrationMessageDuration time.Duration `yaml:"vibration_message_duration"`
	DisableReset             string        `yaml:"disable_reset"`
	VibrationEnabled         bool          `yaml:"vibration_enabled"`
	AllowMultipleInstances   bool          `yaml:"allow_multiple_instances"`
	Keyboard                 bool          `yaml:"keyboard"`
	Display                  DisplayConfig `yaml:"display"`
	GPIO                     GPIOConfig    `yaml:"gpio"`
}

// DisplayConfig describes the character display attached to the device.
type DisplayConfig struct {
	Kind   string `yaml:"kind"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// GPIOConfig maps logical actuators and buttons to GPIO channels.
type GPIOConfig struct {
	Kind                string        `yaml:"kind"`
	Root                string        `yaml:"root"`
	LEDPin              int           `yaml:"led_pin"`
	VibrationPin        int           `yaml:"vibration_pin"`
	DisableButtonPin    int           `yaml:"disable_button_pin"`
	IdentifierButtonPin int           `yaml:"identifier_button_pin"`
	VibrationButtonPin  int           `yaml:"vibration_button_pin"`
	ButtonPollInterval  time.Duration `yaml:"button_poll_interval"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "silent-alarm-settings.yaml"

	// DefaultStateFilename is the default filename for the store snapshot.
	DefaultStateFilename = "silent-alarm-state.json"

	// DefaultIdentityFilename is the default filename for the device identifier record.
	DefaultIdentityFilename = "silent-alarm-device-id.txt"

	// DefaultIdentityPrefix is the fixed prefix of generated device identifiers.
	DefaultIdentityPrefix = "pi"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultTimezone is used when no timezone is configured.
	DefaultTimezone = "Europe/Rome"

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Device transports and observers.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"

	ObserverPoll      = "poll"
	ObserverSubscribe = "subscribe"
)

// Manual-disable reset policies.
const (
	ResetMinute = "minute"
	ResetEdge   = "edge"
)

// Hardware kinds.
const (
	GPIOKindLog   = "log"
	GPIOKindSysfs = "sysfs"

	DisplayKindConsole = "console"
	DisplayKindNone    = "none"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
	// errUnknownOption is returned when an enumerated setting has an unsupported value.
	errUnknownOption = errors.New("unknown option")
	// errDSNRequired is returned when an SQL backend is selected without a DSN.
	errDSNRequired = errors.New("dsn must be provided for SQL backends")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills in defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.HTTPAddress != "" {
		if _, _, err := net.SplitHostPort(settings.HTTPAddress); err != nil {
			return fmt.Errorf("invalid http address: %w", err)
		}
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Timezone == "" {
		settings.Timezone = DefaultTimezone
	}

	if _, err := time.LoadLocation(settings.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", settings.Timezone, err)
	}

	if err := validateStore(&settings.Store); err != nil {
		return err
	}

	if settings.Scheduler.TickEpsilon <= 0 {
		settings.Scheduler.TickEpsilon = 100 * time.Millisecond
	}

	return validateDevice(&settings.Device)
}

// Location returns the configured timezone. Validate must have succeeded before.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}

	return loc
}

func validateStore(store *StoreConfig) error {
	if store.Backend == "" {
		store.Backend = BackendFile
	}

	if store.StateFile == "" {
		store.StateFile = DefaultStateFilename
	}

	if store.RateLimitPerSec <= 0 {
		store.RateLimitPerSec = 10
	}

	if store.RateLimitBurst <= 0 {
		store.RateLimitBurst = 20
	}

	switch store.Backend {
	case BackendMemory, BackendFile:
		return nil
	case BackendSQLite, BackendPostgres:
		if store.DSN == "" {
			return errDSNRequired
		}

		return nil
	default:
		return fmt.Errorf("store backend %q: %w", store.Backend, errUnknownOption)
	}
}

//nolint:cyclop // A flat list of defaults reads better than a table here.
func validateDevice(device *DeviceConfig) error {
	if device.IdentityFile == "" {
		device.IdentityFile = DefaultIdentityFilename
	}

	if device.IdentityPrefix == "" {
		device.IdentityPrefix = DefaultIdentityPrefix
	}

	device.Transport = defaultString(strings.ToLower(device.Transport), TransportGRPC)
	device.Observer = defaultString(strings.ToLower(device.Observer), ObserverSubscribe)
	device.DisableReset = defaultString(strings.ToLower(device.DisableReset), ResetMinute)
	device.Display.Kind = defaultString(strings.ToLower(device.Display.Kind), DisplayKindConsole)
	device.GPIO.Kind = defaultString(strings.ToLower(device.GPIO.Kind), GPIOKindLog)

	defaultDuration(&device.PollTimeout, 10*time.Second)
	defaultDuration(&device.StartupGrace, 15*time.Second)
	defaultDuration(&device.ClockTick, time.Second)
	defaultDuration(&device.OverlayTick, 250*time.Millisecond)
	defaultDuration(&device.DisabledMessageDuration, 10*time.Second)
	defaultDuration(&device.IdentifierDuration, 10*time.Second)
	defaultDuration(&device.VibrationMessageDuration, 3*time.Second)
	defaultDuration(&device.GPIO.ButtonPollInterval, 50*time.Millisecond)

	if device.Display.Width <= 0 {
		device.Display.Width = 16
	}

	if device.Display.Height <= 0 {
		device.Display.Height = 2
	}

	if device.GPIO.Root == "" {
		device.GPIO.Root = "/sys/class/gpio"
	}

	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"device transport", device.Transport, []string{TransportGRPC, TransportHTTP}},
		{"device observer", device.Observer, []string{ObserverPoll, ObserverSubscribe}},
		{"disable reset policy", device.DisableReset, []string{ResetMinute, ResetEdge}},
		{"display kind", device.Display.Kind, []string{DisplayKindConsole, DisplayKindNone}},
		{"gpio kind", device.GPIO.Kind, []string{GPIOKindLog, GPIOKindSysfs}},
	}

	for _, check := range checks {
		if !slices.Contains(check.allowed, check.value) {
			return fmt.Errorf("%s %q: %w", check.name, check.value, errUnknownOption)
		}
	}

	return nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func defaultDuration(value *time.Duration, fallback time.Duration) {
	if *value <= 0 {
		*value = fallback
	}
}
