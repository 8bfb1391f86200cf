package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/shake-couplet/internal/shake"
)

// Config holds the settings shared by the shake-couplet binaries.
type Config struct {
	// Detector configures the shake detector.
	Detector Detector `yaml:"detector"`
	// GRPCAddress is the gRPC address of the shake server.
	GRPCAddress string `yaml:"grpc_addr"`
	// HTTPAddress is where the server exposes the browser page and its WebSocket.
	HTTPAddress string `yaml:"http_addr"`
	// NATS configures the optional NATS bridge. Empty URL disables it.
	NATS NATS `yaml:"nats"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// Audio enables the chime played on shake by the terminal page.
	Audio bool `yaml:"audio"`
	// TraceFile is an optional CSV accelerometer log followed as a motion source.
	TraceFile string `yaml:"trace_file"`
}

// Detector holds the two recognized detector keys.
type Detector struct {
	// Threshold is the minimum per-axis acceleration delta. Zero means the default.
	Threshold float64 `yaml:"threshold"`
	// TimeoutMs is the minimum interval between two accepted shakes, in
	// milliseconds. Absent means the default; an explicit 0 disables debouncing.
	TimeoutMs *int64 `yaml:"timeout_ms,omitempty"`
}

// Timeout returns the debounce window. Call it on a validated section.
func (d Detector) Timeout() time.Duration {
	if d.TimeoutMs == nil {
		return shake.DefaultTimeout
	}

	return time.Duration(*d.TimeoutMs) * time.Millisecond
}

// NATS holds the NATS bridge settings.
type NATS struct {
	// URL of the NATS server, e.g. nats://127.0.0.1:4222.
	URL string `yaml:"url"`
	// SampleSubject carries JSON motion samples into the detector.
	SampleSubject string `yaml:"sample_subject"`
	// ShakeSubject receives a JSON event for every accepted shake.
	ShakeSubject string `yaml:"shake_subject"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "shake-couplet-settings.yaml"

	// DefaultGRPCAddress is used when no gRPC address is configured.
	DefaultGRPCAddress = "127.0.0.1:50061"

	// DefaultHTTPAddress is used when no HTTP address is configured.
	DefaultHTTPAddress = "127.0.0.1:8080"

	// DefaultSampleSubject is the default NATS subject for motion samples.
	DefaultSampleSubject = "motion.samples"

	// DefaultShakeSubject is the default NATS subject for shake events.
	DefaultShakeSubject = "motion.shake"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeThreshold is returned for a threshold below zero or not a number.
	errNegativeThreshold = errors.New("detector threshold must be a positive number")
	// errNegativeTimeout is returned for a negative debounce window.
	errNegativeTimeout = errors.New("detector timeout must not be negative")
	// errNATSScheme is returned when the NATS URL has an unexpected scheme.
	errNATSScheme = errors.New("nats url must use nats, tls, ws or wss scheme")
)

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := new(Config)
	_ = Validate(cfg) //nolint:errcheck // Defaults always validate.

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
// Unknown keys are ignored.
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

// LoadOrDefault behaves like Load but returns defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes settings to the provided path.
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

// Validate checks the provided settings and fills defaults for empty fields.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if err := validateDetector(&settings.Detector); err != nil {
		return err
	}

	if settings.GRPCAddress == "" {
		settings.GRPCAddress = DefaultGRPCAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.GRPCAddress); err != nil {
		return fmt.Errorf("invalid grpc address: %w", err)
	}

	if settings.HTTPAddress == "" {
		settings.HTTPAddress = DefaultHTTPAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.HTTPAddress); err != nil {
		return fmt.Errorf("invalid http address: %w", err)
	}

	// Set default timeout if not specified
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	return validateNATS(&settings.NATS)
}

// DetectorOptions converts the detector section into detector options.
func (c *Config) DetectorOptions() []shake.Option {
	return []shake.Option{
		shake.WithThreshold(c.Detector.Threshold),
		shake.WithTimeout(c.Detector.Timeout()),
	}
}

// validateDetector rejects malformed detector keys and fills defaults for absent ones.
func validateDetector(d *Detector) error {
	if math.IsNaN(d.Threshold) || math.IsInf(d.Threshold, 0) || d.Threshold < 0 {
		return fmt.Errorf("%w: %v", errNegativeThreshold, d.Threshold)
	}

	if d.Threshold == 0 {
		d.Threshold = shake.DefaultThreshold
	}

	if d.TimeoutMs == nil {
		ms := shake.DefaultTimeout.Milliseconds()
		d.TimeoutMs = &ms

		return nil
	}

	if *d.TimeoutMs < 0 {
		return fmt.Errorf("%w: %dms", errNegativeTimeout, *d.TimeoutMs)
	}

	return nil
}

// validateNATS checks the NATS URL when the bridge is enabled.
func validateNATS(n *NATS) error {
	if n.SampleSubject == "" {
		n.SampleSubject = DefaultSampleSubject
	}

	if n.ShakeSubject == "" {
		n.ShakeSubject = DefaultShakeSubject
	}

	if n.URL == "" {
		return nil
	}

	u, err := url.Parse(n.URL)
	if err != nil {
		return fmt.Errorf("invalid nats url: %w", err)
	}

	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("%w: %q", errNATSScheme, u.Scheme)
	}
}
