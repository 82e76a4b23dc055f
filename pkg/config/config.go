// Package config carries the protocol constants and the user-tunable
// settings shared by discovery, pairing, and the trust store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol constants. These are wire-visible: changing them breaks
// interoperability with existing peers.
const (
	// Version is the protocol version, advertised in TXT records and
	// written into fresh state files.
	Version = "0.1.0"

	// ServiceType is the mDNS service type peers advertise and browse.
	ServiceType = "_oreon-pickup._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the pairing listen port.
	DefaultPort = 50309
)

// Tunable defaults and their allowed ranges.
const (
	// DefaultPairingTimeout is how long a responder session waits for a
	// connection before expiring.
	DefaultPairingTimeout = 60 * time.Second

	MinPairingTimeout = 5 * time.Second
	MaxPairingTimeout = 10 * time.Minute

	// DefaultCodeLength is the number of digits in a pairing code.
	DefaultCodeLength = 4

	MinCodeLength = 4
	MaxCodeLength = 12
)

// Validation errors.
var (
	ErrInvalidPort    = errors.New("port out of range")
	ErrInvalidTimeout = errors.New("pairing timeout out of range")
	ErrInvalidLength  = errors.New("code length out of range")
)

// Config holds the user-tunable settings. The YAML layout is flat; zero
// valued fields fall back to defaults on Load.
type Config struct {
	// Port is the pairing listen port.
	Port int `yaml:"port"`

	// PairingTimeoutSeconds bounds a responder session, in seconds.
	PairingTimeoutSeconds int `yaml:"pairing_timeout"`

	// CodeLength is the number of digits in generated pairing codes.
	CodeLength int `yaml:"code_length"`

	// StatePath is the trust store file location.
	StatePath string `yaml:"state_path"`

	// Interface pins mDNS to one network interface by name.
	// Empty means all multicast-capable interfaces.
	Interface string `yaml:"interface"`

	// ProtocolLogPath enables the binary protocol log when set.
	ProtocolLogPath string `yaml:"protocol_log_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:                  DefaultPort,
		PairingTimeoutSeconds: int(DefaultPairingTimeout / time.Second),
		CodeLength:            DefaultCodeLength,
		StatePath:             DefaultStatePath(),
	}
}

// DefaultStatePath returns ~/.local/share/oreon-pickup/state.json, falling
// back to a relative path when the home directory is unknown.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "oreon-pickup", "state.json")
	}
	return filepath.Join(home, ".local", "share", "oreon-pickup", "state.json")
}

// Load reads a YAML config file. A missing file yields the defaults; a
// present file has its zero-valued fields filled with defaults, then the
// result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.merge(loaded)

	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// merge overlays non-zero fields from other.
func (c *Config) merge(other Config) {
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.PairingTimeoutSeconds != 0 {
		c.PairingTimeoutSeconds = other.PairingTimeoutSeconds
	}
	if other.CodeLength != 0 {
		c.CodeLength = other.CodeLength
	}
	if other.StatePath != "" {
		c.StatePath = other.StatePath
	}
	if other.Interface != "" {
		c.Interface = other.Interface
	}
	if other.ProtocolLogPath != "" {
		c.ProtocolLogPath = other.ProtocolLogPath
	}
}

// PairingTimeout returns the responder session deadline as a duration.
func (c Config) PairingTimeout() time.Duration {
	return time.Duration(c.PairingTimeoutSeconds) * time.Second
}

// Validate checks the numeric ranges.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if t := c.PairingTimeout(); t < MinPairingTimeout || t > MaxPairingTimeout {
		return fmt.Errorf("%w: %s (allowed %s-%s)", ErrInvalidTimeout, t, MinPairingTimeout, MaxPairingTimeout)
	}
	if c.CodeLength < MinCodeLength || c.CodeLength > MaxCodeLength {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidLength, c.CodeLength, MinCodeLength, MaxCodeLength)
	}
	return nil
}
