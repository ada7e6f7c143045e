package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/confinement-tools/mountns/internal/mountinfo"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "/etc/mountns.conf"
	// DefaultVeritysetupPath resolves veritysetup from PATH
	DefaultVeritysetupPath = "veritysetup"
)

// Config holds the tool configuration
type Config struct {
	// MountinfoPath overrides the mountinfo table to inspect; empty means
	// the table of the calling process
	MountinfoPath string `toml:"mountinfo_path"`
	// VeritysetupPath is the veritysetup binary used for root hash
	// extraction
	VeritysetupPath string `toml:"veritysetup_path"`
	// UnsafeFsTypes are filesystem types refused for sandbox paths on top
	// of the built-in set
	UnsafeFsTypes []string `toml:"unsafe_fs_types"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking precedence
// over config file values. Empty CLI values are ignored.
func (c *Config) Merge(mountinfoPath, veritysetupPath string) {
	if mountinfoPath != "" {
		c.MountinfoPath = mountinfoPath
	}
	if veritysetupPath != "" {
		c.VeritysetupPath = veritysetupPath
	}
}

// ApplyDefaults applies default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.MountinfoPath == "" {
		c.MountinfoPath = mountinfo.DefaultPath
	}
	if c.VeritysetupPath == "" {
		c.VeritysetupPath = DefaultVeritysetupPath
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.MountinfoPath) {
		return fmt.Errorf("mountinfo path must be absolute, got %q", c.MountinfoPath)
	}

	for _, fs := range c.UnsafeFsTypes {
		if fs == "" {
			return fmt.Errorf("unsafe_fs_types must not contain empty entries")
		}
	}

	return nil
}
