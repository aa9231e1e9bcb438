// Package config loads gerber's on-disk YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wanman/gerber/internal/autoscan"
	"github.com/wanman/gerber/internal/encoding"
	"github.com/wanman/gerber/internal/logging"
)

// Server holds the UPnP device identity and HTTP port.
type Server struct {
	UDN          string `yaml:"udn"`
	FriendlyName string `yaml:"friendlyName"`
	WebPort      int    `yaml:"webPort"`
}

// Storage selects and locates the content database backend.
type Storage struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Import controls how the importer and watcher treat the filesystem.
type Import struct {
	Hidden         bool `yaml:"hidden"`
	FollowSymlinks bool `yaml:"followSymlinks"`
}

// Duration wraps time.Duration so it can be unmarshaled from a YAML scalar
// like "0s" or "5m" rather than requiring raw nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements the function-style unmarshaler interface (the
// yaml.v2 form of yaml.Unmarshaler), which yaml.v3 still honors.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// AutoscanSeed is one entry of the startup autoscan convenience list. It is
// only consulted on first boot; afterwards Storage is authoritative.
type AutoscanSeed struct {
	Path      string   `yaml:"path"`
	Recursive bool     `yaml:"recursive"`
	ScanLevel string   `yaml:"scanLevel"`
	Interval  Duration `yaml:"interval"`
}

// Level resolves the configured scan level string, defaulting to basic.
func (s AutoscanSeed) Level() autoscan.ScanLevel {
	if s.ScanLevel == "full" {
		return autoscan.ScanLevelFull
	}
	return autoscan.ScanLevelBasic
}

// Logging controls the root logger's verbosity.
type Logging struct {
	Level string `yaml:"level"`
}

// Config is the top-level on-disk configuration document.
type Config struct {
	Server   Server         `yaml:"server"`
	Storage  Storage        `yaml:"storage"`
	Import   Import         `yaml:"import"`
	Autoscan []AutoscanSeed `yaml:"autoscan"`
	Logging  Logging        `yaml:"logging"`
}

// Default returns a Config with the values gerber falls back to when no
// configuration file exists yet.
func Default() Config {
	return Config{
		Server: Server{
			FriendlyName: "gerber",
			WebPort:      49494,
		},
		Storage: Storage{
			Driver: "sqlite",
			Path:   "gerber.db",
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads and strictly unmarshals the YAML document at path. A missing
// file is not an error: Default() is returned instead.
func Load(path string) (Config, error) {
	cfg := Default()
	err := encoding.LoadAndUnmarshalYAML(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("unable to load configuration from %s: %w", path, err)
	}
	return cfg, nil
}

// LogLevel resolves the configured logging level, defaulting to Info on an
// unrecognized or empty value.
func (c Config) LogLevel() logging.Level {
	if level, ok := logging.NameToLevel(c.Logging.Level); ok {
		return level
	}
	return logging.LevelInfo
}
