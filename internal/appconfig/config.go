// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"devfwd/internal/util"
)

// UIConfig contains TUI display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// ForwarderConfig holds the paths and protocol knobs for the forwarder
// binaries. Everything here used to be a class-level constant in older
// tooling; keeping it in config.yaml means no hidden process-wide state.
type ForwarderConfig struct {
	// HostBinary is the host_forwarder executable on the host machine.
	HostBinary string `yaml:"host_binary"`
	// DeviceBinary is the local device_forwarder executable that gets
	// pushed to DeviceBinaryPath on the device before each session.
	DeviceBinary string `yaml:"device_binary"`
	// DeviceBinaryPath is where the device forwarder lives on the device.
	DeviceBinaryPath string `yaml:"device_binary_path"`
	// ControlSocket is the abstract unix socket name the device forwarder
	// listens on for control traffic.
	ControlSocket string `yaml:"control_socket"`
	// BindAddr is the host address forwarded connections are delivered to.
	BindAddr string `yaml:"bind_addr"`
	// HandshakeTimeoutSeconds bounds the wait for each status line a
	// forwarder process is expected to emit during startup.
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`
}

// Config holds application-level configuration.
type Config struct {
	Forwarder ForwarderConfig `yaml:"forwarder"`
	UI        UIConfig        `yaml:"ui"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Forwarder: ForwarderConfig{
			HostBinary:              "host_forwarder",
			DeviceBinary:            "device_forwarder",
			DeviceBinaryPath:        "/data/local/tmp/device_forwarder",
			ControlSocket:           "devfwd_control",
			BindAddr:                "127.0.0.1",
			HandshakeTimeoutSeconds: int(util.HandshakeTimeout.Seconds()),
		},
		UI: UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/devfwd.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "devfwd"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "devfwd"), nil
}

// RuntimeFilePath returns the full path to runtime.json.
func RuntimeFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "runtime.json"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(cfg), nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func normalize(cfg Config) Config {
	def := Default()
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = def.UI.RefreshSeconds
	}
	if cfg.Forwarder.HandshakeTimeoutSeconds <= 0 {
		cfg.Forwarder.HandshakeTimeoutSeconds = def.Forwarder.HandshakeTimeoutSeconds
	}
	cfg.Forwarder.HostBinary = util.DefaultString(cfg.Forwarder.HostBinary, def.Forwarder.HostBinary)
	cfg.Forwarder.DeviceBinary = util.DefaultString(cfg.Forwarder.DeviceBinary, def.Forwarder.DeviceBinary)
	cfg.Forwarder.DeviceBinaryPath = util.DefaultString(cfg.Forwarder.DeviceBinaryPath, def.Forwarder.DeviceBinaryPath)
	cfg.Forwarder.ControlSocket = util.DefaultString(cfg.Forwarder.ControlSocket, def.Forwarder.ControlSocket)
	cfg.Forwarder.BindAddr = util.DefaultString(cfg.Forwarder.BindAddr, def.Forwarder.BindAddr)
	return cfg
}
