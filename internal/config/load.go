package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvConfigDir overrides ConfigDir when set.
const EnvConfigDir = "MIDGARD_RIG_CONFIG_DIR"

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for rig.yaml in the working directory, then in ConfigDir.
func findConfigFile() string {
	candidates := []string{
		"./" + fileName,
		filepath.Join(ConfigDir(), fileName),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

const fileName = "rig.yaml"

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "MidgardRig")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "MidgardRig")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "midgard-rig")
		}
		return filepath.Join(home, ".config", "midgard-rig")
	}
}

// loadFromFile merges a YAML file into cfg. Unknown keys are rejected so
// that misspelled settings do not silently fall back to defaults.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.IK.MaxIterations <= 0 {
		return fmt.Errorf("ik.max_iterations must be positive, got %d", c.IK.MaxIterations)
	}
	if c.IK.ReachThreshold <= 0 {
		return fmt.Errorf("ik.reach_threshold must be positive, got %g", c.IK.ReachThreshold)
	}
	if c.Animation.FrameRate <= 0 {
		return fmt.Errorf("animation.frame_rate must be positive, got %d", c.Animation.FrameRate)
	}
	if c.Animation.DefaultSpeed < 0 {
		return fmt.Errorf("animation.default_speed must not be negative, got %g", c.Animation.DefaultSpeed)
	}
	return nil
}
