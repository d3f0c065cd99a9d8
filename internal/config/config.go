// Package config handles rig engine configuration loading and management.
package config

import (
	"github.com/Faultbox/midgard-rig/internal/engine/ik"
	"github.com/Faultbox/midgard-rig/internal/logger"
)

// Config holds all engine settings.
type Config struct {
	IK        IKConfig        `yaml:"ik"`
	Animation AnimationConfig `yaml:"animation"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IKConfig holds solver settings shared by every rig.
type IKConfig struct {
	MaxIterations          int     `yaml:"max_iterations"`
	ReachThreshold         float32 `yaml:"reach_threshold"` // meters
	LockIntermediaryJoints bool    `yaml:"lock_intermediary_joints"`
}

// Options converts the settings for rig constructors.
func (c IKConfig) Options() ik.Options {
	return ik.Options{
		MaxIterations:          c.MaxIterations,
		ReachThreshold:         c.ReachThreshold,
		LockIntermediaryJoints: c.LockIntermediaryJoints,
	}
}

// AnimationConfig holds playback settings.
type AnimationConfig struct {
	FrameRate          int     `yaml:"frame_rate"`
	DefaultSpeed       float32 `yaml:"default_speed"`
	DefaultLayerWeight float32 `yaml:"default_layer_weight"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// FileConfig converts the rotation settings for the logger.
func (c LoggingConfig) FileConfig() logger.FileConfig {
	return logger.FileConfig{
		Path:       c.LogFile,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	files := logger.DefaultFileConfig("")
	return &Config{
		IK: IKConfig{
			MaxIterations:          ik.DefaultMaxIterations,
			ReachThreshold:         ik.DefaultReachThreshold,
			LockIntermediaryJoints: true,
		},
		Animation: AnimationConfig{
			FrameRate:          60,
			DefaultSpeed:       1,
			DefaultLayerWeight: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogFile:    "",
			MaxSizeMB:  files.MaxSizeMB,
			MaxBackups: files.MaxBackups,
			MaxAgeDays: files.MaxAgeDays,
			Compress:   files.Compress,
		},
	}
}
