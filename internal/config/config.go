// Package config provides settings management for the notebook engine.
// Settings are loaded from two sources, lowest to highest priority:
//
//  1. ~/.hynb/config.yaml (user level)
//  2. .hynb/config.yaml   (project level)
//
// Later sources override earlier ones field by field.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the complete engine configuration.
type Settings struct {
	// Model is the language model used by the agent loop.
	Model string `yaml:"model,omitempty"`

	// KernelSpec names the kernel backend to use.
	KernelSpec string `yaml:"kernelSpec,omitempty"`

	// ServerURL points at a remote execution server, if any.
	ServerURL string `yaml:"serverUrl,omitempty"`

	// StartupTimeoutSeconds bounds the wait for kernel readiness.
	StartupTimeoutSeconds int `yaml:"startupTimeoutSeconds,omitempty"`

	// ExecuteTimeoutSeconds bounds a single cell run.
	ExecuteTimeoutSeconds int `yaml:"executeTimeoutSeconds,omitempty"`

	// MaxTurns caps the agent loop.
	MaxTurns int `yaml:"maxTurns,omitempty"`
}

// NewSettings returns the defaults.
func NewSettings() *Settings {
	return &Settings{
		Model:                 "claude-sonnet-4-20250514",
		KernelSpec:            "starlark",
		StartupTimeoutSeconds: 120,
		ExecuteTimeoutSeconds: 600,
		MaxTurns:              20,
	}
}

// StartupTimeout returns the startup timeout as a duration.
func (s *Settings) StartupTimeout() time.Duration {
	return time.Duration(s.StartupTimeoutSeconds) * time.Second
}

// ExecuteTimeout returns the per-run timeout as a duration.
func (s *Settings) ExecuteTimeout() time.Duration {
	return time.Duration(s.ExecuteTimeoutSeconds) * time.Second
}

// Loader handles loading and merging settings.
type Loader struct {
	userDir    string
	projectDir string
}

// NewLoader creates a loader with the default directories.
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		userDir:    filepath.Join(homeDir, ".hynb"),
		projectDir: ".hynb",
	}
}

// NewLoaderWithDirs creates a loader with custom directories (tests).
func NewLoaderWithDirs(userDir, projectDir string) *Loader {
	return &Loader{userDir: userDir, projectDir: projectDir}
}

// Load merges settings from all sources over the defaults. Missing
// files are not errors.
func (l *Loader) Load() (*Settings, error) {
	settings := NewSettings()

	sources := []string{
		filepath.Join(l.userDir, "config.yaml"),
		filepath.Join(l.projectDir, "config.yaml"),
	}

	for _, path := range sources {
		overlay, err := readSettings(path)
		if err != nil {
			return nil, err
		}
		if overlay != nil {
			merge(settings, overlay)
		}
	}

	return settings, nil
}

func readSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// merge overlays non-zero fields of src onto dst.
func merge(dst, src *Settings) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.KernelSpec != "" {
		dst.KernelSpec = src.KernelSpec
	}
	if src.ServerURL != "" {
		dst.ServerURL = src.ServerURL
	}
	if src.StartupTimeoutSeconds > 0 {
		dst.StartupTimeoutSeconds = src.StartupTimeoutSeconds
	}
	if src.ExecuteTimeoutSeconds > 0 {
		dst.ExecuteTimeoutSeconds = src.ExecuteTimeoutSeconds
	}
	if src.MaxTurns > 0 {
		dst.MaxTurns = src.MaxTurns
	}
}
