package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Instance describes a single serverless endpoint jobs can run on.
type Instance struct {
	Name                string `toml:"name"`
	EndpointID          string `toml:"endpoint_id"`
	Description         string `toml:"description"`
	APIKey              string `toml:"api_key"`
	Disabled            bool   `toml:"disabled"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// RunPod contains connection settings for the serverless API.
type RunPod struct {
	Enabled              bool       `toml:"enabled"`
	APIKey               string     `toml:"api_key"`
	BaseURL              string     `toml:"base_url"`
	DefaultInstance      string     `toml:"default_instance"`
	TimeoutSeconds       int        `toml:"timeout_seconds"`
	PollIntervalSeconds  int        `toml:"poll_interval_seconds"`
	HealthTimeoutSeconds int        `toml:"health_timeout_seconds"`
	Instances            []Instance `toml:"instances"`
}

// Retry contains the transient-error retry policy settings.
type Retry struct {
	MaxAttempts  int `toml:"max_attempts"`
	DelaySeconds int `toml:"delay_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for courier.
type Config struct {
	Paths         Paths         `toml:"paths"`
	RunPod        RunPod        `toml:"runpod"`
	Retry         Retry         `toml:"retry"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/courier/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("courier.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories courier writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the location of the job journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.DataDir, "journal.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "courierd.lock")
}

// ResolvedInstance carries instance settings with global fallbacks applied.
type ResolvedInstance struct {
	Name         string
	EndpointID   string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
}

// ResolveInstance looks up a configured instance by name, falling back to the
// default instance when name is empty, and applies global fallbacks for the
// API key, timeout, and poll interval. Disabled instances are rejected.
func (c *Config) ResolveInstance(name string) (ResolvedInstance, error) {
	if !c.RunPod.Enabled {
		return ResolvedInstance{}, errors.New("runpod.enabled is false; enable it in the config to submit jobs")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(c.RunPod.DefaultInstance)
	}
	if name == "" {
		return ResolvedInstance{}, errors.New("no instance named and runpod.default_instance is not set")
	}

	for _, inst := range c.RunPod.Instances {
		if !strings.EqualFold(inst.Name, name) {
			continue
		}
		if inst.Disabled {
			return ResolvedInstance{}, fmt.Errorf("instance %q is disabled", inst.Name)
		}
		resolved := ResolvedInstance{
			Name:         inst.Name,
			EndpointID:   inst.EndpointID,
			APIKey:       strings.TrimSpace(inst.APIKey),
			Timeout:      time.Duration(inst.TimeoutSeconds) * time.Second,
			PollInterval: time.Duration(inst.PollIntervalSeconds) * time.Second,
		}
		if resolved.APIKey == "" {
			resolved.APIKey = strings.TrimSpace(c.RunPod.APIKey)
		}
		if resolved.Timeout <= 0 {
			resolved.Timeout = time.Duration(c.RunPod.TimeoutSeconds) * time.Second
		}
		if resolved.PollInterval <= 0 {
			resolved.PollInterval = time.Duration(c.RunPod.PollIntervalSeconds) * time.Second
		}
		return resolved, nil
	}
	return ResolvedInstance{}, fmt.Errorf("instance %q is not configured", name)
}

// EnabledInstances returns the configured instances that are not disabled,
// in configuration order.
func (c *Config) EnabledInstances() []Instance {
	out := make([]Instance, 0, len(c.RunPod.Instances))
	for _, inst := range c.RunPod.Instances {
		if inst.Disabled {
			continue
		}
		out = append(out, inst)
	}
	return out
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
