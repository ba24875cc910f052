package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRunPod(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateRunPod() error {
	if !c.RunPod.Enabled {
		return nil
	}
	if err := ensurePositiveMap(map[string]int{
		"runpod.timeout_seconds":        c.RunPod.TimeoutSeconds,
		"runpod.poll_interval_seconds":  c.RunPod.PollIntervalSeconds,
		"runpod.health_timeout_seconds": c.RunPod.HealthTimeoutSeconds,
	}); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.RunPod.Instances))
	hasKey := c.RunPod.APIKey != ""
	for _, inst := range c.RunPod.Instances {
		if inst.Name == "" {
			return errors.New("runpod.instances entries require a name")
		}
		lower := strings.ToLower(inst.Name)
		if _, dup := seen[lower]; dup {
			return fmt.Errorf("duplicate runpod instance name %q", inst.Name)
		}
		seen[lower] = struct{}{}
		if inst.EndpointID == "" {
			return fmt.Errorf("runpod instance %q requires an endpoint_id", inst.Name)
		}
		if !hasKey && inst.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/courier/config.toml"
			}
			return fmt.Errorf("runpod.api_key is required for instance %q. Edit %s (create with 'courier config init')", inst.Name, defaultPath)
		}
		if inst.TimeoutSeconds < 0 {
			return fmt.Errorf("runpod instance %q timeout_seconds must be >= 0", inst.Name)
		}
		if inst.PollIntervalSeconds < 0 {
			return fmt.Errorf("runpod instance %q poll_interval_seconds must be >= 0", inst.Name)
		}
	}

	if c.RunPod.DefaultInstance != "" {
		if _, ok := seen[strings.ToLower(c.RunPod.DefaultInstance)]; !ok {
			return fmt.Errorf("runpod.default_instance %q does not match any configured instance", c.RunPod.DefaultInstance)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.DelaySeconds <= 0 {
		return errors.New("retry.delay_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
