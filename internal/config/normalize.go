package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)

	c.RunPod.APIKey = strings.TrimSpace(c.RunPod.APIKey)
	c.RunPod.BaseURL = strings.TrimRight(strings.TrimSpace(c.RunPod.BaseURL), "/")
	if c.RunPod.BaseURL == "" {
		c.RunPod.BaseURL = defaultBaseURL
	}
	c.RunPod.DefaultInstance = strings.TrimSpace(c.RunPod.DefaultInstance)
	for i := range c.RunPod.Instances {
		inst := &c.RunPod.Instances[i]
		inst.Name = strings.TrimSpace(inst.Name)
		inst.EndpointID = strings.TrimSpace(inst.EndpointID)
		inst.APIKey = strings.TrimSpace(inst.APIKey)
	}

	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
