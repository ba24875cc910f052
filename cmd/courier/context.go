package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"courier/internal/config"
	"courier/internal/control"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) withClient(fn func(*control.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := control.New(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return wrapDaemonError(err, cfg.Paths.APIBind)
	}
	return nil
}

func wrapDaemonError(err error, bind string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, control.ErrDaemonUnavailable) {
		return fmt.Errorf("connect to daemon at %s: %w; start it with `courierd`", bind, err)
	}
	return err
}
