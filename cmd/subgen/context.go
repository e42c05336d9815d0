package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subgen/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
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
		c.config = cfg
	})
	return c.config, c.configErr
}

// client resolves the daemon address: the --server flag wins, then the
// configured bind address.
func (c *commandContext) client() (*apiClient, error) {
	address := ""
	if c.serverFlag != nil {
		address = strings.TrimSpace(*c.serverFlag)
	}
	if address == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		address = cfg.Server.Bind
	}
	return newAPIClient(address), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
