package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "scraper"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}

	for i := range cfg.Chains {
		if cfg.Chains[i].Index.ChunkSize == 0 {
			cfg.Chains[i].Index.ChunkSize = 100
		}
		if cfg.Chains[i].Index.Interval == 0 {
			cfg.Chains[i].Index.Interval = 10 * time.Second
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks per-chain setup. A misconfigured chain is a startup error,
// not a runtime retry condition.
func (c *AppConfig) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}

	seen := make(map[uint32]string, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chain %d: missing name", chain.ID)
		}
		if prev, ok := seen[chain.ID]; ok {
			return fmt.Errorf("chain %s: duplicate domain id %d (already used by %s)", chain.Name, chain.ID, prev)
		}
		seen[chain.ID] = chain.Name

		if chain.Mailbox == "" {
			return fmt.Errorf("chain %s: missing mailbox address", chain.Name)
		}
		if len(chain.Providers) == 0 {
			return fmt.Errorf("chain %s: no providers configured", chain.Name)
		}
		for _, p := range chain.Providers {
			if p.URL == "" {
				return fmt.Errorf("chain %s: provider %q missing url", chain.Name, p.Name)
			}
		}
	}
	return nil
}
