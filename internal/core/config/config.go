package config

import (
	"github.com/vietddude/scraper/internal/core/domain"
	redisclient "github.com/vietddude/scraper/internal/infra/redis"
	"github.com/vietddude/scraper/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Agent    AgentConfig        `yaml:"agent"`
	Server   ServerConfig       `yaml:"server"`
	Chains   []ChainConfig      `yaml:"chains"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// AgentConfig identifies this agent instance in diagnostics and metrics.
type AgentConfig struct {
	Name string `yaml:"name"`
}

// ServerConfig holds the health/metrics listener settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health listener
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds settings for a single scraped chain.
type ChainConfig struct {
	ID        uint32               `yaml:"id"        mapstructure:"id"`
	Name      string               `yaml:"name"      mapstructure:"name"`
	Mailbox   string               `yaml:"mailbox"   mapstructure:"mailbox"`
	Providers []ProviderConfig     `yaml:"providers" mapstructure:"providers"`
	Index     domain.IndexSettings `yaml:"index"     mapstructure:"index"`
}

// Domain returns the chain's identity value.
func (c ChainConfig) Domain() domain.Domain {
	return domain.Domain{ID: c.ID, Name: c.Name}
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url"  mapstructure:"url"`
}
