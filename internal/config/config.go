package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

const (
	// DefaultPath is read when CONNECTOR_CONFIG_PATH is not set.
	DefaultPath = "configs/domain-connector.yaml"

	DefaultPort             = "3000"
	DefaultProvisionTimeout = 15 * time.Minute
	DefaultDNSTimeout       = 5 * time.Second
	DefaultCallbackTimeout  = 10 * time.Second
)

// Config is the connector configuration.
type Config struct {
	// ListenAddr is the HTTP listen address. When empty it is ":" + $PORT,
	// or ":3000".
	ListenAddr string `yaml:"listen_addr"`

	// ProvisionTimeout bounds one background add-and-bind run.
	ProvisionTimeout time.Duration `yaml:"provision_timeout"`

	// AllowedDomains restricts the hostnames that may be connected. Empty
	// allows all.
	AllowedDomains []string `yaml:"allowed_domains"`

	DNS      DNSConfig      `yaml:"dns"`
	Callback CallbackConfig `yaml:"callback"`

	ProviderConfig `yaml:",inline"`
}

// DNSConfig configures record lookups.
type DNSConfig struct {
	// Nameserver is an optional "host:port" used instead of the system
	// resolver.
	Nameserver string        `yaml:"nameserver"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CallbackConfig configures callback delivery.
type CallbackConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		ProvisionTimeout: DefaultProvisionTimeout,
		DNS:              DNSConfig{Timeout: DefaultDNSTimeout},
		Callback:         CallbackConfig{Timeout: DefaultCallbackTimeout},
		ProviderConfig:   ProviderConfig{Provider: DefaultProvider},
	}
}

// LoadDotEnv loads environment variables from a .env file if it exists.
// Variables already present in the environment are not overridden.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the path specified by the
// CONNECTOR_CONFIG_PATH environment variable, defaulting to
// "configs/domain-connector.yaml". A missing default file is not an error:
// the configuration is then built from the environment alone.
func Load() (*Config, error) {
	path := os.Getenv("CONNECTOR_CONFIG_PATH")
	if path != "" {
		return LoadFromPath(path)
	}

	cfg, err := LoadFromPath(DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return FromEnv()
	}
	return cfg, err
}

// FromEnv builds a configuration from defaults and the environment.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads the configuration from the given file path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) complete() error {
	c.ListenAddr = os.ExpandEnv(c.ListenAddr)
	if c.ListenAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = DefaultPort
		}
		c.ListenAddr = ":" + port
	}
	c.DNS.Nameserver = os.ExpandEnv(c.DNS.Nameserver)
	c.ProviderConfig.expand()
	return c.validate()
}

func (c *Config) validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("config: invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	if c.DNS.Nameserver != "" {
		if _, _, err := net.SplitHostPort(c.DNS.Nameserver); err != nil {
			return fmt.Errorf("config: invalid dns.nameserver %q: %w", c.DNS.Nameserver, err)
		}
	}
	if c.ProvisionTimeout <= 0 {
		return fmt.Errorf("config: provision_timeout must be positive, got %s", c.ProvisionTimeout)
	}
	if c.DNS.Timeout <= 0 {
		return fmt.Errorf("config: dns.timeout must be positive, got %s", c.DNS.Timeout)
	}
	if c.Callback.Timeout <= 0 {
		return fmt.Errorf("config: callback.timeout must be positive, got %s", c.Callback.Timeout)
	}
	return nil
}

// DomainPolicy returns the allow-list built from AllowedDomains.
func (c *Config) DomainPolicy() *DomainPolicy {
	return NewDomainPolicy(c.AllowedDomains)
}
