package config

import (
	"os"

	"github.com/yuriy-kovalchuk/yk-domain-connector/internal/provider"
)

// DefaultProvider is used when the configuration names no provider.
const DefaultProvider = "azure-cli"

// ProviderConfig holds the hosting provider type and its provider-specific
// settings.
type ProviderConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

// settingsEnv maps provider settings to the environment variables that fill
// them when the configuration file leaves them empty.
var settingsEnv = []struct {
	setting string
	env     string
}{
	{"app_name", "AZURE_APP_NAME"},
	{"resource_group", "AZURE_RESOURCE_GROUP"},
	{"environment", "AZURE_ENV_NAME"},
	{"client_id", "AZURE_SP_CLIENT_ID"},
	{"client_secret", "AZURE_SP_CLIENT_SECRET"},
	{"tenant_id", "AZURE_TENANT_ID"},
}

// expand resolves ${ENV_VAR} references in setting values and then fills
// empty well-known settings from the environment.
func (p *ProviderConfig) expand() {
	if p.Provider == "" {
		p.Provider = DefaultProvider
	}
	if p.Settings == nil {
		p.Settings = map[string]string{}
	}
	for k, v := range p.Settings {
		p.Settings[k] = os.ExpandEnv(v)
	}
	for _, m := range settingsEnv {
		if p.Settings[m.setting] != "" {
			continue
		}
		if v := os.Getenv(m.env); v != "" {
			p.Settings[m.setting] = v
		}
	}
}

// Credentials returns the service principal credentials found in the
// settings.
func (p ProviderConfig) Credentials() provider.Credentials {
	return provider.Credentials{
		ClientID:     p.Settings["client_id"],
		ClientSecret: p.Settings["client_secret"],
		TenantID:     p.Settings["tenant_id"],
	}
}
