package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "domain-connector.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearAzureEnv makes sure settings are not filled from the developer's shell.
func clearAzureEnv(t *testing.T) {
	t.Helper()
	for _, m := range settingsEnv {
		t.Setenv(m.env, "")
	}
	t.Setenv("PORT", "")
}

func TestLoadProviderSettings(t *testing.T) {
	clearAzureEnv(t)
	path := writeConfig(t, `provider: azure-cli
settings:
  app_name: "my-app"
  resource_group: "my-rg"
  environment: "my-env"
  command_timeout: "90s"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Provider != "azure-cli" {
		t.Errorf("expected provider 'azure-cli', got %q", cfg.Provider)
	}
	if cfg.Settings["app_name"] != "my-app" {
		t.Errorf("expected app_name 'my-app', got %q", cfg.Settings["app_name"])
	}
	if cfg.Settings["resource_group"] != "my-rg" {
		t.Errorf("expected resource_group 'my-rg', got %q", cfg.Settings["resource_group"])
	}
	if cfg.Settings["command_timeout"] != "90s" {
		t.Errorf("expected command_timeout '90s', got %q", cfg.Settings["command_timeout"])
	}
}

func TestLoadProviderSettings_DefaultProvider(t *testing.T) {
	clearAzureEnv(t)
	path := writeConfig(t, `settings:
  app_name: "my-app"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != DefaultProvider {
		t.Errorf("expected provider %q, got %q", DefaultProvider, cfg.Provider)
	}
}

func TestLoadProviderSettings_EnvVarExpansion(t *testing.T) {
	clearAzureEnv(t)
	t.Setenv("TEST_CLIENT_ID", "id-from-env")
	t.Setenv("TEST_CLIENT_SECRET", "secret-from-env")

	path := writeConfig(t, `provider: azure-cli
settings:
  app_name: "my-app"
  client_id: "${TEST_CLIENT_ID}"
  client_secret: "${TEST_CLIENT_SECRET}"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Settings["client_id"] != "id-from-env" {
		t.Errorf("expected client_id 'id-from-env', got %q", cfg.Settings["client_id"])
	}
	if cfg.Settings["client_secret"] != "secret-from-env" {
		t.Errorf("expected client_secret 'secret-from-env', got %q", cfg.Settings["client_secret"])
	}
	// Non-env values should remain unchanged.
	if cfg.Settings["app_name"] != "my-app" {
		t.Errorf("expected app_name unchanged, got %q", cfg.Settings["app_name"])
	}
}

func TestLoadProviderSettings_EnvVarUnset(t *testing.T) {
	clearAzureEnv(t)
	path := writeConfig(t, `provider: azure-cli
settings:
  az_path: "${UNSET_VAR_THAT_DOES_NOT_EXIST}"
  app_name: "literal-value"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unset env var expands to empty string.
	if cfg.Settings["az_path"] != "" {
		t.Errorf("expected az_path '' for unset env var, got %q", cfg.Settings["az_path"])
	}
	// Literal values without ${} stay as-is.
	if cfg.Settings["app_name"] != "literal-value" {
		t.Errorf("expected app_name 'literal-value', got %q", cfg.Settings["app_name"])
	}
}

func TestLoadProviderSettings_FilledFromAzureEnv(t *testing.T) {
	clearAzureEnv(t)
	t.Setenv("AZURE_APP_NAME", "env-app")
	t.Setenv("AZURE_RESOURCE_GROUP", "env-rg")
	t.Setenv("AZURE_ENV_NAME", "env-env")
	t.Setenv("AZURE_SP_CLIENT_ID", "env-id")
	t.Setenv("AZURE_SP_CLIENT_SECRET", "env-secret")
	t.Setenv("AZURE_TENANT_ID", "env-tenant")

	path := writeConfig(t, `provider: azure-cli
settings:
  app_name: "file-app"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The file wins over the environment.
	if cfg.Settings["app_name"] != "file-app" {
		t.Errorf("expected app_name 'file-app', got %q", cfg.Settings["app_name"])
	}
	if cfg.Settings["resource_group"] != "env-rg" {
		t.Errorf("expected resource_group 'env-rg', got %q", cfg.Settings["resource_group"])
	}
	if cfg.Settings["environment"] != "env-env" {
		t.Errorf("expected environment 'env-env', got %q", cfg.Settings["environment"])
	}

	creds := cfg.Credentials()
	if creds.ClientID != "env-id" || creds.ClientSecret != "env-secret" || creds.TenantID != "env-tenant" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}
