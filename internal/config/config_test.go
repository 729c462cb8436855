package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deltasync.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesBaselineAndEngine(t *testing.T) {
	path := writeConfig(t, `
clientId: acme
engine: relational
baseline:
  backend: relational
  relational:
    type: postgres
    host: db.internal
    port: 5432
    database: sync
    ssl: require
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ClientID != "acme" {
		t.Fatalf("expected clientId acme, got %q", cfg.ClientID)
	}
	if cfg.Engine != EngineRelational {
		t.Fatalf("expected relational engine, got %q", cfg.Engine)
	}
	if cfg.Baseline.Relational.Host != "db.internal" {
		t.Fatalf("expected host db.internal, got %q", cfg.Baseline.Relational.Host)
	}
}

func TestLoadRequiresClientID(t *testing.T) {
	path := writeConfig(t, `
baseline:
  backend: filesystem
  filesystem:
    path: /tmp/baselines
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a missing clientId")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestApplyEnvOverridesPrefersEnvironment(t *testing.T) {
	t.Setenv("DELTASYNC_DB_PASSWORD", "from-env")

	path := writeConfig(t, `
clientId: acme
baseline:
  backend: relational
  relational:
    type: postgres
    password: from-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Baseline.Relational.Password != "from-env" {
		t.Fatalf("expected env override to win, got %q", cfg.Baseline.Relational.Password)
	}
}

func TestToBaselineConfigMapsSSLStringToBool(t *testing.T) {
	cfg := Config{
		Baseline: BaselineConfig{
			Backend:    "relational",
			Relational: RelationalConfig{Type: "postgres", SSL: "require"},
		},
	}
	out := cfg.ToBaselineConfig()
	if !out.Relational.SSL {
		t.Fatalf("expected ssl=require to map to true")
	}

	cfg.Baseline.Relational.SSL = "disable"
	out = cfg.ToBaselineConfig()
	if out.Relational.SSL {
		t.Fatalf("expected ssl=disable to map to false")
	}
}
