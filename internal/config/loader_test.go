package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 600*time.Second {
		t.Errorf("expected request timeout 600s, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Invoker.FlushBatch != 2 || cfg.Invoker.FlushInterval != 10*time.Millisecond {
		t.Errorf("unexpected flush cadence %d/%v", cfg.Invoker.FlushBatch, cfg.Invoker.FlushInterval)
	}
	if cfg.Tools.CacheTTL != 3*time.Minute {
		t.Errorf("expected cache ttl 3m, got %v", cfg.Tools.CacheTTL)
	}
	if cfg.Routing.LightTokens != 900 || cfg.Routing.ToolingTokens != 1400 || cfg.Routing.HeavyTokens != 2600 {
		t.Errorf("unexpected token budgets %+v", cfg.Routing)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
storage:
  conversations_dir: "/srv/convos"
invoker:
  command: ["/opt/verdant/bin/verdant-ask", "--stream=false"]
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Storage.ConversationsDir != "/srv/convos" {
		t.Errorf("expected conversations dir override, got %s", cfg.Storage.ConversationsDir)
	}
	if len(cfg.Invoker.Command) != 2 || cfg.Invoker.Command[1] != "--stream=false" {
		t.Errorf("unexpected invoker command %v", cfg.Invoker.Command)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Storage.GlobalInfoPath != "data/globalInfo.json" {
		t.Errorf("expected default global info path, got %s", cfg.Storage.GlobalInfoPath)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("VERDANT_PORT", "7070")
	t.Setenv("DEDALUS_API_KEY", "sk-test")
	t.Setenv("VERDANT_INVOKER_COMMAND", "/usr/local/bin/verdant-ask --stream=false")
	t.Setenv("VERDANT_FAILOVER_ENABLED", "false")
	t.Setenv("VERDANT_TOOL_CACHE_TTL", "45s")
	t.Setenv("VERDANT_LOG_LEVEL", "warn")
	t.Setenv("VERDANT_MAX_BODY_BYTES", "1024")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Upstream.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.Upstream.APIKey)
	}
	if len(cfg.Invoker.Command) != 2 || cfg.Invoker.Command[0] != "/usr/local/bin/verdant-ask" {
		t.Errorf("unexpected command %v", cfg.Invoker.Command)
	}
	if cfg.Invoker.FailoverEnabled {
		t.Error("expected failover disabled")
	}
	if cfg.Tools.CacheTTL != 45*time.Second {
		t.Errorf("expected 45s ttl, got %v", cfg.Tools.CacheTTL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
	if cfg.Server.MaxBodyBytes != 1024 {
		t.Errorf("expected 1024, got %d", cfg.Server.MaxBodyBytes)
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()
	t.Setenv("VERDANT_INVOKER_MAX_CONCURRENT", "lots")
	t.Setenv("VERDANT_RETRY_BACKOFF", "soon")
	loadEnv(&cfg)
	if cfg.Invoker.MaxConcurrent != 8 {
		t.Errorf("invalid int must keep default, got %d", cfg.Invoker.MaxConcurrent)
	}
	if cfg.Invoker.RetryBackoff != 300*time.Millisecond {
		t.Errorf("invalid duration must keep default, got %v", cfg.Invoker.RetryBackoff)
	}
}

func TestCacheTTLFloor(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VERDANT_TOOL_CACHE_TTL", "5s")
	cfg, err := LoadFrom(filepath.Join(dir, "none.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Tools.CacheTTL != MinCacheTTL {
		t.Errorf("expected ttl floor %v, got %v", MinCacheTTL, cfg.Tools.CacheTTL)
	}
}

func TestLoadFromFullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
logging:
  level: "debug"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VERDANT_PORT", "7070")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("YAML should override defaults: got level %q, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = "" }},
		{"conversations dir", func(c *Config) { c.Storage.ConversationsDir = "" }},
		{"invoker command", func(c *Config) { c.Invoker.Command = nil }},
		{"breaker", func(c *Config) { c.Breaker.MaxFailures = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
