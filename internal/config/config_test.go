package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Sim.RateLimit.Cap != 100 {
		t.Errorf("expected default cap 100, got %d", cfg.Sim.RateLimit.Cap)
	}
	if cfg.Sim.RateLimit.Window != 10 {
		t.Errorf("expected default window 10, got %d", cfg.Sim.RateLimit.Window)
	}
	if cfg.Sim.RateLimit.Scope != "global" {
		t.Errorf("expected default scope global, got %s", cfg.Sim.RateLimit.Scope)
	}
	if cfg.Sim.FeeRate != "0.001" {
		t.Errorf("expected default fee rate 0.001, got %s", cfg.Sim.FeeRate)
	}
	if cfg.Sim.Workers != 8 {
		t.Errorf("expected default workers 8, got %d", cfg.Sim.Workers)
	}
	if cfg.Sim.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected default idempotency ttl 24h, got %s", cfg.Sim.IdempotencyTTL)
	}
	if cfg.Journal.Enabled {
		t.Error("expected journal disabled by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected default logging info/text, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoad_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
sim:
  rate_limit:
    scope: per_index
  fee_rate: "0.002"
journal:
  enabled: true
  dir: ` + filepath.Join(dir, "journal") + `
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config file: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from file, got %d", cfg.Server.Port)
	}
	if cfg.Sim.RateLimit.Scope != "per_index" {
		t.Errorf("expected scope per_index from file, got %s", cfg.Sim.RateLimit.Scope)
	}
	if cfg.Sim.FeeRate != "0.002" {
		t.Errorf("expected fee rate 0.002 from file, got %s", cfg.Sim.FeeRate)
	}
	if !cfg.Journal.Enabled {
		t.Error("expected journal enabled from file")
	}

	// Untouched keys keep their defaults
	if cfg.Sim.RateLimit.Cap != 100 {
		t.Errorf("expected cap to keep default 100, got %d", cfg.Sim.RateLimit.Cap)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ETFSIM_SIM_RATE_LIMIT_CAP", "7")
	t.Setenv("ETFSIM_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Sim.RateLimit.Cap != 7 {
		t.Errorf("expected cap 7 from environment, got %d", cfg.Sim.RateLimit.Cap)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format json from environment, got %s", cfg.Log.Format)
	}
}

func TestLoad_InvalidScope(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
sim:
  rate_limit:
    scope: sideways
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid scope to fail validation, got nil")
	}
}

func TestEngineConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("failed to build engine config: %v", err)
	}

	if !engCfg.FeeRate.Equal(decimal.New(1, -3)) {
		t.Errorf("expected fee rate 0.001, got %s", engCfg.FeeRate)
	}
	if engCfg.RateLimitScope != engine.ScopeGlobal {
		t.Errorf("expected global scope, got %s", engCfg.RateLimitScope)
	}
	if engCfg.Workers != 8 || engCfg.QueueSize != 1024 {
		t.Errorf("unexpected pool sizing: workers=%d queue=%d", engCfg.Workers, engCfg.QueueSize)
	}

	cfg.Sim.RateLimit.Scope = "per_index"
	engCfg, err = cfg.EngineConfig()
	if err != nil {
		t.Fatalf("failed to build per_index engine config: %v", err)
	}
	if engCfg.RateLimitScope != engine.ScopePerIndex {
		t.Errorf("expected per_index scope, got %s", engCfg.RateLimitScope)
	}

	cfg.Sim.FeeRate = "lots"
	if _, err := cfg.EngineConfig(); err == nil {
		t.Fatal("expected unparseable fee rate to fail, got nil")
	}

	cfg.Sim.FeeRate = "-0.001"
	if _, err := cfg.EngineConfig(); err == nil {
		t.Fatal("expected negative fee rate to fail, got nil")
	}
}
