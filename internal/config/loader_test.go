package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name string, cfg *Config) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Providers) != 2 {
		t.Errorf("expected 2 default providers, got %d", len(cfg.Providers))
	}
	if len(cfg.Agents) != 5 {
		t.Errorf("expected 5 default agents, got %d", len(cfg.Agents))
	}
	if cfg.Reviewer.Provider != "claude" {
		t.Errorf("expected claude reviewer, got %q", cfg.Reviewer.Provider)
	}
	if cfg.Approval.MaxAutoAmount != 10_000 {
		t.Errorf("unexpected auto-approval cap: %v", cfg.Approval.MaxAutoAmount)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("unexpected max attempts: %d", cfg.Pipeline.MaxAttempts)
	}
}

func TestLoadMissingFilesAreNotErrors(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/local.json")
	if err != nil {
		t.Fatalf("Load failed on missing files: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen address, got %q", cfg.Listen)
	}
}

func TestLoadGlobalOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", &Config{
		Listen: ":9090",
		Agents: map[string]AgentConfig{
			"sales": {Provider: "claude", Model: "claude-sonnet-4-20250514"},
		},
	})

	cfg, err := Load(global, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("global listen override not applied: %q", cfg.Listen)
	}
	if cfg.Agents["sales"].Provider != "claude" {
		t.Errorf("agent override not applied: %+v", cfg.Agents["sales"])
	}
	// Untouched agents keep their defaults.
	if cfg.Agents["finance"].Provider != "grok" {
		t.Errorf("default agent lost: %+v", cfg.Agents["finance"])
	}
}

func TestLoadLocalTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", &Config{
		Approval: ApprovalConfig{MaxAutoAmount: 5_000},
	})
	local := writeConfig(t, dir, "local.json", &Config{
		Approval: ApprovalConfig{MaxAutoAmount: 20_000, SLAMinutes: 60},
		Pipeline: PipelineConfig{
			Workers:    2,
			RoleLimits: map[string]int64{"sales": 4},
		},
	})

	cfg, err := Load(global, local)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Approval.MaxAutoAmount != 20_000 {
		t.Errorf("local approval cap not applied: %v", cfg.Approval.MaxAutoAmount)
	}
	if cfg.Approval.SLAMinutes != 60 {
		t.Errorf("local SLA not applied: %v", cfg.Approval.SLAMinutes)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("local workers not applied: %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.RoleLimits["sales"] != 4 {
		t.Errorf("role limit override not applied: %v", cfg.Pipeline.RoleLimits)
	}
	// Unset pipeline fields keep their defaults.
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("default max attempts lost: %d", cfg.Pipeline.MaxAttempts)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
