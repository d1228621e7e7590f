package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/veritas/pkg/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Engine.MaxConcurrentRules != 5 {
		t.Errorf("expected 5 concurrent rules, got %d", cfg.Engine.MaxConcurrentRules)
	}
	if cfg.Engine.DefaultRuleTimeout != 2*time.Second {
		t.Errorf("expected 2s default rule timeout, got %v", cfg.Engine.DefaultRuleTimeout)
	}
	if !cfg.Flags.ValidationEnabled {
		t.Error("validation should be enabled by default")
	}
	if !cfg.Flags.FallbackEnabled {
		t.Error("fallback should be enabled by default")
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
engine:
  max_concurrent_rules: 10
  default_rule_timeout: 500ms
flags:
  validation_enabled: false
  disabled_persona_types:
    - b2b
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Engine.MaxConcurrentRules != 10 {
		t.Errorf("expected 10 concurrent rules, got %d", cfg.Engine.MaxConcurrentRules)
	}
	if cfg.Engine.DefaultRuleTimeout != 500*time.Millisecond {
		t.Errorf("expected 500ms timeout, got %v", cfg.Engine.DefaultRuleTimeout)
	}
	if cfg.Flags.ValidationEnabled {
		t.Error("validation should be disabled")
	}
	// Defaults still apply to sections the file omits.
	if cfg.Registry.CacheSize != 64 {
		t.Errorf("expected default cache size 64, got %d", cfg.Registry.CacheSize)
	}
}

func TestFlagsQueries(t *testing.T) {
	flags := NewFlags(FlagsConfig{
		ValidationEnabled:    true,
		DisabledPersonaTypes: []string{"b2b"},
		DisabledCategories:   []string{"business"},
		FallbackEnabled:      true,
	})

	if !flags.ValidationEnabled() {
		t.Error("validation should be enabled")
	}
	if flags.PersonaTypeEnabled(models.PersonaB2B) {
		t.Error("b2b should be disabled")
	}
	if !flags.PersonaTypeEnabled(models.PersonaStandard) {
		t.Error("standard should be enabled")
	}
	if flags.CategoryEnabled(models.CategoryBusiness) {
		t.Error("business category should be disabled")
	}
	if !flags.CategoryEnabled(models.CategoryStructure) {
		t.Error("structure category should be enabled")
	}
}

func TestFlagsUpdate(t *testing.T) {
	flags := NewFlags(FlagsConfig{ValidationEnabled: true})

	flags.Update(FlagsConfig{ValidationEnabled: false, DebugEnabled: true})

	if flags.ValidationEnabled() {
		t.Error("update should have disabled validation")
	}
	if !flags.DebugEnabled() {
		t.Error("update should have enabled debug")
	}
}
