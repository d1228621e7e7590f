package registry

import (
	"os"
	"path/filepath"
	"testing"
)

const templateYAML = `
id: tpl-standard-v1
name: Standard Persona
version: 1.0.0
persona_type: standard
rules:
  - id: required-name
    category: structure
    field: name
    kind: required
    severity: critical
    required: true
  - id: format-email
    category: format
    field: contact.email
    kind: pattern
    params:
      pattern: "^[^@]+@[^@]+$"
    severity: medium
    required: false
fallback:
  type: default_response
metadata:
  is_active: true
`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "standard.yaml"), []byte(templateYAML), 0644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	// Non-YAML and malformed files must not block loading.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("write txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [unclosed"), 0644); err != nil {
		t.Fatalf("write broken: %v", err)
	}

	r := New(Options{})
	loader := NewLoader(r, dir, nil)
	if err := loader.LoadDir(); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	got, ok := r.Get("tpl-standard-v1")
	if !ok {
		t.Fatal("expected template loaded from yaml")
	}
	if len(got.Rules) != 2 {
		t.Errorf("expected 2 rules, got %d", len(got.Rules))
	}
	if got.Rules[1].Params.Pattern == "" {
		t.Error("rule params not parsed")
	}
	if got.Fallback.Type != "default_response" {
		t.Errorf("fallback type = %s", got.Fallback.Type)
	}
}

func TestLoadFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standard.yaml")
	if err := os.WriteFile(path, []byte(templateYAML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := New(Options{})
	loader := NewLoader(r, dir, nil)
	if err := loader.loadFile(path); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// Re-loading the same file must update, not fail with a duplicate.
	if err := loader.loadFile(path); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if got := len(r.List()); got != 1 {
		t.Errorf("expected 1 template after reload, got %d", got)
	}
}
