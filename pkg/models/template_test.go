package models

import (
	"testing"
	"time"
)

func validTemplate() *ValidationTemplate {
	return &ValidationTemplate{
		ID:          "tpl-standard-v1",
		Name:        "Standard Persona",
		Version:     "1.2.3",
		PersonaType: PersonaStandard,
		Rules: []ValidationRule{
			{ID: "required-name", Category: CategoryStructure, Field: "name", Kind: "required", Severity: SeverityCritical, Required: true},
		},
		Fallback: FallbackStrategy{Type: FallbackRegenerate, MaxRetries: 2, RetryDelay: time.Second},
		Metadata: TemplateMetadata{IsActive: true},
	}
}

func TestTemplateValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ValidationTemplate)
		wantErr bool
	}{
		{"valid", func(tpl *ValidationTemplate) {}, false},
		{"empty id", func(tpl *ValidationTemplate) { tpl.ID = "  " }, true},
		{"empty name", func(tpl *ValidationTemplate) { tpl.Name = "" }, true},
		{"no rules", func(tpl *ValidationTemplate) { tpl.Rules = nil }, true},
		{"bad version", func(tpl *ValidationTemplate) { tpl.Version = "1.2" }, true},
		{"pre-release version", func(tpl *ValidationTemplate) { tpl.Version = "1.2.3-pre" }, false},
		{"bad persona", func(tpl *ValidationTemplate) { tpl.PersonaType = "enterprise" }, true},
		{"duplicate rule id", func(tpl *ValidationTemplate) {
			tpl.Rules = append(tpl.Rules, tpl.Rules[0])
		}, true},
		{"bad category", func(tpl *ValidationTemplate) { tpl.Rules[0].Category = "cosmetic" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := validTemplate()
			tt.mutate(tpl)
			err := tpl.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"2.0.0", "1.9.9", 1},
		{"1.2.3", "1.10.0", -1},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0-pre", "1.0.0", -1},
		{"1.0.0", "1.0.0-pre", 1},
		{"1.0.0-pre", "1.0.0-pre", 0},
	}

	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTemplateClone(t *testing.T) {
	tpl := validTemplate()
	clone := tpl.Clone()

	clone.Rules[0].ID = "mutated"
	clone.Rules[0].Dependencies = append(clone.Rules[0].Dependencies, "other")

	if tpl.Rules[0].ID != "required-name" {
		t.Errorf("clone mutation leaked into original rule id: %s", tpl.Rules[0].ID)
	}
	if len(tpl.Rules[0].Dependencies) != 0 {
		t.Errorf("clone mutation leaked into original dependencies: %v", tpl.Rules[0].Dependencies)
	}
}

func TestPersonaEscalationChain(t *testing.T) {
	if next := PersonaB2B.NextSimpler(); next != PersonaStandard {
		t.Errorf("b2b should step to standard, got %s", next)
	}
	if next := PersonaStandard.NextSimpler(); next != PersonaSimple {
		t.Errorf("standard should step to simple, got %s", next)
	}
	if !PersonaSimple.Simplest() {
		t.Error("simple should be the simplest tier")
	}
}
