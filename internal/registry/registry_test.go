package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/veritas/pkg/models"
)

func testTemplate(id, version string, pt models.PersonaType, active bool) *models.ValidationTemplate {
	return &models.ValidationTemplate{
		ID:          id,
		Name:        "Template " + id,
		Version:     version,
		PersonaType: pt,
		Rules: []models.ValidationRule{
			{ID: "required-name", Category: models.CategoryStructure, Field: "name", Kind: "required", Severity: models.SeverityCritical, Required: true},
		},
		Fallback: models.FallbackStrategy{Type: models.FallbackNone},
		Metadata: models.TemplateMetadata{IsActive: active},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New(Options{})

	tpl := testTemplate("tpl-1", "1.0.0", models.PersonaStandard, true)
	if err := r.Register(tpl); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := r.Get("tpl-1")
	if !ok {
		t.Fatal("expected template to be found")
	}
	if got.ID != tpl.ID || got.Name != tpl.Name || got.Version != tpl.Version {
		t.Errorf("got %s/%s/%s, want %s/%s/%s", got.ID, got.Name, got.Version, tpl.ID, tpl.Name, tpl.Version)
	}
	if len(got.Rules) != 1 || got.Rules[0].ID != "required-name" {
		t.Errorf("rules not preserved: %+v", got.Rules)
	}

	// Defensive copy: mutating the returned template must not affect the store.
	got.Rules[0].ID = "mutated"
	again, _ := r.Get("tpl-1")
	if again.Rules[0].ID != "required-name" {
		t.Error("mutation of returned template leaked into registry")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New(Options{})

	if err := r.Register(testTemplate("tpl-1", "1.0.0", models.PersonaStandard, true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register(testTemplate("tpl-1", "2.0.0", models.PersonaStandard, true))
	if !errors.Is(err, ErrDuplicateTemplate) {
		t.Errorf("expected ErrDuplicateTemplate, got %v", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := New(Options{})

	bad := testTemplate("", "1.0.0", models.PersonaStandard, true)
	if err := r.Register(bad); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("expected ErrInvalidTemplate for empty id, got %v", err)
	}

	noRules := testTemplate("tpl-x", "1.0.0", models.PersonaStandard, true)
	noRules.Rules = nil
	if err := r.Register(noRules); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("expected ErrInvalidTemplate for zero rules, got %v", err)
	}

	// Neither should appear in List.
	if got := len(r.List()); got != 0 {
		t.Errorf("invalid templates leaked into list: %d entries", got)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	r := New(Options{})
	if _, ok := r.Get("nope"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestGetByPersonaTypeVersionOrder(t *testing.T) {
	r := New(Options{})

	for _, v := range []string{"1.0.0", "2.1.0", "1.10.0", "2.0.0"} {
		if err := r.Register(testTemplate("tpl-"+v, v, models.PersonaB2B, true)); err != nil {
			t.Fatalf("register %s: %v", v, err)
		}
	}
	// Inactive template must be excluded.
	if err := r.Register(testTemplate("tpl-inactive", "9.0.0", models.PersonaB2B, false)); err != nil {
		t.Fatalf("register inactive: %v", err)
	}

	got := r.GetByPersonaType(models.PersonaB2B)
	want := []string{"2.1.0", "2.0.0", "1.10.0", "1.0.0"}
	if len(got) != len(want) {
		t.Fatalf("expected %d templates, got %d", len(want), len(got))
	}
	for i, v := range want {
		if got[i].Version != v {
			t.Errorf("position %d: got version %s, want %s", i, got[i].Version, v)
		}
	}

	latest := r.GetLatestByPersonaType(models.PersonaB2B)
	if latest == nil || latest.Version != "2.1.0" {
		t.Errorf("latest = %+v, want version 2.1.0", latest)
	}
}

func TestGetLatestEmptyPersona(t *testing.T) {
	r := New(Options{})
	if latest := r.GetLatestByPersonaType(models.PersonaSimple); latest != nil {
		t.Errorf("expected nil for empty persona type, got %+v", latest)
	}
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	r := New(Options{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	if err := r.Register(testTemplate("tpl-1", "1.0.0", models.PersonaStandard, true)); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.now = func() time.Time { return base.Add(time.Hour) }
	updated := testTemplate("tpl-1", "1.1.0", models.PersonaStandard, true)
	if err := r.Update(updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := r.Get("tpl-1")
	if !got.Metadata.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt changed: %v", got.Metadata.CreatedAt)
	}
	if !got.Metadata.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("UpdatedAt not bumped: %v", got.Metadata.UpdatedAt)
	}
	if got.Version != "1.1.0" {
		t.Errorf("version not updated: %s", got.Version)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	r := New(Options{})

	if err := r.Register(testTemplate("tpl-1", "1.0.0", models.PersonaStandard, true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Populate the cache.
	if _, ok := r.Get("tpl-1"); !ok {
		t.Fatal("expected hit")
	}

	if err := r.Update(testTemplate("tpl-1", "2.0.0", models.PersonaStandard, true)); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := r.Get("tpl-1")
	if got.Version != "2.0.0" {
		t.Errorf("cache served stale version %s", got.Version)
	}
}

func TestDelete(t *testing.T) {
	r := New(Options{})

	if err := r.Register(testTemplate("tpl-1", "1.0.0", models.PersonaStandard, true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Delete("tpl-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok := r.Get("tpl-1"); ok {
		t.Error("deleted template still retrievable")
	}
	if got := r.GetByPersonaType(models.PersonaStandard); len(got) != 0 {
		t.Errorf("deleted template still indexed: %d entries", len(got))
	}
	if err := r.Delete("tpl-1"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("second delete should be ErrTemplateNotFound, got %v", err)
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := newTemplateCache(2, 0)

	c.put("a", testTemplate("a", "1.0.0", models.PersonaStandard, true))
	c.put("b", testTemplate("b", "1.0.0", models.PersonaStandard, true))

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.put("c", testTemplate("c", "1.0.0", models.PersonaStandard, true))

	if _, ok := c.get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Error("a should survive eviction")
	}
	if c.len() != 2 {
		t.Errorf("cache size = %d, want 2", c.len())
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newTemplateCache(10, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.put("a", testTemplate("a", "1.0.0", models.PersonaStandard, true))

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	if _, ok := c.get("a"); !ok {
		t.Error("entry should still be fresh at 30s")
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.get("a"); ok {
		t.Error("entry should have expired at 2m")
	}
}
