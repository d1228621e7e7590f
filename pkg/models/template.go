package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// versionPattern matches the required template version format.
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-pre)?$`)

// TemplateMetadata carries bookkeeping about a template's lifecycle.
type TemplateMetadata struct {
	// CreatedAt is when the template was first registered.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	// UpdatedAt is bumped on every update.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	// Author names who wrote the template.
	Author string `json:"author,omitempty" yaml:"author,omitempty"`
	// Tags are free-form labels for discovery.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	// IsActive controls whether persona-type lookups return this template.
	IsActive bool `json:"is_active" yaml:"is_active"`
}

// ValidationTemplate is a versioned, persona-type-scoped bundle of rules plus
// a fallback policy.
type ValidationTemplate struct {
	// ID is the unique template identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable template name.
	Name string `json:"name" yaml:"name"`
	// Version is the semver string, e.g. "2.1.0" or "2.1.0-pre".
	Version string `json:"version" yaml:"version"`
	// PersonaType is the tier this template validates.
	PersonaType PersonaType `json:"persona_type" yaml:"persona_type"`
	// Rules is the ordered rule set; at least one is required.
	Rules []ValidationRule `json:"rules" yaml:"rules"`
	// Fallback is the recovery policy used when this template's checks fail.
	Fallback FallbackStrategy `json:"fallback" yaml:"fallback"`
	// Metadata is lifecycle bookkeeping.
	Metadata TemplateMetadata `json:"metadata" yaml:"metadata"`
}

// Validate checks the structural invariants a template must satisfy before
// it can be registered.
func (t *ValidationTemplate) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("template id must not be empty")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template %s: name must not be empty", t.ID)
	}
	if !versionPattern.MatchString(t.Version) {
		return fmt.Errorf("template %s: version %q does not match MAJOR.MINOR.PATCH[-pre]", t.ID, t.Version)
	}
	if !t.PersonaType.Valid() {
		return fmt.Errorf("template %s: unknown persona type %q", t.ID, t.PersonaType)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("template %s: at least one rule is required", t.ID)
	}
	seen := make(map[string]bool, len(t.Rules))
	for _, r := range t.Rules {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("template %s: rule with empty id", t.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("template %s: duplicate rule id %s", t.ID, r.ID)
		}
		seen[r.ID] = true
		if !r.Category.Valid() {
			return fmt.Errorf("template %s: rule %s: unknown category %q", t.ID, r.ID, r.Category)
		}
		if !r.Severity.Valid() {
			return fmt.Errorf("template %s: rule %s: unknown severity %q", t.ID, r.ID, r.Severity)
		}
	}
	if t.Fallback.Type != "" && !t.Fallback.Valid() {
		return fmt.Errorf("template %s: unknown fallback type %q", t.ID, t.Fallback.Type)
	}
	return nil
}

// Valid reports whether the fallback strategy type is usable.
func (f FallbackStrategy) Valid() bool {
	return f.Type.Valid()
}

// Clone returns a deep copy safe to hand to callers.
func (t *ValidationTemplate) Clone() *ValidationTemplate {
	out := *t
	out.Rules = make([]ValidationRule, len(t.Rules))
	for i, r := range t.Rules {
		out.Rules[i] = r.Clone()
	}
	if t.Metadata.Tags != nil {
		out.Metadata.Tags = append([]string(nil), t.Metadata.Tags...)
	}
	return &out
}

// CompareVersions compares two semver strings numerically by major, minor,
// patch. A "-pre" suffix sorts below the same release version. Returns
// -1, 0, or 1.
func CompareVersions(a, b string) int {
	aBase, aPre := strings.CutSuffix(a, "-pre")
	bBase, bPre := strings.CutSuffix(b, "-pre")

	ap := splitVersion(aBase)
	bp := splitVersion(bBase)
	for i := 0; i < 3; i++ {
		if ap[i] != bp[i] {
			if ap[i] < bp[i] {
				return -1
			}
			return 1
		}
	}
	if aPre == bPre {
		return 0
	}
	if aPre {
		return -1
	}
	return 1
}

// splitVersion parses "MAJOR.MINOR.PATCH" into three ints; malformed parts
// become zero so comparison still terminates.
func splitVersion(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(v, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err == nil {
			out[i] = n
		}
	}
	return out
}
