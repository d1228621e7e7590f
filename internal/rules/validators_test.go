package rules

import (
	"context"
	"testing"

	"github.com/ShayCichocki/veritas/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }

func input(r models.ValidationRule, value interface{}, present bool) Input {
	return Input{Rule: r, Value: value, Present: present, Record: map[string]interface{}{}}
}

func TestValidateType(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		value  interface{}
		passed bool
	}{
		{"string ok", "string", "hello", true},
		{"string wrong", "string", 42, false},
		{"number float", "number", 3.14, true},
		{"number int", "number", 7, true},
		{"number wrong", "number", "seven", false},
		{"boolean ok", "boolean", true, true},
		{"list ok", "list", []interface{}{1}, true},
		{"object ok", "object", map[string]interface{}{}, true},
		{"unknown declared type", "decimal", 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.ValidationRule{ID: "t", Field: "f", Kind: "type", Required: true, Params: models.RuleParams{Type: tt.want}}
			out := validateType(context.Background(), input(r, tt.value, true))
			if out.Passed != tt.passed {
				t.Errorf("passed = %v, want %v", out.Passed, tt.passed)
			}
			if !tt.passed && out.Error != nil && out.Error.Type != models.ErrTypeMismatch {
				t.Errorf("error type = %s, want TYPE_MISMATCH", out.Error.Type)
			}
		})
	}
}

func TestValidateTypeAbsentFieldPasses(t *testing.T) {
	r := models.ValidationRule{ID: "t", Field: "f", Kind: "type", Required: true, Params: models.RuleParams{Type: "string"}}
	out := validateType(context.Background(), input(r, nil, false))
	if !out.Passed {
		t.Error("absent field should pass the type check")
	}
}

func TestValidateRange(t *testing.T) {
	r := models.ValidationRule{
		ID: "age", Field: "age", Kind: "range", Required: true,
		Params: models.RuleParams{Min: floatPtr(18), Max: floatPtr(99)},
	}

	if out := validateRange(context.Background(), input(r, 42.0, true)); !out.Passed {
		t.Error("42 should be within [18, 99]")
	}
	out := validateRange(context.Background(), input(r, 12.0, true))
	if out.Passed || out.Error == nil || out.Error.Type != models.ErrValueOutOfRange {
		t.Errorf("12 should fail with VALUE_OUT_OF_RANGE, got %+v", out)
	}
	out = validateRange(context.Background(), input(r, 150, true))
	if out.Passed {
		t.Error("150 should be above maximum")
	}
	out = validateRange(context.Background(), input(r, "old", true))
	if out.Passed || out.Error == nil || out.Error.Type != models.ErrTypeMismatch {
		t.Errorf("non-numeric value should fail with TYPE_MISMATCH, got %+v", out)
	}
}

func TestValidateLength(t *testing.T) {
	r := models.ValidationRule{
		ID: "bio", Field: "bio", Kind: "length", Required: true,
		Params: models.RuleParams{MinLength: 3, MaxLength: 10},
	}

	if out := validateLength(context.Background(), input(r, "hello", true)); !out.Passed {
		t.Error("length 5 should pass")
	}
	if out := validateLength(context.Background(), input(r, "hi", true)); out.Passed {
		t.Error("length 2 should fail minimum")
	}
	if out := validateLength(context.Background(), input(r, "hello world!", true)); out.Passed {
		t.Error("length 12 should fail maximum")
	}
	// Length counts runes, not bytes.
	if out := validateLength(context.Background(), input(r, "渡辺健二", true)); !out.Passed {
		t.Error("4 runes should pass")
	}
	if out := validateLength(context.Background(), input(r, []interface{}{1, 2, 3}, true)); !out.Passed {
		t.Error("list of 3 should pass")
	}
}

func TestValidatePattern(t *testing.T) {
	r := models.ValidationRule{
		ID: "email", Field: "email", Kind: "pattern", Required: true,
		Params: models.RuleParams{Pattern: `^[^@\s]+@[^@\s]+$`},
	}

	if out := validatePattern(context.Background(), input(r, "a@b.example", true)); !out.Passed {
		t.Error("valid email should pass")
	}
	out := validatePattern(context.Background(), input(r, "not-an-email", true))
	if out.Passed || out.Error == nil || out.Error.Type != models.ErrFormatInvalid {
		t.Errorf("invalid email should fail with FORMAT_INVALID, got %+v", out)
	}

	r.Params.Pattern = "(["
	if out := validatePattern(context.Background(), input(r, "anything", true)); out.Passed {
		t.Error("broken pattern should fail the rule, not panic")
	}
}

func TestValidateEnum(t *testing.T) {
	r := models.ValidationRule{
		ID: "tier", Field: "tier", Kind: "enum", Required: true,
		Params: models.RuleParams{Allowed: []string{"b2b", "standard", "simple"}},
	}

	if out := validateEnum(context.Background(), input(r, "standard", true)); !out.Passed {
		t.Error("listed value should pass")
	}
	if out := validateEnum(context.Background(), input(r, "premium", true)); out.Passed {
		t.Error("unlisted value should fail")
	}
}

func TestValidateCultural(t *testing.T) {
	vctx := &models.Context{
		Cultural: models.CulturalSignals{Region: "JP", NameOrder: "family_first"},
	}
	r := models.ValidationRule{
		ID: "region-match", Field: "region", Kind: "cultural", Required: true,
		Params: models.RuleParams{Signal: "region"},
	}

	in := input(r, "JP", true)
	in.Context = vctx
	if out := validateCultural(context.Background(), in); !out.Passed {
		t.Error("matching region should pass")
	}

	in = input(r, "US", true)
	in.Context = vctx
	out := validateCultural(context.Background(), in)
	if out.Passed || out.Error == nil || out.Error.Type != models.ErrCulturalDataInconsistent {
		t.Errorf("mismatched region should fail with CULTURAL_DATA_INCONSISTENT, got %+v", out)
	}

	// Unresolved signal: nothing to contradict.
	r.Params.Signal = "language"
	in = input(r, "fr", true)
	in.Context = vctx
	if out := validateCultural(context.Background(), in); !out.Passed {
		t.Error("empty resolved signal should pass")
	}

	if out := validateCultural(context.Background(), input(r, "fr", true)); !out.Passed {
		t.Error("nil context should pass")
	}
}

func TestBusinessValidator(t *testing.T) {
	p := NewProcessor(ProcessorOptions{})
	p.RegisterBusinessCheck("title-requires-company", func(record map[string]interface{}, _ *models.Context) (bool, string) {
		if _, hasTitle := record["job_title"]; !hasTitle {
			return true, ""
		}
		if _, hasCompany := record["company"]; !hasCompany {
			return false, "job_title set without company"
		}
		return true, ""
	})

	ruleSet := []models.ValidationRule{{
		ID: "biz", Category: models.CategoryBusiness, Field: "job_title", Kind: "business",
		Severity: models.SeverityHigh, Required: true,
		Params: models.RuleParams{Expression: "title-requires-company"},
	}}

	result := p.Process(context.Background(), map[string]interface{}{"job_title": "CTO"}, ruleSet, nil)
	if result.IsValid {
		t.Fatal("expected business rule violation")
	}
	if result.Errors[0].Type != models.ErrBusinessRuleViolation {
		t.Errorf("error type = %s, want BUSINESS_RULE_VIOLATION", result.Errors[0].Type)
	}

	result = p.Process(context.Background(), map[string]interface{}{"job_title": "CTO", "company": "Acme"}, ruleSet, nil)
	if !result.IsValid {
		t.Errorf("expected pass, got %+v", result.Errors)
	}
}

func TestFailHonorsExplicitErrorType(t *testing.T) {
	r := models.ValidationRule{
		ID: "custom", Field: "f", Kind: "required", Required: true,
		ErrorType: models.ErrBusinessRuleViolation,
	}
	out := validateRequired(context.Background(), input(r, nil, false))
	if out.Error == nil || out.Error.Type != models.ErrBusinessRuleViolation {
		t.Errorf("explicit error type should win, got %+v", out.Error)
	}
}
