package repair

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ShayCichocki/veritas/pkg/models"
)

func TestRepairJSONStructureTrailingCommas(t *testing.T) {
	e := New(Options{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object", `{"a": 1,}`, `{"a": 1}`},
		{"array", `{"a": [1, 2,]}`, `{"a": [1, 2]}`},
		{"nested", `{"a": {"b": 2,},}`, `{"a": {"b": 2}}`},
		{"with whitespace", "{\"a\": 1,\n}", "{\"a\": 1\n}"},
		{"comma inside string untouched", `{"a": "x,}"}`, `{"a": "x,}"}`},
		{"already valid", `{"a": 1}`, `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.RepairJSONStructure(tt.in)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			var v interface{}
			if err := json.Unmarshal([]byte(got), &v); err != nil {
				t.Errorf("repaired output does not parse: %v", err)
			}
		})
	}
}

func TestRepairJSONStructureUnquotedKeys(t *testing.T) {
	e := New(Options{})

	got := e.RepairJSONStructure(`{name: "Ada", profile: {age: 30,}}`)
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(got), &record); err != nil {
		t.Fatalf("repaired output does not parse: %v\n%s", err, got)
	}
	if record["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", record["name"])
	}
	profile, ok := record["profile"].(map[string]interface{})
	if !ok || profile["age"] != 30.0 {
		t.Errorf("profile = %v, want nested age 30", record["profile"])
	}
}

func TestDetectIssues(t *testing.T) {
	e := New(Options{})

	if issues := e.DetectIssues(`{"a": 1}`); len(issues) != 0 {
		t.Errorf("valid object should have no issues, got %+v", issues)
	}

	issues := e.DetectIssues(`{a: 1,}`)
	if len(issues) != 1 || !issues[0].AutoFixable {
		t.Errorf("repairable syntax should be flagged auto-fixable, got %+v", issues)
	}

	issues = e.DetectIssues(`this is prose, not json`)
	if len(issues) != 1 || issues[0].AutoFixable {
		t.Errorf("prose should be flagged unfixable, got %+v", issues)
	}

	issues = e.DetectIssues(`[1, 2, 3]`)
	if len(issues) != 1 || issues[0].AutoFixable {
		t.Errorf("non-object JSON should be flagged unfixable, got %+v", issues)
	}
}

func TestFillMissingFieldsNeverOverwrites(t *testing.T) {
	e := New(Options{})
	vctx := &models.Context{
		Cultural: models.CulturalSignals{Region: "JP", Language: "ja"},
	}

	partial := map[string]interface{}{"name": "Kenji", "region": "US"}
	got := e.FillMissingFields(partial, vctx)

	if got["name"] != "Kenji" {
		t.Errorf("present name overwritten: %v", got["name"])
	}
	if got["region"] != "US" {
		t.Errorf("present region overwritten: %v", got["region"])
	}
	if got["language"] != "ja" {
		t.Errorf("missing language not filled: %v", got["language"])
	}
	if _, ok := got["tags"].([]interface{}); !ok {
		t.Errorf("skeleton tags not filled: %v", got["tags"])
	}
}

func TestFillMissingFieldsMergesNested(t *testing.T) {
	e := New(Options{Skeleton: func(_ *models.Context) map[string]interface{} {
		return map[string]interface{}{
			"contact": map[string]interface{}{"email": "", "phone": ""},
		}
	}})

	partial := map[string]interface{}{
		"contact": map[string]interface{}{"email": "a@b.example"},
	}
	got := e.FillMissingFields(partial, nil)

	contact := got["contact"].(map[string]interface{})
	if contact["email"] != "a@b.example" {
		t.Errorf("present nested field overwritten: %v", contact["email"])
	}
	if contact["phone"] != "" {
		t.Errorf("missing nested field not filled: %v", contact["phone"])
	}
}

func TestNormalizeFieldTypes(t *testing.T) {
	e := New(Options{NumericFields: []string{"age"}, ListFields: []string{"tags"}})

	record := map[string]interface{}{
		"age":  " 42 ",
		"tags": "solo",
		"name": "unchanged",
		"profile": map[string]interface{}{
			"age":  "17",
			"tags": []interface{}{"kept"},
		},
	}
	got := e.NormalizeFieldTypes(record)

	if got["age"] != 42.0 {
		t.Errorf("age = %v (%T), want 42", got["age"], got["age"])
	}
	if tags, ok := got["tags"].([]interface{}); !ok || len(tags) != 0 {
		t.Errorf("scalar tags should become empty list, got %v", got["tags"])
	}
	if got["name"] != "unchanged" {
		t.Errorf("unknown field mutated: %v", got["name"])
	}

	profile := got["profile"].(map[string]interface{})
	if profile["age"] != 17.0 {
		t.Errorf("nested age = %v, want 17", profile["age"])
	}
	if !reflect.DeepEqual(profile["tags"], []interface{}{"kept"}) {
		t.Errorf("existing list replaced: %v", profile["tags"])
	}
}

func TestNormalizeFieldTypesLeavesNonNumericStrings(t *testing.T) {
	e := New(Options{NumericFields: []string{"age"}})
	got := e.NormalizeFieldTypes(map[string]interface{}{"age": "unknown"})
	if got["age"] != "unknown" {
		t.Errorf("non-numeric string coerced: %v", got["age"])
	}
}

func TestRepairRaw(t *testing.T) {
	e := New(Options{NumericFields: []string{"age"}, ListFields: []string{"tags"}})
	vctx := &models.Context{Cultural: models.CulturalSignals{Region: "DE"}}

	record, ok := e.RepairRaw(`{name: "Greta", age: "29",}`, vctx)
	if !ok {
		t.Fatal("expected recoverable output")
	}
	if record["name"] != "Greta" || record["age"] != 29.0 {
		t.Errorf("record = %+v", record)
	}
	if record["region"] != "DE" {
		t.Errorf("skeleton region not filled: %v", record["region"])
	}

	if _, ok := e.RepairRaw(`not even close`, vctx); ok {
		t.Error("prose should not be recoverable")
	}
}

func TestRepairJSONStructureKeepsKeyLikeStrings(t *testing.T) {
	e := New(Options{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"key-like value untouched", `{"note": "a, b: c"}`, `{"note": "a, b: c"}`},
		{"bare key beside key-like value", `{a: 1, "note": "x, y: z"}`, `{"a": 1, "note": "x, y: z"}`},
		{"escaped quote in value", `{"note": "said \", x: 1"}`, `{"note": "said \", x: 1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.RepairJSONStructure(tt.in)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			var v interface{}
			if err := json.Unmarshal([]byte(got), &v); err != nil {
				t.Errorf("repaired output does not parse: %v", err)
			}
		})
	}
}
