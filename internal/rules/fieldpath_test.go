package rules

import "testing"

func TestLookupField(t *testing.T) {
	record := map[string]interface{}{
		"name": "Kenji Watanabe",
		"contact": map[string]interface{}{
			"emails": []interface{}{
				map[string]interface{}{"address": "kenji@example.jp"},
				map[string]interface{}{"address": "kw@example.jp"},
			},
		},
		"tags":   []interface{}{"b2b", "enterprise"},
		"matrix": []interface{}{[]interface{}{1.0, 2.0}},
	}

	tests := []struct {
		name  string
		path  string
		want  interface{}
		found bool
	}{
		{"top level", "name", "Kenji Watanabe", true},
		{"nested map", "contact.emails[1].address", "kw@example.jp", true},
		{"list index", "tags[0]", "b2b", true},
		{"chained indices", "matrix[0][1]", 2.0, true},
		{"missing key", "nickname", nil, false},
		{"missing nested", "contact.phone", nil, false},
		{"index out of bounds", "tags[5]", nil, false},
		{"negative index", "tags[-1]", nil, false},
		{"index into scalar", "name[0]", nil, false},
		{"key into list", "tags.first", nil, false},
		{"malformed bracket", "tags[x]", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := LookupField(record, tt.path)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if found && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLookupFieldEmptyPath(t *testing.T) {
	record := map[string]interface{}{"a": 1}
	got, found := LookupField(record, "")
	if !found {
		t.Fatal("empty path on a non-nil record should resolve to the record")
	}
	if _, ok := got.(map[string]interface{}); !ok {
		t.Errorf("got %T, want the record itself", got)
	}

	if _, found := LookupField(nil, ""); found {
		t.Error("empty path on a nil record should not resolve")
	}
}
