package models

import "testing"

func fm(kv map[string]interface{}) map[string]interface{} { return kv }

func TestEqualsFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter MetadataFilter
		fm     map[string]interface{}
		want   bool
	}{
		{"string match", Equals("status", "draft"), fm(map[string]interface{}{"status": "draft"}), true},
		{"string mismatch", Equals("status", "draft"), fm(map[string]interface{}{"status": "final"}), false},
		{"int vs float match", Equals("priority", 3), fm(map[string]interface{}{"priority": 3.0}), true},
		{"bool match", Equals("published", true), fm(map[string]interface{}{"published": true}), true},
		{"missing field", Equals("status", "draft"), fm(map[string]interface{}{}), false},
		{"nil frontmatter", Equals("status", "draft"), nil, false},
		{"null value", Equals("status", "draft"), fm(map[string]interface{}{"status": nil}), false},
		{"list deep equal", Equals("tags", []interface{}{"a", "b"}), fm(map[string]interface{}{"tags": []interface{}{"a", "b"}}), true},
		{"list order matters", Equals("tags", []interface{}{"b", "a"}), fm(map[string]interface{}{"tags": []interface{}{"a", "b"}}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.fm); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter MetadataFilter
		fm     map[string]interface{}
		want   bool
	}{
		{"scalar member", In("status", "draft", "final"), fm(map[string]interface{}{"status": "final"}), true},
		{"scalar non-member", In("status", "draft"), fm(map[string]interface{}{"status": "final"}), false},
		{"list intersection", In("tags", "rust", "go"), fm(map[string]interface{}{"tags": []interface{}{"python", "go"}}), true},
		{"list no intersection", In("tags", "rust"), fm(map[string]interface{}{"tags": []interface{}{"python", "go"}}), false},
		{"numeric coercion", In("priority", 2, 3), fm(map[string]interface{}{"priority": 3.0}), true},
		{"missing field", In("tags", "rust"), fm(map[string]interface{}{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.fm); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter MetadataFilter
		fm     map[string]interface{}
		want   bool
	}{
		{"numeric inside", Range("priority", 1, 5), fm(map[string]interface{}{"priority": 3}), true},
		{"numeric at lower bound", Range("priority", 3, 5), fm(map[string]interface{}{"priority": 3}), true},
		{"numeric at upper bound", Range("priority", 1, 3), fm(map[string]interface{}{"priority": 3}), true},
		{"numeric below", Range("priority", 4, nil), fm(map[string]interface{}{"priority": 3}), false},
		{"numeric above", Range("priority", nil, 2), fm(map[string]interface{}{"priority": 3}), false},
		{"open lower bound", Range("priority", nil, 10), fm(map[string]interface{}{"priority": 3}), true},
		{"string numeric field", Range("priority", 1, 5), fm(map[string]interface{}{"priority": "3"}), true},
		{"lexicographic", Range("date", "2024-01-01", "2024-12-31"), fm(map[string]interface{}{"date": "2024-06-15"}), true},
		{"lexicographic outside", Range("date", "2024-01-01", "2024-12-31"), fm(map[string]interface{}{"date": "2025-01-01"}), false},
		{"missing field", Range("priority", 1, 5), fm(map[string]interface{}{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.fm); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExistsFilter(t *testing.T) {
	f := Exists("tags")
	if !f.Matches(fm(map[string]interface{}{"tags": []interface{}{"a"}})) {
		t.Error("expected present field to match")
	}
	if f.Matches(fm(map[string]interface{}{"tags": nil})) {
		t.Error("expected null field to fail")
	}
	if f.Matches(fm(map[string]interface{}{})) {
		t.Error("expected missing field to fail")
	}
	if f.Matches(nil) {
		t.Error("expected nil frontmatter to fail")
	}
}
