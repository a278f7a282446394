package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/mdvdb/internal/models"
)

func TestInferTypes(t *testing.T) {
	s := Infer([]map[string]interface{}{
		{"title": "First", "draft": true, "priority": 3, "tags": []interface{}{"a"}, "date": "2024-01-15"},
		{"title": "Second", "draft": false, "priority": 1.5, "date": "2024-02-01T10:30:00"},
	})

	want := map[string]models.FieldType{
		"title":    models.FieldTypeString,
		"draft":    models.FieldTypeBoolean,
		"priority": models.FieldTypeNumber,
		"tags":     models.FieldTypeList,
		"date":     models.FieldTypeDate,
	}
	if len(s.Fields) != len(want) {
		t.Fatalf("fields = %+v", s.Fields)
	}
	for _, f := range s.Fields {
		if f.Type != want[f.Name] {
			t.Errorf("%s: type = %s, want %s", f.Name, f.Type, want[f.Name])
		}
	}
}

func TestInferMixedAndCounts(t *testing.T) {
	s := Infer([]map[string]interface{}{
		{"status": "open"},
		{"status": 2},
		{"status": "closed"},
		{"other": nil},
	})
	if len(s.Fields) != 1 {
		t.Fatalf("fields = %+v (nil values must not register a field)", s.Fields)
	}
	f := s.Fields[0]
	if f.Name != "status" || f.Type != models.FieldTypeMixed || f.OccurrenceCount != 3 {
		t.Errorf("field = %+v", f)
	}
}

func TestInferSampleCap(t *testing.T) {
	fms := make([]map[string]interface{}, 30)
	for i := range fms {
		fms[i] = map[string]interface{}{"n": i}
	}
	s := Infer(fms)
	if got := len(s.Fields[0].SampleValues); got != 20 {
		t.Errorf("samples = %d, want 20", got)
	}
	if s.Fields[0].OccurrenceCount != 30 {
		t.Errorf("occurrences = %d", s.Fields[0].OccurrenceCount)
	}
}

func TestInferSortedFields(t *testing.T) {
	s := Infer([]map[string]interface{}{{"zebra": 1, "alpha": 1, "mid": 1}})
	var names []string
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "mid", "zebra"}) {
		t.Errorf("names = %v", names)
	}
}

func TestIsDateString(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2024-01-15", true},
		{"2024-01-15T10:30:00", true},
		{"2024-01", false},
		{"not-a-date", false},
		{"2024-01-15x", false},
		{"20240115", false},
	}
	for _, tt := range tests {
		if got := isDateString(tt.in); got != tt.want {
			t.Errorf("isDateString(%q) = %v", tt.in, got)
		}
	}
}

func TestParseFieldType(t *testing.T) {
	for in, want := range map[string]models.FieldType{
		"string": models.FieldTypeString,
		"bool":   models.FieldTypeBoolean,
		"array":  models.FieldTypeList,
		"date":   models.FieldTypeDate,
	} {
		got, ok := ParseFieldType(in)
		if !ok || got != want {
			t.Errorf("ParseFieldType(%q) = %s, %v", in, got, ok)
		}
	}
	if _, ok := ParseFieldType("tuple"); ok {
		t.Error("unknown type accepted")
	}
}

func TestLoadOverlayMissing(t *testing.T) {
	o, err := LoadOverlay(t.TempDir())
	if err != nil || o != nil {
		t.Errorf("LoadOverlay = %+v, %v", o, err)
	}
}

func TestMergeOverlay(t *testing.T) {
	dir := t.TempDir()
	overlayYAML := `fields:
  status:
    description: Workflow state
    type: string
    allowed_values: [open, closed]
    required: true
  reviewer:
    description: Assigned reviewer
    required: true
`
	if err := os.WriteFile(filepath.Join(dir, OverlayFileName), []byte(overlayYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	overlay, err := LoadOverlay(dir)
	if err != nil {
		t.Fatal(err)
	}

	inferred := Infer([]map[string]interface{}{
		{"status": "open"},
		{"status": 1},
	})
	merged := Merge(inferred, overlay)

	if len(merged.Fields) != 2 {
		t.Fatalf("fields = %+v", merged.Fields)
	}
	reviewer, status := merged.Fields[0], merged.Fields[1]
	if reviewer.Name != "reviewer" || !reviewer.Required || reviewer.OccurrenceCount != 0 {
		t.Errorf("overlay-only field = %+v", reviewer)
	}
	if status.Type != models.FieldTypeString {
		t.Errorf("type override not applied: %+v", status)
	}
	if status.Description != "Workflow state" || !reflect.DeepEqual(status.AllowedValues, []string{"open", "closed"}) {
		t.Errorf("annotations = %+v", status)
	}
}

func TestMergeNilOverlay(t *testing.T) {
	inferred := Infer([]map[string]interface{}{{"a": 1}})
	merged := Merge(inferred, nil)
	if !reflect.DeepEqual(merged.Fields, inferred.Fields) {
		t.Errorf("merged = %+v", merged.Fields)
	}
}
