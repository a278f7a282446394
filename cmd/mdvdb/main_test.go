package main

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/mdvdb/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"postgres tuning", "-limit", "5"},
			expected: []string{"-limit", "5", "postgres tuning"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "postgres tuning"},
			expected: []string{"-limit", "5", "postgres tuning"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"postgres tuning"},
			expected: []string{"postgres tuning"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-mode", "lexical"},
			expected: []string{"-mode", "lexical", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"postgres"}, "postgres"},
		{"multiple words", []string{"postgres", "tuning"}, "postgres tuning"},
		{"single quoted phrase", []string{"postgres tuning"}, "postgres tuning"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestFilterListCollectsRepeatedFlags(t *testing.T) {
	var filters filterList
	for _, arg := range []string{"status=open", "priority=1..5", "tags"} {
		if err := filters.Set(arg); err != nil {
			t.Fatalf("Set(%q): %v", arg, err)
		}
	}
	if len(filters) != 3 {
		t.Fatalf("len = %d, want 3", len(filters))
	}
	if filters[0].Op != models.FilterEquals || filters[0].Field != "status" {
		t.Errorf("filters[0] = %+v", filters[0])
	}
	if filters[1].Op != models.FilterRange {
		t.Errorf("filters[1] = %+v", filters[1])
	}
	if filters[2].Op != models.FilterExists {
		t.Errorf("filters[2] = %+v", filters[2])
	}
	if err := filters.Set("=bad"); err == nil {
		t.Fatal("expected error for empty field")
	}
}

func TestRelToRoot(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"absolute inside root", filepath.Join(root, "notes", "a.md"), "notes/a.md", false},
		{"root itself", root, ".", false},
		{"outside root", filepath.Join(filepath.Dir(root), "elsewhere.md"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := relToRoot(root, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("relToRoot() = %q, want %q", got, tt.want)
			}
		})
	}
}
