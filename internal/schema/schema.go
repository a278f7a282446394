// Package schema infers a frontmatter schema across the indexed file set and
// merges an optional user-maintained overlay on top of it.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/mdvdb/internal/models"
)

// OverlayFileName is the overlay file looked up in the project root.
const OverlayFileName = ".mdvdb.schema.yml"

const maxSampleValues = 20

// Infer derives a schema from the top-level frontmatter fields of the given
// files. Fields observed with more than one value type collapse to Mixed.
func Infer(frontmatters []map[string]interface{}) *models.Schema {
	type acc struct {
		fieldType models.FieldType
		count     int
		samples   []string
		seen      map[string]struct{}
	}
	fields := make(map[string]*acc)

	for _, fm := range frontmatters {
		for name, value := range fm {
			if value == nil {
				continue
			}
			t := valueType(value)
			a, ok := fields[name]
			if !ok {
				a = &acc{fieldType: t, seen: make(map[string]struct{})}
				fields[name] = a
			} else if a.fieldType != t {
				a.fieldType = models.FieldTypeMixed
			}
			a.count++
			if len(a.samples) < maxSampleValues {
				s := stringify(value)
				if _, dup := a.seen[s]; !dup {
					a.seen[s] = struct{}{}
					a.samples = append(a.samples, s)
				}
			}
		}
	}

	out := &models.Schema{LastUpdated: time.Now().Unix()}
	for name, a := range fields {
		sort.Strings(a.samples)
		out.Fields = append(out.Fields, models.SchemaField{
			Name:            name,
			Type:            a.fieldType,
			OccurrenceCount: a.count,
			SampleValues:    a.samples,
		})
	}
	sort.Slice(out.Fields, func(i, j int) bool {
		return out.Fields[i].Name < out.Fields[j].Name
	})
	return out
}

func valueType(v interface{}) models.FieldType {
	switch x := v.(type) {
	case bool:
		return models.FieldTypeBoolean
	case int, int64, uint64, float32, float64:
		return models.FieldTypeNumber
	case string:
		if isDateString(x) {
			return models.FieldTypeDate
		}
		return models.FieldTypeString
	case time.Time:
		return models.FieldTypeDate
	case []interface{}:
		return models.FieldTypeList
	default:
		return models.FieldTypeString
	}
}

// isDateString reports whether s starts with YYYY-MM-DD and is either
// exactly a date or continues as a datetime with a T separator.
func isDateString(s string) bool {
	if len(s) < 10 {
		return false
	}
	for i, c := range s[:10] {
		switch i {
		case 4, 7:
			if c != '-' {
				return false
			}
		default:
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return len(s) == 10 || s[10] == 'T'
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// OverlayField is a user annotation for one schema field.
type OverlayField struct {
	Description   string   `yaml:"description"`
	Type          string   `yaml:"type"`
	AllowedValues []string `yaml:"allowed_values"`
	Required      bool     `yaml:"required"`
}

// Overlay is the parsed overlay file.
type Overlay struct {
	Fields map[string]OverlayField `yaml:"fields"`
}

// LoadOverlay reads the overlay file from projectRoot. A missing file is not
// an error; it returns (nil, nil).
func LoadOverlay(projectRoot string) (*Overlay, error) {
	path := filepath.Join(projectRoot, OverlayFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read schema overlay: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse schema overlay: %w", err)
	}
	return &o, nil
}

// ParseFieldType converts an overlay type string to a FieldType.
func ParseFieldType(s string) (models.FieldType, bool) {
	switch s {
	case "string":
		return models.FieldTypeString, true
	case "number":
		return models.FieldTypeNumber, true
	case "boolean", "bool":
		return models.FieldTypeBoolean, true
	case "list", "array":
		return models.FieldTypeList, true
	case "date":
		return models.FieldTypeDate, true
	case "mixed":
		return models.FieldTypeMixed, true
	default:
		return "", false
	}
}

// Merge applies overlay annotations to an inferred schema. Overlay fields
// that were never observed in any file are included with a zero occurrence
// count so required-but-missing fields stay visible.
func Merge(inferred *models.Schema, overlay *Overlay) *models.Schema {
	out := &models.Schema{
		Fields:      make([]models.SchemaField, len(inferred.Fields)),
		LastUpdated: inferred.LastUpdated,
	}
	copy(out.Fields, inferred.Fields)

	if overlay == nil {
		return out
	}

	byName := make(map[string]int, len(out.Fields))
	for i, f := range out.Fields {
		byName[f.Name] = i
	}
	for name, of := range overlay.Fields {
		i, ok := byName[name]
		if !ok {
			f := models.SchemaField{Name: name, Type: models.FieldTypeString}
			applyOverlay(&f, of)
			out.Fields = append(out.Fields, f)
			continue
		}
		applyOverlay(&out.Fields[i], of)
	}
	sort.Slice(out.Fields, func(i, j int) bool {
		return out.Fields[i].Name < out.Fields[j].Name
	})
	return out
}

func applyOverlay(f *models.SchemaField, of OverlayField) {
	if of.Description != "" {
		f.Description = of.Description
	}
	if of.Type != "" {
		if t, ok := ParseFieldType(of.Type); ok {
			f.Type = t
		}
	}
	if len(of.AllowedValues) > 0 {
		f.AllowedValues = of.AllowedValues
	}
	if of.Required {
		f.Required = true
	}
}
