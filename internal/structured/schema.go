package structured

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

// Type is a JSON value type.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
)

// Field describes one property. Properties keep their declaration order so
// validation errors come out in a stable order.
type Field struct {
	Name        string   `yaml:"name"`
	Type        Type     `yaml:"type"`
	Required    bool     `yaml:"required"`
	Description string   `yaml:"description,omitempty"`
	Enum        []string `yaml:"enum,omitempty"`
	Min         *float64 `yaml:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty"`
	Items       *Field   `yaml:"items,omitempty"`
	Properties  []Field  `yaml:"properties,omitempty"`
}

// Schema is a named, versioned object schema.
type Schema struct {
	Name        string  `yaml:"name"`
	Version     string  `yaml:"version"`
	Description string  `yaml:"description,omitempty"`
	Properties  []Field `yaml:"properties"`
}

// Built-in schema names.
const (
	SchemaAnalysis = "analysis"
	SchemaStrategy = "strategy"
)

var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[string]*Schema{}
)

// Load returns an embedded schema by name.
func Load(name string) (*Schema, error) {
	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()
	if s, ok := schemaCache[name]; ok {
		return s, nil
	}
	data, err := schemaFS.ReadFile("schemas/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}
	schemaCache[name] = s
	return s, nil
}

// MustLoad is Load for package-level initialisation of embedded schemas.
func MustLoad(name string) *Schema {
	s, err := Load(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse decodes and checks a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if strings.TrimSpace(s.Name) == "" {
		return nil, errors.New("schema name is required")
	}
	if strings.TrimSpace(s.Version) == "" {
		return nil, errors.New("schema version is required")
	}
	if len(s.Properties) == 0 {
		return nil, errors.New("schema has no properties")
	}
	if err := checkFields("", s.Properties); err != nil {
		return nil, err
	}
	return &s, nil
}

func checkFields(prefix string, fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		path := joinPath(prefix, f.Name)
		if f.Name == "" {
			return fmt.Errorf("%s: property without name", orRoot(prefix))
		}
		if seen[f.Name] {
			return fmt.Errorf("%s: duplicate property", path)
		}
		seen[f.Name] = true
		if err := checkField(path, f); err != nil {
			return err
		}
	}
	return nil
}

func checkField(path string, f *Field) error {
	switch f.Type {
	case TypeObject:
		return checkFields(path, f.Properties)
	case TypeArray:
		if f.Items == nil {
			return fmt.Errorf("%s: array without items", path)
		}
		return checkField(path+"[]", f.Items)
	case TypeString, TypeNumber, TypeInteger, TypeBoolean:
	default:
		return fmt.Errorf("%s: unknown type %q", path, f.Type)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("%s: min greater than max", path)
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func orRoot(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
