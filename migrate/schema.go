package migrate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shipq/polyq/query"
)

// FieldType is a backend-neutral field type tag.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeObject, TypeArray:
		return true
	}
	return false
}

// Field is a declared field of a logical schema.
type Field struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Required bool      `yaml:"required,omitempty"`
}

// Schema is a logical schema: the table or collection name plus its fields,
// in declaration order.
type Schema struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Validate checks that the schema names and field types are usable.
func (s Schema) Validate() error {
	if err := query.ValidateIdentifier(s.Name); err != nil {
		return fmt.Errorf("schema name: %w", err)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if err := query.ValidateIdentifier(f.Name); err != nil {
			return fmt.Errorf("schema %s: field name: %w", s.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %s", s.Name, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			return fmt.Errorf("schema %s: field %s: unknown type %q", s.Name, f.Name, f.Type)
		}
	}
	return nil
}

type schemaFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// ParseSchemas decodes a YAML document of the form
//
//	schemas:
//	  - name: users
//	    fields:
//	      - {name: email, type: string, required: true}
//
// and validates every schema.
func ParseSchemas(data []byte) ([]Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schemas: %w", err)
	}
	for _, s := range f.Schemas {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Schemas, nil
}

// LoadSchemas reads and parses a YAML schema file.
func LoadSchemas(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchemas(data)
}
