// Package schema defines the declarative shape descriptors attached to tool
// inputs and outputs, and the validation of untyped payloads against them.
package schema

import (
	"fmt"
	"strings"
)

// Type is a v1 schema type literal.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeFloat   Type = "float"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeAny     Type = "any"
)

var validTypes = map[Type]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeFloat:   {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
	TypeAny:     {},
}

// Field describes one named field of an object schema.
type Field struct {
	Name        string  `json:"name" yaml:"name"`
	Type        Type    `json:"type" yaml:"type"`
	Required    bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any     `json:"default,omitempty" yaml:"default,omitempty"`
	Items       *Field  `json:"items,omitempty" yaml:"items,omitempty"`
	Properties  []Field `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Object is an ordered set of named fields. Field order is declaration order
// and is preserved through serialization. Objects are open by default:
// validation ignores fields the schema does not declare. A closed object
// rejects them instead.
type Object struct {
	Fields []Field `json:"fields"`
	Closed bool    `json:"closed,omitempty"`
}

// Obj builds an object schema from the given fields.
func Obj(fields ...Field) Object {
	return Object{Fields: fields}
}

// Check validates the schema declaration itself: field names must be unique
// and non-empty, type literals must be known, and array fields must declare
// items. A failing Check is a configuration error in the tool declaring the
// schema, never a request error.
func (o Object) Check() error {
	seen := make(map[string]struct{}, len(o.Fields))
	for _, field := range o.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("schema: field name is empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema: duplicate field %q", name)
		}
		seen[name] = struct{}{}
		if err := checkFieldSpec(name, field); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldSpec(path string, field Field) error {
	if _, ok := validTypes[field.Type]; !ok {
		return fmt.Errorf("schema: field %q has unsupported type %q", path, field.Type)
	}
	if field.Type == TypeArray {
		if field.Items == nil {
			return fmt.Errorf("schema: array field %q must declare items", path)
		}
		if err := checkFieldSpec(path+"[]", *field.Items); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(field.Properties))
	for _, prop := range field.Properties {
		name := strings.TrimSpace(prop.Name)
		if name == "" {
			return fmt.Errorf("schema: field %q has a property with an empty name", path)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema: field %q has duplicate property %q", path, name)
		}
		seen[name] = struct{}{}
		if err := checkFieldSpec(path+"."+name, prop); err != nil {
			return err
		}
	}
	return nil
}
