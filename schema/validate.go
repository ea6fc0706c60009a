package schema

import (
	"encoding/json"
	"fmt"
	"math"
)

// Violation codes produced by Conform.
const (
	CodeRequiredField = "REQUIRED_FIELD"
	CodeWrongType     = "WRONG_TYPE"
	CodeUnknownField  = "UNKNOWN_FIELD"
)

// Violation is a structured description of one validation failure.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Conform validates data against the object schema and returns the
// normalized payload together with every violation found. Validation is
// total: any input map is either accepted or fully enumerated.
//
// The normalized payload contains only declared fields; defaults are filled
// in for absent optional fields that declare one. Undeclared fields are
// dropped unless the schema is closed, in which case they are violations.
// When violations are returned the normalized payload is nil.
func (o Object) Conform(data map[string]any) (map[string]any, []Violation) {
	violations := make([]Violation, 0)
	out := make(map[string]any, len(o.Fields))

	for _, field := range o.Fields {
		value, present := data[field.Name]
		if !present {
			if field.Required {
				violations = append(violations, Violation{
					Field:   field.Name,
					Code:    CodeRequiredField,
					Message: fmt.Sprintf("required field %q is missing", field.Name),
				})
				continue
			}
			if field.Default != nil {
				out[field.Name] = field.Default
			}
			continue
		}
		if value == nil {
			// Explicit null counts as absent: it never reaches the tool and
			// never shadows a declared default.
			if field.Required {
				violations = append(violations, Violation{
					Field:   field.Name,
					Code:    CodeRequiredField,
					Message: fmt.Sprintf("required field %q is null", field.Name),
				})
				continue
			}
			if field.Default != nil {
				out[field.Name] = field.Default
			}
			continue
		}
		checkValue(field.Name, field, value, &violations)
		out[field.Name] = value
	}

	if o.Closed {
		declared := make(map[string]struct{}, len(o.Fields))
		for _, field := range o.Fields {
			declared[field.Name] = struct{}{}
		}
		for name := range data {
			if _, ok := declared[name]; !ok {
				violations = append(violations, Violation{
					Field:   name,
					Code:    CodeUnknownField,
					Message: fmt.Sprintf("field %q is not declared by this schema", name),
				})
			}
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return out, nil
}

func checkValue(path string, field Field, value any, violations *[]Violation) {
	if value == nil {
		// Explicit null counts as absent for optional fields.
		if field.Required {
			*violations = append(*violations, Violation{
				Field:   path,
				Code:    CodeRequiredField,
				Message: fmt.Sprintf("required field %q is null", path),
			})
		}
		return
	}

	switch field.Type {
	case TypeAny:
	case TypeString:
		if _, ok := value.(string); !ok {
			appendWrongType(path, field.Type, value, violations)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			appendWrongType(path, field.Type, value, violations)
		}
	case TypeFloat:
		// A declared float accepts an integer literal.
		if !isNumber(value) {
			appendWrongType(path, field.Type, value, violations)
		}
	case TypeInteger:
		if !isInteger(value) {
			appendWrongType(path, field.Type, value, violations)
		}
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			appendWrongType(path, field.Type, value, violations)
			return
		}
		if field.Items == nil {
			return
		}
		for i, item := range items {
			checkValue(fmt.Sprintf("%s[%d]", path, i), *field.Items, item, violations)
		}
	case TypeObject:
		nested, ok := value.(map[string]any)
		if !ok {
			appendWrongType(path, field.Type, value, violations)
			return
		}
		for _, prop := range field.Properties {
			propValue, present := nested[prop.Name]
			if !present {
				if prop.Required {
					*violations = append(*violations, Violation{
						Field:   path + "." + prop.Name,
						Code:    CodeRequiredField,
						Message: fmt.Sprintf("required field %q is missing", path+"."+prop.Name),
					})
				}
				continue
			}
			checkValue(path+"."+prop.Name, prop, propValue, violations)
		}
	default:
		appendWrongType(path, field.Type, value, violations)
	}
}

func appendWrongType(path string, want Type, got any, violations *[]Violation) {
	*violations = append(*violations, Violation{
		Field:   path,
		Code:    CodeWrongType,
		Message: fmt.Sprintf("field %q must be %s, got %T", path, want, got),
	})
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int32, int64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	default:
		return false
	}
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		// JSON decoding yields float64 for every number; accept integral values.
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v) == math.Trunc(float64(v))
	case json.Number:
		_, err := v.Int64()
		return err == nil
	default:
		return false
	}
}
