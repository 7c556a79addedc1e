package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Validate parses candidate as JSON and checks it against schema. Unknown
// fields are ignored. Errors name the offending value by dotted path, in
// schema declaration order. The returned result has Attempt 0; Runner fills
// in the attempt and lifecycle state.
func Validate(candidate string, schema *Schema) Result {
	res := Result{Raw: candidate, State: StateInvalidRetryable}
	if schema != nil {
		res.Schema = schema.Name
		res.SchemaVersion = schema.Version
	}
	if schema == nil {
		res.Errors = []string{"no schema provided"}
		return res
	}

	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		res.Errors = []string{"no JSON found in output"}
		return res
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		res.Errors = []string{fmt.Sprintf("invalid JSON: %v", err)}
		return res
	}
	if dec.More() {
		res.Errors = []string{"invalid JSON: unexpected data after top-level value"}
		return res
	}

	obj, ok := value.(map[string]any)
	if !ok {
		res.Errors = []string{fmt.Sprintf("$: expected object, got %s", typeName(value))}
		return res
	}

	var errs []string
	validateObject(&errs, "", schema.Properties, obj)
	if len(errs) > 0 {
		res.Errors = errs
		return res
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(trimmed)); err != nil {
		res.Errors = []string{fmt.Sprintf("invalid JSON: %v", err)}
		return res
	}
	res.Valid = true
	res.State = StateValid
	res.Payload = json.RawMessage(compact.Bytes())
	return res
}

// Check runs Extract then Validate, keeping the untouched model text as Raw.
func Check(raw string, schema *Schema) Result {
	res := Validate(Extract(raw), schema)
	res.Raw = raw
	return res
}

func validateObject(errs *[]string, prefix string, fields []Field, obj map[string]any) {
	for i := range fields {
		f := &fields[i]
		path := joinPath(prefix, f.Name)
		value, present := obj[f.Name]
		if !present || value == nil {
			if f.Required {
				*errs = append(*errs, path+": required field missing")
			}
			continue
		}
		validateValue(errs, path, f, value)
	}
}

func validateValue(errs *[]string, path string, f *Field, value any) {
	switch f.Type {
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			*errs = append(*errs, typeError(path, f.Type, value))
			return
		}
		validateObject(errs, path, f.Properties, obj)
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			*errs = append(*errs, typeError(path, f.Type, value))
			return
		}
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				*errs = append(*errs, itemPath+": null item")
				continue
			}
			validateValue(errs, itemPath, f.Items, item)
		}
	case TypeString:
		s, ok := value.(string)
		if !ok {
			*errs = append(*errs, typeError(path, f.Type, value))
			return
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
			*errs = append(*errs, fmt.Sprintf("%s: value %q is not one of [%s]", path, s, strings.Join(f.Enum, ", ")))
		}
	case TypeNumber, TypeInteger:
		num, ok := value.(json.Number)
		if !ok {
			*errs = append(*errs, typeError(path, f.Type, value))
			return
		}
		v, err := num.Float64()
		if err != nil || math.IsInf(v, 0) {
			*errs = append(*errs, fmt.Sprintf("%s: invalid number %s", path, num))
			return
		}
		if f.Type == TypeInteger && v != math.Trunc(v) {
			*errs = append(*errs, fmt.Sprintf("%s: expected integer, got %s", path, num))
			return
		}
		if f.Min != nil && v < *f.Min {
			*errs = append(*errs, fmt.Sprintf("%s: %s is below minimum %s", path, num, formatBound(*f.Min)))
		}
		if f.Max != nil && v > *f.Max {
			*errs = append(*errs, fmt.Sprintf("%s: %s is above maximum %s", path, num, formatBound(*f.Max)))
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, typeError(path, f.Type, value))
		}
	}
}

func typeError(path string, want Type, value any) string {
	return fmt.Sprintf("%s: expected %s, got %s", path, want, typeName(value))
}

func typeName(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
