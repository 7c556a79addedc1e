package structured

import (
	"fmt"
	"strings"
)

// Outline renders the schema as an indented field list for inclusion in a
// model prompt.
func (s *Schema) Outline() string {
	var b strings.Builder
	writeOutline(&b, s.Properties, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeOutline(b *strings.Builder, fields []Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for i := range fields {
		f := &fields[i]
		fmt.Fprintf(b, "%s- %s (%s)\n", indent, f.Name, describeField(f))
		switch {
		case f.Type == TypeObject:
			writeOutline(b, f.Properties, depth+1)
		case f.Type == TypeArray && f.Items != nil && f.Items.Type == TypeObject:
			writeOutline(b, f.Items.Properties, depth+1)
		}
	}
}

func describeField(f *Field) string {
	kind := string(f.Type)
	if f.Type == TypeArray && f.Items != nil {
		kind = "array of " + string(f.Items.Type)
	}
	parts := []string{kind}
	if f.Required {
		parts = append(parts, "required")
	}
	switch {
	case f.Min != nil && f.Max != nil:
		parts = append(parts, formatBound(*f.Min)+".."+formatBound(*f.Max))
	case f.Min != nil:
		parts = append(parts, "min "+formatBound(*f.Min))
	case f.Max != nil:
		parts = append(parts, "max "+formatBound(*f.Max))
	}
	if len(f.Enum) > 0 {
		parts = append(parts, "one of: "+strings.Join(f.Enum, "|"))
	}
	if f.Description != "" {
		parts = append(parts, f.Description)
	}
	return strings.Join(parts, ", ")
}
