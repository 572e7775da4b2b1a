package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Column maps one source header name to the name it takes in the output.
type Column struct {
	Source string `yaml:"source" json:"source"`
	Output string `yaml:"output" json:"output"`
}

// ColumnSpec is the ordered list of columns to extract. Output order follows
// slice order.
type ColumnSpec []Column

// DefaultColumnSpec reproduces the map layer's fire.csv schema.
const DefaultColumnSpec = "latitude:latitude,longitude:longitude,bright_ti4:brightness"

// ParseColumnSpec parses "src:out,src2:out2". An entry without a colon keeps
// its source name as the output name.
func ParseColumnSpec(s string) (ColumnSpec, error) {
	var spec ColumnSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		src, out, found := strings.Cut(part, ":")
		src = strings.TrimSpace(src)
		out = strings.TrimSpace(out)
		if !found {
			out = src
		}
		spec = append(spec, Column{Source: src, Output: out})
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate rejects empty specs, blank names and repeated output names.
// Repeating a source name is allowed (the same field may be emitted twice
// under different names).
func (s ColumnSpec) Validate() error {
	if len(s) == 0 {
		return errors.New("column spec is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for i, c := range s {
		if c.Source == "" || c.Output == "" {
			return fmt.Errorf("column %d: source and output names are required", i)
		}
		if strings.ContainsAny(c.Output, ",\n\r") {
			return fmt.Errorf("column %d: output name %q contains a delimiter or newline", i, c.Output)
		}
		if _, dup := seen[c.Output]; dup {
			return fmt.Errorf("column %d: duplicate output name %q", i, c.Output)
		}
		seen[c.Output] = struct{}{}
	}
	return nil
}

// OutputNames returns the output header in spec order.
func (s ColumnSpec) OutputNames() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Output
	}
	return names
}

// String renders the spec in the form ParseColumnSpec accepts.
func (s ColumnSpec) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Source + ":" + c.Output
	}
	return strings.Join(parts, ",")
}
