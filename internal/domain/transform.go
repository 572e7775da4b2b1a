package domain

import (
	"bytes"
	"strings"
)

// ProjectedRecord is one output row, ordered like the ColumnSpec.
type ProjectedRecord []string

// outputDelimiter separates fields in the output artifact.
const outputDelimiter = ","

// Result is the outcome of transforming one payload.
type Result struct {
	Records []ProjectedRecord
	Skipped []error // RowTruncatedError or RowDelimiterError, in line order
}

// Transform projects a delimited payload onto spec. It returns a
// *SchemaMismatchError, and no records, when the header lacks a required
// column. Rows that are too short, or whose projected values contain the
// output delimiter, are skipped and listed in Result.Skipped.
func Transform(raw string, spec ColumnSpec, delim rune) (Result, error) {
	lines := strings.Split(raw, "\n")
	sep := string(delim)

	headerLine := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerLine = i
			break
		}
	}
	if headerLine < 0 {
		return Result{}, nil
	}

	header := strings.Split(strings.TrimSuffix(lines[headerLine], "\r"), sep)
	indexes, need, err := resolveColumns(header, spec)
	if err != nil {
		return Result{}, err
	}

	res := Result{Records: make([]ProjectedRecord, 0, len(lines)-headerLine-1)}
	for i := headerLine + 1; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < need {
			res.Skipped = append(res.Skipped, RowTruncatedError{Line: i + 1, Fields: len(fields), Want: need})
			continue
		}
		rec, bad := project(fields, indexes)
		if bad >= 0 {
			res.Skipped = append(res.Skipped, RowDelimiterError{Line: i + 1, Column: spec[bad].Output})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// project picks the spec columns out of fields. It returns the index of the
// first value that would split when written to the artifact, or -1. Only a
// non-comma source delimiter can produce such a value.
func project(fields []string, indexes []int) (ProjectedRecord, int) {
	rec := make(ProjectedRecord, len(indexes))
	for j, idx := range indexes {
		if strings.Contains(fields[idx], outputDelimiter) {
			return nil, j
		}
		rec[j] = fields[idx]
	}
	return rec, -1
}

// resolveColumns maps each spec column to its header position and reports
// the minimum row width needed to read all of them.
func resolveColumns(header []string, spec ColumnSpec) ([]int, int, error) {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, seen := byName[name]; !seen {
			byName[name] = i
		}
	}

	indexes := make([]int, len(spec))
	need := 0
	var missing []string
	for i, c := range spec {
		idx, ok := byName[c.Source]
		if !ok {
			missing = append(missing, c.Source)
			continue
		}
		indexes[i] = idx
		if idx+1 > need {
			need = idx + 1
		}
	}
	if len(missing) > 0 {
		return nil, 0, &SchemaMismatchError{Missing: missing, Header: header}
	}
	return indexes, need, nil
}

// Serialize renders records as the output artifact.
func Serialize(spec ColumnSpec, records []ProjectedRecord) []byte {
	var b bytes.Buffer
	b.WriteString(strings.Join(spec.OutputNames(), outputDelimiter))
	b.WriteByte('\n')
	for _, rec := range records {
		b.WriteString(strings.Join(rec, outputDelimiter))
		b.WriteByte('\n')
	}
	return b.Bytes()
}
