// Command validate checks a published artifact the way a downstream map
// consumer would read it: the header must match the expected output columns,
// every row must carry exactly that many fields, coordinates must be in range,
// and the file must be fresh.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -file /var/www/html/csv/fire.csv \
//	  -columns latitude,longitude,brightness \
//	  -max-age 45m
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the per-phase error list.
const maxReported = 20

func main() {
	path := flag.String("file", "", "path to the output artifact")
	columns := flag.String("columns", "", "expected output columns, comma separated (default: outputs of the default column spec)")
	maxAge := flag.Duration("max-age", 0, "fail if the artifact is older than this (0 disables)")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(1)
	}

	expected := strings.Split(*columns, ",")
	if *columns == "" {
		spec, _ := domain.ParseColumnSpec(domain.DefaultColumnSpec)
		expected = spec.OutputNames()
	}

	os.Exit(run(os.Stdout, clockwork.NewRealClock(), *path, expected, *maxAge))
}

func run(w io.Writer, clock clockwork.Clock, path string, expected []string, maxAge time.Duration) int {
	fmt.Fprintln(w, "=== Hotspot Artifact Validation ===")
	fmt.Fprintln(w)

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFreshness(clock, info.ModTime(), maxAge),
	}
	rows, schema := validateSchema(string(raw), expected)
	phases = append(phases, schema, validateRows(string(raw), len(expected)), validateCoordinates(rows, expected))

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rows: %d, modified %s\n", len(rows), info.ModTime().UTC().Format(time.RFC3339))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Fprintf(w, "  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func validateFreshness(clock clockwork.Clock, modTime time.Time, maxAge time.Duration) *phase {
	p := &phase{name: "Freshness"}
	if maxAge <= 0 {
		return p
	}
	if age := clock.Since(modTime); age > maxAge {
		p.errorf("artifact is %s old, limit %s", age.Round(time.Second), maxAge)
	}
	return p
}

// validateSchema projects the artifact through an identity spec, which fails
// the same way the service would if a column were missing.
func validateSchema(raw string, expected []string) ([]domain.ProjectedRecord, *phase) {
	p := &phase{name: "Header matches expected columns"}

	header, _, _ := strings.Cut(raw, "\n")
	if header != strings.Join(expected, ",") {
		p.errorf("header is %q, want %q", header, strings.Join(expected, ","))
	}

	identity := make(domain.ColumnSpec, len(expected))
	for i, name := range expected {
		identity[i] = domain.Column{Source: name, Output: name}
	}
	res, err := domain.Transform(raw, identity, ',')
	if err != nil {
		p.errorf("%v", err)
		return nil, p
	}
	return res.Records, p
}

func validateRows(raw string, width int) *phase {
	p := &phase{name: "Row widths"}
	if raw != "" && !strings.HasSuffix(raw, "\n") {
		p.errorf("artifact does not end with a newline")
	}
	lines := strings.Split(strings.TrimSuffix(raw, "\n"), "\n")
	for i, line := range lines[1:] {
		if n := len(strings.Split(line, ",")); n != width {
			p.errorf("line %d: %d field(s), want %d", i+2, n, width)
		}
	}
	return p
}

func validateCoordinates(rows []domain.ProjectedRecord, columns []string) *phase {
	p := &phase{name: "Coordinates in range"}
	bounds := map[string]float64{"latitude": 90, "longitude": 180}
	for col, name := range columns {
		limit, ok := bounds[name]
		if !ok {
			continue
		}
		for i, row := range rows {
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				p.errorf("row %d: %s %q is not a number", i+1, name, row[col])
				continue
			}
			if v < -limit || v > limit {
				p.errorf("row %d: %s %g out of range", i+1, name, v)
			}
		}
	}
	return p
}
