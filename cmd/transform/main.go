// Command transform runs the projection step offline: it reads a saved
// source payload, applies a column spec, and writes the artifact exactly as
// the service would. Useful for checking a new column spec against a
// captured FIRMS response before deploying it.
//
// Usage:
//
//	go run ./cmd/transform \
//	  -in testdata/firms_viirs_snpp.csv \
//	  -out /tmp/fire.csv \
//	  -columns latitude:latitude,longitude:longitude,bright_ti4:brightness
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/couchcryptid/hotspot-etl-service/internal/adapter/colspec"
	"github.com/couchcryptid/hotspot-etl-service/internal/adapter/file"
	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("in", "", "path to a saved source payload (- for stdin)")
	out := flag.String("out", "", "output artifact path (empty writes to stdout)")
	columns := flag.String("columns", domain.DefaultColumnSpec, "column spec as source:output pairs")
	columnsFile := flag.String("columns-file", "", "YAML column spec file; overrides -columns")
	delimiter := flag.String("delimiter", ",", "source field delimiter")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		return errors.New("missing required flag: -in")
	}
	delim := []rune(*delimiter)
	if len(delim) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", *delimiter)
	}

	spec, err := loadSpec(*columns, *columnsFile)
	if err != nil {
		return err
	}

	raw, err := readInput(*in)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}

	res, err := domain.Transform(string(raw), spec, delim[0])
	if err != nil {
		return err
	}
	for _, skipped := range res.Skipped {
		log.Printf("skipped: %v", skipped)
	}
	data := domain.Serialize(spec, res.Records)

	if *out == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	w := file.NewWriter(*out, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err := w.EnsureDir(); err != nil {
		return err
	}
	if err := w.Persist(context.Background(), data); err != nil {
		return err
	}
	log.Printf("wrote %d rows (%d skipped) to %s", len(res.Records), len(res.Skipped), *out)
	return nil
}

func loadSpec(columns, columnsFile string) (domain.ColumnSpec, error) {
	if columnsFile != "" {
		return colspec.LoadFile(columnsFile)
	}
	return domain.ParseColumnSpec(columns)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
