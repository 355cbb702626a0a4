package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// Format names.
const (
	FormatSQLite  = "sqlite"
	FormatCSV     = "csv"
	FormatTSV     = "tsv"
	FormatParquet = "parquet"
	FormatFeather = "feather"
)

// Options configures the exporters of a run.
type Options struct {
	// Output is the base directory of the export.
	Output string
	// Name is the schema or database name the tables are exported under.
	Name    string
	Formats []string

	ParquetCompression string
	FeatherCompression string
	Encoding           string
	Zstd               bool
}

// Dir is the directory the table files are written to.
func (o Options) Dir() string {
	return filepath.Join(o.Output, o.Name)
}

type exporterFactory func(Options) (Exporter, error)

var factories = map[string]exporterFactory{
	FormatSQLite: func(o Options) (Exporter, error) {
		return NewSQLiteExporter(filepath.Join(o.Output, o.Name+".sqlite3.db"))
	},
	FormatCSV: func(o Options) (Exporter, error) {
		return NewDelimitedExporter(o.Dir(), FormatCSV, ',', o.Encoding, o.Zstd)
	},
	FormatTSV: func(o Options) (Exporter, error) {
		return NewDelimitedExporter(o.Dir(), FormatTSV, '\t', o.Encoding, o.Zstd)
	},
	FormatParquet: func(o Options) (Exporter, error) {
		return NewParquetExporter(o.Dir(), o.ParquetCompression)
	},
	FormatFeather: func(o Options) (Exporter, error) {
		return NewFeatherExporter(o.Dir(), o.FeatherCompression)
	},
}

// formatOrder is the order the formats of a table are written in.
var formatOrder = []string{FormatSQLite, FormatCSV, FormatTSV, FormatParquet, FormatFeather}

// Formats returns the names of the supported formats.
func Formats() []string {
	names := maps.Keys(factories)
	slices.Sort(names)
	return names
}

// NewExporters creates one exporter per selected format and the output
// directory they write to.
func NewExporters(opts Options) ([]Exporter, error) {
	if len(opts.Formats) == 0 {
		return nil, fmt.Errorf("no output format selected, choose from: %s", strings.Join(Formats(), ", "))
	}

	for _, format := range opts.Formats {
		if _, ok := factories[format]; !ok {
			return nil, fmt.Errorf("unknown format %q, choose from: %s", format, strings.Join(Formats(), ", "))
		}
	}

	if err := ensureDir(opts.Dir()); err != nil {
		return nil, err
	}

	exporters := []Exporter{}
	for _, format := range formatOrder {
		if !slices.Contains(opts.Formats, format) {
			continue
		}

		exporter, err := factories[format](opts)
		if err != nil {
			closeExporters(exporters)
			return nil, fmt.Errorf("create %s exporter: %w", format, err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

func closeExporters(exporters []Exporter) {
	for _, e := range exporters {
		if f, ok := e.(Finalizer); ok {
			_, _ = f.Finalize()
		}
	}
}
