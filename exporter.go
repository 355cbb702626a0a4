package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
)

// Exporter writes a frame in one output format.
type Exporter interface {
	Format() string
	Export(context.Context, *Frame) (string, error)
}

// Finalizer is implemented by exporters that gather every table in a single
// file. Finalize closes that file and returns its path.
type Finalizer interface {
	Finalize() (string, error)
}

// tablePath returns the path of the file a table is exported to.
func tablePath(dir, table, ext string) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(table)
	return filepath.Join(dir, name+"."+ext)
}

// TableExporter exports a single table in every selected format.
type TableExporter struct {
	db        *Database
	mem       memory.Allocator
	schema    string
	table     string
	exporters []Exporter
	sink      Sink
}

// NewTableExporter creates a new TableExporter.
func NewTableExporter(db *Database, schema, table string, exporters []Exporter, sink Sink) *TableExporter {
	return &TableExporter{
		db:        db,
		mem:       memory.DefaultAllocator,
		schema:    schema,
		table:     table,
		exporters: exporters,
		sink:      sink,
	}
}

// Execute loads the table and writes it with every exporter.
func (te *TableExporter) Execute(ctx context.Context, worker int) error {
	logger := log.With().Str("table", te.table).Int("worker", worker).Logger()
	start := time.Now()

	rows, err := te.db.GetRowsByTable(ctx, te.schema, te.table)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	frame, err := LoadFrame(te.mem, te.table, rows)
	if closeErr := rows.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", te.table, err)
	}
	defer frame.Release()

	logger.Debug().Int64("rows", frame.NumRows()).Int("columns", len(frame.Schema().Fields())).Msg("table loaded")

	for _, exporter := range te.exporters {
		if err := ctx.Err(); err != nil {
			return err
		}

		filename, err := exporter.Export(ctx, frame)
		if err != nil {
			return fmt.Errorf("export %s as %s: %w", te.table, exporter.Format(), err)
		}
		if filename == "" {
			continue
		}

		if err := te.sink.Send(ctx, filename); err != nil {
			return fmt.Errorf("send to sink: %w", err)
		}
	}

	logger.Info().Int64("rows", frame.NumRows()).Dur("took", time.Since(start)).Msg("table exported")
	return nil
}

// DatabaseExporter exports the tables of a database.
type DatabaseExporter struct {
	db        *Database
	mem       memory.Allocator
	schema    string
	exporters []Exporter
	sink      Sink
	workers   int
	failed    bool
}

// NewDatabaseExporter creates a new DatabaseExporter. The tables are
// exported one at a time unless workers is greater than one.
func NewDatabaseExporter(db *Database, schema string, exporters []Exporter, sink Sink, workers int) *DatabaseExporter {
	if workers < 1 {
		workers = 1
	}
	return &DatabaseExporter{
		db:        db,
		mem:       memory.DefaultAllocator,
		schema:    schema,
		exporters: exporters,
		sink:      sink,
		workers:   workers,
	}
}

// ExportAll exports every table of the schema.
func (de *DatabaseExporter) ExportAll(ctx context.Context) error {
	return de.ExportTables(ctx, nil)
}

// ExportTables exports the given tables. The first failing table stops the
// export and its error is returned.
func (de *DatabaseExporter) ExportTables(ctx context.Context, tables []string) error {
	names, err := de.db.Tables(ctx, de.schema, tables)
	if err != nil {
		de.failed = true
		return fmt.Errorf("reflect tables: %w", err)
	}

	log.Info().Int("tables", len(names)).Str("schema", de.schema).Msg("exporting tables")

	pool := NewPool(de.workers, len(names))
	pool.Start(ctx)
	for _, table := range names {
		te := NewTableExporter(de.db, de.schema, table, de.exporters, de.sink)
		te.mem = de.mem
		pool.AddTask(te)
	}

	if err := pool.Wait(); err != nil {
		de.failed = true
		return err
	}
	return nil
}

// Close finalizes the exporters writing a single file and, unless the export
// failed, sends those files to the sink.
func (de *DatabaseExporter) Close(ctx context.Context) error {
	var firstErr error
	for _, exporter := range de.exporters {
		f, ok := exporter.(Finalizer)
		if !ok {
			continue
		}

		filename, err := f.Finalize()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("finalize %s: %w", exporter.Format(), err)
			}
			continue
		}
		if filename == "" || de.failed {
			continue
		}

		if err := de.sink.Send(ctx, filename); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send to sink: %w", err)
		}
	}
	return firstErr
}

// ensureDir creates the output directory.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}
