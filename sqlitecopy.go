package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/jmoiron/sqlx"
)

// SQLiteExporter copies tables into a single SQLite database file.
type SQLiteExporter struct {
	path string

	mu sync.Mutex
	db *sqlx.DB
}

// NewSQLiteExporter opens (or creates) the SQLite database at path.
func NewSQLiteExporter(path string) (*SQLiteExporter, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteExporter{path: path, db: db}, nil
}

// Format implements Exporter.
func (e *SQLiteExporter) Format() string { return FormatSQLite }

// Export implements Exporter. The table replaces any table of the same name.
// The database file is only reported once finalized.
func (e *SQLiteExporter) Export(ctx context.Context, frame *Frame) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := dialectSQLite.quote(frame.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return "", fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, createTableStmt(frame.Name, frame.Schema())); err != nil {
		return "", fmt.Errorf("create table: %w", err)
	}

	rec := frame.Record()
	if rec.NumCols() > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", int(rec.NumCols())), ", ")
		stmt, err := tx.PreparexContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders))
		if err != nil {
			return "", fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		args := make([]interface{}, rec.NumCols())
		for i := 0; i < int(rec.NumRows()); i++ {
			for j, col := range rec.Columns() {
				args[j] = sqliteValue(col, i)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return "", fmt.Errorf("insert row %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return "", nil
}

// Finalize implements Finalizer.
func (e *SQLiteExporter) Finalize() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.db.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", e.path, err)
	}
	return e.path, nil
}

func createTableStmt(name string, schema *arrow.Schema) string {
	columns := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		columns[i] = dialectSQLite.quote(f.Name) + " " + sqliteType(kindOf(f.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", dialectSQLite.quote(name), strings.Join(columns, ", "))
}

func sqliteType(kind columnKind) string {
	switch kind {
	case kindInt, kindBool:
		return "INTEGER"
	case kindFloat:
		return "REAL"
	case kindTime:
		return "TIMESTAMP"
	case kindBinary:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func sqliteValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}

	switch col := col.(type) {
	case *array.Int64:
		return col.Value(i)
	case *array.Float64:
		return col.Value(i)
	case *array.Boolean:
		return col.Value(i)
	case *array.Timestamp:
		return col.Value(i).ToTime(timestampType.Unit)
	case *array.Binary:
		return col.Value(i)
	case *array.String:
		return col.Value(i)
	}
	return col.ValueStr(i)
}
