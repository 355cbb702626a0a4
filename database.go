package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // sqlserver driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// ErrNoTables is returned when the reflected schema holds no table.
var ErrNoTables = errors.New("no tables found")

// Database represents the database being exported.
type Database struct {
	db      *sqlx.DB
	dialect dialect
}

// Open connects to the database described by src.
func Open(src Source) (*Database, error) {
	db, err := sqlx.Open(src.Dialect.driver(), src.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Dialect, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", src.Dialect, err)
	}

	return &Database{db: db, dialect: src.Dialect}, nil
}

// Close closes the connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// GetTablesIterator returns an iterator of the base tables of a schema,
// ordered by name. When tables is not empty only those are returned.
func (d *Database) GetTablesIterator(ctx context.Context, schema string, tables []string) (TablesIter, error) {
	query, args := d.dialect.tablesQuery(schema)

	column := "table_name"
	if d.dialect == dialectSQLite {
		column = "name"
	}

	if len(tables) > 0 {
		var err error
		query, args, err = sqlx.In(query+" AND "+column+" IN (?)", append(args, tables)...)
		if err != nil {
			return TablesIter{}, fmt.Errorf("expand table filter: %w", err)
		}
	}
	query = d.db.Rebind(query + " ORDER BY " + column)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TablesIter{}, fmt.Errorf("query tables: %w", err)
	}

	return TablesIter{rows: rows}, nil
}

// Tables returns the names of the tables to export. Every table named in
// tables must exist.
func (d *Database) Tables(ctx context.Context, schema string, tables []string) ([]string, error) {
	it, err := d.GetTablesIterator(ctx, schema, tables)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := it.Close(); err != nil {
			log.Warn().Err(err).Msg("close tables iterator")
		}
	}()

	found := []string{}
	for {
		table, ok := it.Next()
		if !ok {
			break
		}
		found = append(found, table)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	if len(tables) > 0 {
		missing := []string{}
		for _, t := range tables {
			if !slices.Contains(found, t) {
				missing = append(missing, t)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("tables not found: %s", strings.Join(missing, ", "))
		}
	}

	if len(found) == 0 {
		if schema == "" {
			return nil, ErrNoTables
		}
		return nil, fmt.Errorf("%w in schema %q", ErrNoTables, schema)
	}

	return found, nil
}

// GetRowsByTable returns an iterator over all rows of a specific table.
func (d *Database) GetRowsByTable(ctx context.Context, schema, table string) (*sqlx.Rows, error) {
	rows, err := d.db.QueryxContext(ctx, "SELECT * FROM "+d.dialect.qualify(schema, table))
	if err != nil {
		return nil, fmt.Errorf("query rows of %s: %w", table, err)
	}

	return rows, nil
}

// GetColumnsByTable returns the columns of a table.
func (d *Database) GetColumnsByTable(ctx context.Context, schema, table string) ([]Column, error) {
	query, args := d.dialect.columnsQuery(schema, table)

	rows, err := d.db.QueryxContext(ctx, d.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Warn().Err(err).Str("table", table).Msg("close columns rows")
		}
	}()

	columns := []Column{}
	for rows.Next() {
		col, err := d.scanColumn(rows)
		if err != nil {
			return []Column{}, fmt.Errorf("scan column of %s: %w", table, err)
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (d *Database) scanColumn(rows *sqlx.Rows) (Column, error) {
	if d.dialect == dialectSQLite {
		type column struct {
			CID          int            `db:"cid"`
			Name         string         `db:"name"`
			DataType     string         `db:"type"`
			NotNull      int            `db:"notnull"`
			DefaultValue sql.NullString `db:"dflt_value"`
			PrimaryKey   int            `db:"pk"`
			Hidden       int            `db:"hidden"`
		}

		var col column
		if err := rows.StructScan(&col); err != nil {
			return Column{}, err
		}

		isPrimaryKey := ""
		if col.PrimaryKey > 0 {
			isPrimaryKey = "PK"
		}

		return Column{
			OrdinalPosition: col.CID + 1,
			Name:            col.Name,
			DataType:        col.DataType,
			DefaultValue:    col.DefaultValue,
			IsNullable:      col.NotNull == 0,
			ColumnKey:       isPrimaryKey,
		}, nil
	}

	type column struct {
		OrdinalPosition int            `db:"ordinal_position"`
		Name            string         `db:"column_name"`
		DataType        string         `db:"data_type"`
		DefaultValue    sql.NullString `db:"column_default"`
		IsNullable      string         `db:"is_nullable"`
	}

	var col column
	if err := rows.StructScan(&col); err != nil {
		return Column{}, err
	}

	return Column{
		OrdinalPosition: col.OrdinalPosition,
		Name:            col.Name,
		DataType:        col.DataType,
		DefaultValue:    col.DefaultValue,
		IsNullable:      strings.EqualFold(col.IsNullable, "YES"),
	}, nil
}

// TablesIter represents an iterator of tables.
type TablesIter struct {
	rows *sql.Rows
	err  error
}

// Next returns the next table of the iterator.
func (i *TablesIter) Next() (string, bool) {
	if i.err != nil || !i.rows.Next() {
		return "", false
	}

	var table string
	if err := i.rows.Scan(&table); err != nil {
		i.err = err
		return "", false
	}
	return table, true
}

// Err returns the first error met while iterating.
func (i *TablesIter) Err() error {
	if i.err != nil {
		return i.err
	}
	return i.rows.Err()
}

// Close closes the table's iterator.
func (i *TablesIter) Close() error {
	return i.rows.Close()
}

// Column represents information of a column of a database's table.
type Column struct {
	OrdinalPosition int            `db:"ordinal_position"`
	Name            string         `db:"column_name"`
	DataType        string         `db:"data_type"`
	DefaultValue    sql.NullString `db:"column_default"`
	IsNullable      bool           `db:"is_nullable"`
	ColumnKey       string         `db:"column_key"` // sqlite only
}
