package main

import (
	"fmt"
	"strings"
)

type dialect string

const (
	dialectSQLite    dialect = "sqlite"
	dialectDuckDB    dialect = "duckdb"
	dialectPostgres  dialect = "postgres"
	dialectMySQL     dialect = "mysql"
	dialectSQLServer dialect = "sqlserver"
)

// driver returns the database/sql driver name registered for the dialect.
func (d dialect) driver() string {
	switch d {
	case dialectSQLite:
		return "sqlite3"
	case dialectPostgres:
		return "pgx"
	default:
		return string(d)
	}
}

func (d dialect) quote(ident string) string {
	switch d {
	case dialectMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case dialectSQLServer:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

func (d dialect) qualify(schema, table string) string {
	if schema == "" {
		return d.quote(table)
	}
	return d.quote(schema) + "." + d.quote(table)
}

// currentSchema is the SQL expression naming the connection's default schema.
func (d dialect) currentSchema() string {
	switch d {
	case dialectMySQL:
		return "DATABASE()"
	case dialectSQLServer:
		return "SCHEMA_NAME()"
	default:
		return "current_schema()"
	}
}

// tablesQuery returns the query listing base tables, using '?' bind vars.
func (d dialect) tablesQuery(schema string) (string, []interface{}) {
	if d == dialectSQLite {
		master := "sqlite_master"
		if schema != "" {
			master = d.quote(schema) + ".sqlite_master"
		}
		return fmt.Sprintf(`SELECT name AS table_name
				FROM %s
				WHERE type = 'table'
				AND name NOT LIKE 'sqlite\_%%' ESCAPE '\'`, master), nil
	}

	query := `SELECT table_name
				FROM information_schema.tables
				WHERE table_type = 'BASE TABLE'`
	if schema == "" {
		return query + " AND table_schema = " + d.currentSchema(), nil
	}
	return query + " AND table_schema = ?", []interface{}{schema}
}

// columnsQuery returns the query describing the columns of a table.
func (d dialect) columnsQuery(schema, table string) (string, []interface{}) {
	if d == dialectSQLite {
		if schema == "" {
			return "SELECT * FROM pragma_table_xinfo(?)", []interface{}{table}
		}
		return "SELECT * FROM pragma_table_xinfo(?, ?)", []interface{}{table, schema}
	}

	query := `SELECT ordinal_position AS ordinal_position,
					column_name AS column_name,
					data_type AS data_type,
					column_default AS column_default,
					is_nullable AS is_nullable
				FROM information_schema.columns
				WHERE table_name = ?`
	args := []interface{}{table}
	if schema == "" {
		query += " AND table_schema = " + d.currentSchema()
	} else {
		query += " AND table_schema = ?"
		args = append(args, schema)
	}
	return query + " ORDER BY ordinal_position", args
}
