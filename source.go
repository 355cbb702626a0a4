package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const defaultOutputName = "dump"

// Source describes how to reach the database being exported.
type Source struct {
	Dialect  dialect
	DSN      string
	Database string
}

// ParseSource parses a SQLAlchemy style database URL into a Source.
// A non-empty password replaces the one embedded in the URL.
func ParseSource(rawURL, password string) (Source, error) {
	if rawURL == "" {
		return Source{}, errors.New("empty database url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, fmt.Errorf("parse database url: %w", err)
	}

	scheme, _, _ := strings.Cut(strings.ToLower(u.Scheme), "+")
	d, ok := schemes[scheme]
	if !ok {
		return Source{}, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	if password != "" && u.User != nil {
		u.User = url.UserPassword(u.User.Username(), password)
	}

	src := Source{
		Dialect:  d,
		Database: databaseName(rawURL),
	}

	switch d {
	case dialectSQLite, dialectDuckDB:
		src.DSN = filePath(rawURL)
	case dialectPostgres:
		u.Scheme = "postgres"
		src.DSN = u.String()
	case dialectMySQL:
		src.DSN = mysqlDSN(u)
	case dialectSQLServer:
		src.DSN = sqlserverDSN(u)
	}

	return src, nil
}

// OutputName returns the name of the directory the tables are exported into.
func (s Source) OutputName(schema string) string {
	if schema != "" {
		return schema
	}
	if s.Database != "" {
		return s.Database
	}
	return defaultOutputName
}

var schemes = map[string]dialect{
	"sqlite":     dialectSQLite,
	"sqlite3":    dialectSQLite,
	"duckdb":     dialectDuckDB,
	"postgres":   dialectPostgres,
	"postgresql": dialectPostgres,
	"mysql":      dialectMySQL,
	"mariadb":    dialectMySQL,
	"mssql":      dialectSQLServer,
	"sqlserver":  dialectSQLServer,
}

// databaseName is the last path segment of the url, without the query.
func databaseName(rawURL string) string {
	base, _, _ := strings.Cut(rawURL, "?")
	if i := strings.Index(base, "://"); i >= 0 {
		base = base[i+3:]
	}
	if !strings.Contains(base, "/") {
		return ""
	}
	return base[strings.LastIndex(base, "/")+1:]
}

// filePath follows SQLAlchemy's convention for file databases: three slashes
// for a relative path, four for an absolute one, none for memory.
func filePath(rawURL string) string {
	base, query, _ := strings.Cut(rawURL, "?")
	_, p, _ := strings.Cut(base, "://")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ":memory:"
	}
	if query != "" {
		return p + "?" + query
	}
	return p
}

func mysqlDSN(u *url.URL) string {
	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	for k, v := range u.Query() {
		if len(v) > 0 {
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[k] = v[0]
		}
	}
	return cfg.FormatDSN()
}

func sqlserverDSN(u *url.URL) string {
	out := *u
	out.Scheme = "sqlserver"
	out.Path = ""
	q := u.Query()
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		q.Set("database", db)
	}
	out.RawQuery = q.Encode()
	return out.String()
}
