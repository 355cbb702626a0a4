package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/jmoiron/sqlx"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func newPreviewCommand() *cli.Command {
	var limit int
	return &cli.Command{
		Name:        "preview",
		Usage:       "Print the first rows of an exported file",
		ArgsUsage:   "<file>",
		Description: "Read a parquet, feather, csv or tsv file (optionally zstd compressed) and print its first rows",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "Number of rows to print",
				Destination: &limit,
				Value:       10,
			},
		},
		Action: func(cCtx *cli.Context) error {
			path := cCtx.Args().First()
			if path == "" {
				return errors.New("missing file to preview")
			}
			return previewFile(cCtx.Context, cCtx.App.Writer, path, limit)
		},
	}
}

// previewFile prints up to limit rows of the file at path.
func previewFile(ctx context.Context, w io.Writer, path string, limit int) error {
	if strings.HasSuffix(path, zstdExt) {
		dir, err := os.MkdirTemp("", appName)
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("remove temp dir")
			}
		}()

		path, err = Decompress(path, dir)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
	}

	var (
		header []string
		rows   [][]string
		err    error
	)
	switch filepath.Ext(path) {
	case ".feather", ".arrow":
		header, rows, err = readFeather(path, limit)
	case ".parquet":
		header, rows, err = queryDuckDB(ctx, fmt.Sprintf("SELECT * FROM read_parquet(['%s']) LIMIT %d", escapeLiteral(path), limit))
	case ".csv":
		header, rows, err = queryDuckDB(ctx, fmt.Sprintf("SELECT * FROM read_csv_auto('%s', delim=',', header=true) LIMIT %d", escapeLiteral(path), limit))
	case ".tsv":
		header, rows, err = queryDuckDB(ctx, fmt.Sprintf("SELECT * FROM read_csv_auto('%s', delim='\t', header=true) LIMIT %d", escapeLiteral(path), limit))
	default:
		return fmt.Errorf("cannot preview %s", path)
	}
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func queryDuckDB(ctx context.Context, query string) ([]string, [][]string, error) {
	db, err := sqlx.Open("duckdb", "")
	if err != nil {
		return nil, nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	header, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}

	values := make([]interface{}, len(header))
	dest := make([]interface{}, len(header))
	for i := range values {
		dest[i] = &values[i]
	}

	out := [][]string{}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scan: %w", err)
		}
		line := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				line[i] = "NULL"
				continue
			}
			line[i] = toString(v)
		}
		out = append(out, line)
	}

	return header, out, rows.Err()
}

func readFeather(path string, limit int) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, nil, fmt.Errorf("open feather: %w", err)
	}
	defer func() { _ = reader.Close() }()

	header := make([]string, len(reader.Schema().Fields()))
	for i, field := range reader.Schema().Fields() {
		header[i] = field.Name
	}

	out := [][]string{}
	for i := 0; i < reader.NumRecords() && len(out) < limit; i++ {
		rec, err := reader.Record(i)
		if err != nil {
			return nil, nil, fmt.Errorf("read record %d: %w", i, err)
		}

		for row := 0; row < int(rec.NumRows()) && len(out) < limit; row++ {
			line := make([]string, rec.NumCols())
			for j, col := range rec.Columns() {
				if col.IsNull(row) {
					line[j] = "NULL"
					continue
				}
				line[j] = col.ValueStr(row)
			}
			out = append(out, line)
		}
	}

	return header, out, nil
}
