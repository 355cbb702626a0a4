package main

import (
	"context"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func newTablesCommand() *cli.Command {
	return &cli.Command{
		Name:        "tables",
		Usage:       "List tables",
		Description: "List the tables of a database and their columns",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dburl",
				Aliases:  []string{"d"},
				Category: "REQUIRED:",
				Usage:    "SQLAlchemy style url of the database",
				EnvVars:  []string{"COM_DUMPDB_DBURL", "DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:     "password",
				Category: "OPTIONAL:",
				Usage:    "Password overriding the one of the url",
				EnvVars:  []string{"COM_DUMPDB_PASSWORD", "DATABASE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:     "schema",
				Aliases:  []string{"s"},
				Category: "OPTIONAL:",
				Usage:    "Schema to reflect",
			},
			&cli.StringSliceFlag{
				Name:     "tblname",
				Aliases:  []string{"t", "tables"},
				Category: "OPTIONAL:",
				Usage:    "The tables you want to describe",
			},
		},
		Action: func(cCtx *cli.Context) error {
			src, err := ParseSource(cCtx.String("dburl"), cCtx.String("password"))
			if err != nil {
				return err
			}

			db, err := Open(src)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Warn().Err(err).Msg("close database")
				}
			}()

			return describeTables(cCtx.Context, cCtx.App.Writer, db, cCtx.String("schema"), cCtx.StringSlice("tblname"))
		},
	}
}

// describeTables writes the columns of every table as a text table.
func describeTables(ctx context.Context, w io.Writer, db *Database, schema string, tables []string) error {
	names, err := db.Tables(ctx, schema, tables)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "#", "Column", "Type", "Nullable", "Default", "Key"})
	table.SetAutoMergeCellsByColumnIndex([]int{0})
	table.SetAutoWrapText(false)

	for _, name := range names {
		columns, err := db.GetColumnsByTable(ctx, schema, name)
		if err != nil {
			return err
		}
		for _, col := range columns {
			table.Append([]string{
				name,
				strconv.Itoa(col.OrdinalPosition),
				col.Name,
				col.DataType,
				strconv.FormatBool(col.IsNullable),
				col.DefaultValue.String,
				col.ColumnKey,
			})
		}
	}

	table.Render()
	return nil
}
