package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func newExportCommand() *cli.Command {
	flags := []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "dburl",
			Aliases:  []string{"d"},
			Category: "REQUIRED:",
			Usage:    "SQLAlchemy style url of the database, e.g. postgresql://user@host/db",
			EnvVars:  []string{"COM_DUMPDB_DBURL", "DATABASE_URL"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "password",
			Category: "OPTIONAL:",
			Usage:    "Password overriding the one of the url",
			EnvVars:  []string{"COM_DUMPDB_PASSWORD", "DATABASE_PASSWORD"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "schema",
			Aliases:  []string{"s"},
			Category: "OPTIONAL:",
			Usage:    "Schema to export, the connection's default schema when empty",
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:        "tblname",
			Aliases:     []string{"t", "tables"},
			Category:    "OPTIONAL:",
			Usage:       "The tables you want to export",
			DefaultText: "all",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Category:    "OPTIONAL:",
			Usage:       "Directory the export is written to",
			DefaultText: ".",
			Value:       ".",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:     "workers",
			Category: "OPTIONAL:",
			Usage:    "Number of tables exported at the same time",
			Value:    1,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     FormatParquet,
			Aliases:  []string{"p"},
			Category: "FORMATS:",
			Usage:    "output as parquet files",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     FormatSQLite,
			Aliases:  []string{"q"},
			Category: "FORMATS:",
			Usage:    "output as an sqlite3 db",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     FormatFeather,
			Aliases:  []string{"f"},
			Category: "FORMATS:",
			Usage:    "output as feather files",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     FormatCSV,
			Category: "FORMATS:",
			Usage:    "output as csv files",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     FormatTSV,
			Category: "FORMATS:",
			Usage:    "output as tsv files",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "parquet-compression",
			Category: "FORMATS:",
			Usage:    "Parquet compression codec: snappy, zstd, gzip or none",
			Value:    "snappy",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "feather-compression",
			Category: "FORMATS:",
			Usage:    "Feather compression codec: lz4, zstd or none",
			Value:    "lz4",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "encoding",
			Category: "FORMATS:",
			Usage:    "Text encoding of csv and tsv files",
			Value:    "utf-8",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     "zstd",
			Category: "FORMATS:",
			Usage:    "Compress csv and tsv files with zstd",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "s3-endpoint",
			Category: "UPLOAD:",
			Usage:    "Upload the exported files to this S3 compatible endpoint",
			EnvVars:  []string{"COM_S3_ENDPOINT"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "s3-bucket",
			Category: "UPLOAD:",
			Usage:    "Bucket the files are uploaded to",
			EnvVars:  []string{"COM_S3_BUCKET"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "s3-prefix",
			Category: "UPLOAD:",
			Usage:    "Key prefix of the uploaded files",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "s3-region",
			Category: "UPLOAD:",
			Usage:    "Region of the bucket",
			EnvVars:  []string{"AWS_REGION"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "s3-access-key",
			Category: "UPLOAD:",
			Usage:    "Access key of the S3 endpoint",
			EnvVars:  []string{"AWS_ACCESS_KEY_ID"},
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:     "s3-secret-key",
			Category: "UPLOAD:",
			Usage:    "Secret key of the S3 endpoint",
			EnvVars:  []string{"AWS_SECRET_ACCESS_KEY"},
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:     "s3-insecure",
			Category: "UPLOAD:",
			Usage:    "Use plain http to reach the S3 endpoint",
		}),
	}

	return &cli.Command{
		Name:        "export",
		Aliases:     []string{"dumpdb"},
		Usage:       "Export tables",
		Description: "Export the tables of a database to sqlite, csv, tsv, parquet and feather files",
		Flags:       flags,
		Before:      altsrc.InitInputSourceWithContext(flags, configSource),
		Action: func(cCtx *cli.Context) error {
			src, err := ParseSource(cCtx.String("dburl"), cCtx.String("password"))
			if err != nil {
				return err
			}

			schema := cCtx.String("schema")
			opts := Options{
				Output:             cCtx.String("output"),
				Name:               src.OutputName(schema),
				Formats:            selectedFormats(cCtx),
				ParquetCompression: cCtx.String("parquet-compression"),
				FeatherCompression: cCtx.String("feather-compression"),
				Encoding:           cCtx.String("encoding"),
				Zstd:               cCtx.Bool("zstd"),
			}

			sink, err := newSink(cCtx, opts.Output)
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

			exporters, err := NewExporters(opts)
			if err != nil {
				return err
			}

			exporter := NewDatabaseExporter(db, schema, exporters, sink, cCtx.Int("workers"))
			err = exporter.ExportTables(cCtx.Context, cCtx.StringSlice("tblname"))
			if closeErr := exporter.Close(cCtx.Context); closeErr != nil && err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			log.Info().Str("output", opts.Dir()).Msg("export done")
			return nil
		},
	}
}

// selectedFormats returns the formats whose flag is set.
func selectedFormats(cCtx *cli.Context) []string {
	formats := []string{}
	for _, format := range formatOrder {
		if cCtx.Bool(format) {
			formats = append(formats, format)
		}
	}
	return formats
}

func newSink(cCtx *cli.Context, root string) (Sink, error) {
	endpoint := cCtx.String("s3-endpoint")
	if endpoint == "" {
		return LogSink{}, nil
	}
	if cCtx.String("s3-bucket") == "" {
		return nil, errors.New("--s3-bucket is required to upload")
	}

	return NewS3Sink(S3Config{
		Endpoint:  endpoint,
		Bucket:    cCtx.String("s3-bucket"),
		Prefix:    cCtx.String("s3-prefix"),
		Region:    cCtx.String("s3-region"),
		AccessKey: cCtx.String("s3-access-key"),
		SecretKey: cCtx.String("s3-secret-key"),
		Insecure:  cCtx.Bool("s3-insecure"),
	}, root)
}

// configSource loads flag defaults from the --config YAML file. A missing
// file is not an error.
func configSource(cCtx *cli.Context) (altsrc.InputSourceContext, error) {
	path := cCtx.String("config")
	if path == "" {
		return altsrc.NewMapInputSource("", map[interface{}]interface{}{}), nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return altsrc.NewMapInputSource(path, map[interface{}]interface{}{}), nil
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}

	return altsrc.NewYamlSourceFromFile(path)
}
