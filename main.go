package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const appName = "db-exporter"

var version = "dev"

var logLevels = map[string]zerolog.Level{
	"NOTSET":   zerolog.TraceLevel,
	"DEBUG":    zerolog.DebugLevel,
	"INFO":     zerolog.InfoLevel,
	"WARNING":  zerolog.WarnLevel,
	"ERROR":    zerolog.ErrorLevel,
	"CRITICAL": zerolog.FatalLevel,
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	})

	if err := newApp().Run(os.Args); err != nil {
		log.Error().Err(err).Msg("failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    appName,
		Usage:   "Export database tables to SQLite, CSV, TSV, Parquet and Feather",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "defines the log level (NOTSET, DEBUG, INFO, WARNING, ERROR, CRITICAL)",
				Value:   "INFO",
				EnvVars: []string{"COM_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML file holding default flag values",
				Value:   defaultConfigPath(),
				EnvVars: []string{"COM_CONFIG"},
			},
		},
		Before: func(cCtx *cli.Context) error {
			return setLogLevel(cCtx.String("log-level"))
		},
		Commands: []*cli.Command{
			newExportCommand(),
			newTablesCommand(),
			newPreviewCommand(),
		},
	}
}

func setLogLevel(name string) error {
	level, ok := logLevels[strings.ToUpper(name)]
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}
	log.Logger = log.Logger.Level(level)
	return nil
}

// defaultConfigPath is the configuration file looked up when --config is
// not given.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, appName+".yaml")
}
