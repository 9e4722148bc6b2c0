package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/sink"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [log-file]",
		Short: "Export a JSONL log to CSV or a SQL database",
		Long:  "Reads the JSONL log (default: the configured log file) and writes it as CSV, or upserts it into a SQL table. Re-exporting the same log to SQL inserts nothing new.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().String("format", "csv", "Export format: csv or sql")
	cmd.Flags().StringP("out", "o", "", "CSV output file, - for stdout (default: the log path with a .csv extension)")
	cmd.Flags().String("driver", sink.DriverSQLite, "SQL driver: sqlite, postgres or mysql")
	cmd.Flags().String("dsn", "", "SQL data source name (sqlite: file path)")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	path := logPath(v, args)
	entries, err := sink.ReadLogs(path)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "csv":
		out, _ := cmd.Flags().GetString("out")
		switch out {
		case "-":
			return sink.ExportCSV(cmd.OutOrStdout(), entries)
		case "":
			out = strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		if err := sink.ExportCSV(f, entries); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(entries), out)
		return nil

	case "sql":
		driver, _ := cmd.Flags().GetString("driver")
		dsn, _ := cmd.Flags().GetString("dsn")
		if dsn == "" {
			return fmt.Errorf("--dsn is required for sql export")
		}
		db, err := sink.OpenDB(driver, dsn)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		n, err := sink.ExportSQL(cmd.Context(), db, entries)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Inserted %d of %d entries into %s\n", n, len(entries), driver)
		return nil

	default:
		return fmt.Errorf("unknown export format %q (want csv or sql)", format)
	}
}
