package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redlytics/redlytics/internal/export"
	"github.com/redlytics/redlytics/internal/setup"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := &cli.Command{
		Name:  "export",
		Usage: "Dump the aggregate buckets for offline analysis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "export",
				Usage:   "Output directory for the dump",
			},
			&cli.StringSliceFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   []string{string(export.FormatCSV), string(export.FormatSQLite)},
				Usage:   "Export formats to write (csv, sqlite)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runExport(ctx, c.String("out"), c.StringSlice("format"))
		},
	}

	return cmd.Run(context.Background(), os.Args)
}

func runExport(ctx context.Context, outDir string, formatNames []string) error {
	app, err := setup.InitializeApp()
	if err != nil {
		return err
	}
	defer app.Cleanup()

	formats := make([]export.Format, len(formatNames))
	for i, name := range formatNames {
		formats[i] = export.Format(name)
	}

	exporter := export.New(app.Stats, outDir, formats, app.Logger)
	if err := exporter.ExportAll(ctx); err != nil {
		return err
	}

	fmt.Printf("Export written to %s\n", outDir)

	return nil
}
