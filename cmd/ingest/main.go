package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"tabbacklog/internal/util"
	"tabbacklog/pkg/firefox"
	"tabbacklog/pkg/store"
)

func main() {
	app := &cli.App{
		Name:  "ingest",
		Usage: "import Firefox bookmark exports into the tab backlog",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "parse a bookmarks HTML export and insert the tabs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "bookmarks HTML export path", Required: true},
					&cli.StringFlag{Name: "owner-id", Usage: "owner UUID", Required: true},
					&cli.StringFlag{Name: "database-dsn", Usage: "Postgres DSN", EnvVars: []string{"DATABASE_DSN"}},
					&cli.BoolFlag{Name: "dry-run", Usage: "parse and count without writing"},
					&cli.StringFlag{Name: "log-level", Value: "info"},
				},
				Action: importAction,
			},
			{
				Name:  "stats",
				Usage: "summarize the session folders in an export",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "bookmarks HTML export path", Required: true},
				},
				Action: statsAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func importAction(c *cli.Context) error {
	logger := util.InitLogger(c.String("log-level"))

	ownerID, err := uuid.Parse(c.String("owner-id"))
	if err != nil {
		return fmt.Errorf("owner-id must be a UUID: %w", err)
	}

	f, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	bookmarks, err := firefox.Parse(f)
	if err != nil {
		return err
	}
	logger.Info("parsed bookmarks export", "file", c.String("file"), "bookmarks", len(bookmarks))

	dryRun := c.Bool("dry-run")
	var st store.Store
	if dryRun {
		st = store.NewMemoryStore()
	} else {
		dsn := c.String("database-dsn")
		if dsn == "" {
			return fmt.Errorf("database-dsn is required unless --dry-run is set")
		}
		st, err = store.NewGormStore(dsn)
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
	}

	report := runImport(st, ownerID.String(), bookmarks, dryRun)
	logger.Info("import finished",
		"dryRun", dryRun,
		"total", report.Total,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	if report.Errors > 0 {
		return fmt.Errorf("%d of %d inserts failed", report.Errors, report.Total)
	}
	return nil
}

func statsAction(c *cli.Context) error {
	f, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	stats, err := firefox.ReadStats(f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
