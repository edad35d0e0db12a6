package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"billfred/internal/storage"
	"billfred/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./chatlog.db"), "path to the chat log database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Create missing tables")
		fmt.Fprintln(os.Stderr, "  layout      Upgrade a legacy chat_log layout and record the schema version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show the goose version and the chat log schema history")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		log.Fatal(err)
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "layout":
		err = layout(db)
	case "status":
		err = goose.Status(db, ".")
	case "version":
		if err = goose.Version(db, "."); err == nil {
			err = printHistory(db)
		}
	case "down":
		err = goose.Down(db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func layout(db *sql.DB) error {
	if err := goose.Up(db, "."); err != nil {
		return err
	}
	migrated, err := storage.MigrateLayout(context.Background(), db, time.Now())
	if err != nil {
		return err
	}
	if migrated {
		fmt.Printf("chat log migrated to schema version %s\n", storage.CurrentSchemaVersion)
	} else {
		fmt.Printf("chat log already at schema version %s\n", storage.CurrentSchemaVersion)
	}
	return nil
}

func printHistory(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, time, version FROM schema_version ORDER BY time, id`)
	if err != nil {
		return fmt.Errorf("query schema versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id      int64
			applied int64
			version string
		)
		if err := rows.Scan(&id, &applied, &version); err != nil {
			return fmt.Errorf("scan schema version: %w", err)
		}
		fmt.Printf("%d\t%s\t%s\n", id, time.Unix(applied, 0).UTC().Format(time.RFC3339), version)
	}
	return rows.Err()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
