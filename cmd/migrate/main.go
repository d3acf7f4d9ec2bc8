package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/DJ-Powehi/telegram-secretary/migrations"
)

const usage = `Usage: migrate [-db path] <command>

Commands:
  up       apply all pending migrations
  up-one   apply the next pending migration
  down     roll back the last migration
  status   print migration status
  version  print the current schema version
  reset    roll back everything
`

var commands = map[string]func(*sql.DB, string, ...goose.OptionsFunc) error{
	"up":      goose.Up,
	"up-one":  goose.UpByOne,
	"down":    goose.Down,
	"status":  goose.Status,
	"version": goose.Version,
	"reset":   goose.Reset,
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/secretary.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	run, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set goose dialect: %v", err)
	}

	if err := run(db, "."); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
