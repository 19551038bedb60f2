package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"cryptonews_bot/internal/logging"
	"cryptonews_bot/migrations"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] [-log-level level] <command>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range migrations.Commands {
		fmt.Fprintf(os.Stderr, "  %-10s  %s\n", c[0], c[1])
	}
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")
	level := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "log level")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	log := logging.New(os.Stderr, *level).With("component", "migrate", "db", *dbPath)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Error("create database directory", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Command(db, cmd); err != nil {
		log.Error("migration failed", "command", cmd, "error", err)
		os.Exit(1)
	}

	version, err := migrations.Version(db)
	if err != nil {
		log.Warn("read schema version", "error", err)
		return
	}
	log.Info("done", "command", cmd, "version", version)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
