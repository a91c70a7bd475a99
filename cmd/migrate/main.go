package main

import (
	"context"
	"database/sql"
	"os"
	"sort"
	"time"

	"queuesync/internal/logfields"
	"queuesync/internal/migrations"
	"queuesync/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	dbPath := flag.String("db", "./queuesync.db", "Path to the database file")
	status := flag.Bool("status", false, "List migrations and whether they are applied, then exit")
	flag.Parse()

	logger := logfields.NewLogger("info", false)

	if err := security.ValidateFilePath(*dbPath); err != nil {
		logger.Fatalf("Invalid database path: %v", err)
	}
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) && *status {
		logger.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *status {
		if err := printStatus(ctx, db, logger); err != nil {
			logger.Fatalf("Failed to read migration status: %v", err)
		}
		return
	}

	ran, err := migrations.Apply(ctx, db)
	if err != nil {
		logger.WithField("applied", ran).Fatalf("Migration failed: %v", err)
	}
	if len(ran) == 0 {
		logger.Info("Schema is up to date")
		return
	}
	sort.Ints(ran)
	logger.WithField("versions", ran).Info("Migrations applied")
}

func printStatus(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	all, err := migrations.List()
	if err != nil {
		return err
	}
	applied, err := migrations.AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range all {
		logger.WithFields(logrus.Fields{
			"version": m.Version,
			"name":    m.Name,
			"applied": applied[m.Version],
		}).Info("Migration")
	}
	return nil
}
