package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand: up, down, status or
// force <version>. Output is written to w.
func RunMigrateCommand(w io.Writer, args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	migrations := MigrationsFS()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
	case "status":
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: anygrow-bridge migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(migrations, version); err != nil {
			return err
		}
	case "help":
		PrintMigrateHelp(w)
		return nil
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	return printStatus(w, database)
}

func printStatus(w io.Writer, database *DB) error {
	migrations := MigrationsFS()
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigration(migrations)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest version:  %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "WARNING: a migration failed mid-execution; inspect the database and use 'migrate force'.")
	} else if version < latest {
		fmt.Fprintf(w, "%d migration(s) pending; run 'migrate up'.\n", latest-version)
	}
	return nil
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: anygrow-bridge migrate <action> [--db-path path]

Actions:
  up                 apply all pending migrations
  down               roll back the most recent migration
  status             show the current schema version
  force <version>    set the recorded version (recovery only)
  help               show this help
`)
}
