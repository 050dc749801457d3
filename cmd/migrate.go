package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/octave-core/internal/config"
	"github.com/shaharia-lab/octave-core/internal/storage"
)

// databaseMigrationReport is one database's entry in migration.log.json.
type databaseMigrationReport struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	FreshlyCreated bool   `json:"freshly_created"`
	SchemaVersion  int    `json:"schema_version"`
}

// migrationReport is the full report written to migration.log.json, per
// spec.md §6's on-disk layout.
type migrationReport struct {
	RanAt     string                    `json:"ran_at"`
	Databases []databaseMigrationReport `json:"databases"`
}

// NewMigrateCmd returns the "migrate" subcommand: it opens both PL
// databases (applying any pending migrations in numeric order, each
// wrapped transactionally per spec.md §4.1) and writes a JSON report to
// migration.log.json.
func NewMigrateCmd(cfg *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending PL schema migrations and write a report",
		Long: `Opens conversations.db and memory.db, applying any migration versions
newer than what is already recorded in schema_migrations. A failed migration
aborts before the report is written and leaves the database untouched.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrate(cfg)
		},
	}
}

func runMigrate(cfg *config.AppConfig) error {
	for _, dir := range []string{cfg.DataDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	report := migrationReport{RanAt: time.Now().UTC().Format(time.RFC3339)}

	convReport, err := migrateOneDB("conversations", cfg.ConversationsDBPath(), storage.NewConversationsDB)
	if err != nil {
		return err
	}
	report.Databases = append(report.Databases, convReport)

	memReport, err := migrateOneDB("memory", cfg.MemoryDBPath(), storage.NewMemoryDB)
	if err != nil {
		return err
	}
	report.Databases = append(report.Databases, memReport)

	if err := writeMigrationReport(cfg.MigrationLogPath(), report); err != nil {
		return err
	}

	for _, db := range report.Databases {
		state := "already up to date"
		if db.FreshlyCreated {
			state = "freshly created"
		}
		fmt.Printf("%-14s schema v%-3d  (%s)  %s\n", db.Name, db.SchemaVersion, state, db.Path)
	}
	fmt.Printf("report written to %s\n", cfg.MigrationLogPath())
	return nil
}

func migrateOneDB(
	name, path string, open func(string) (*sql.DB, bool, error),
) (databaseMigrationReport, error) {
	db, fresh, err := open(path)
	if err != nil {
		return databaseMigrationReport{}, fmt.Errorf("migrating %s database: %w", name, err)
	}
	defer db.Close() //nolint:errcheck // best-effort close after a one-shot CLI command

	version, err := storage.SchemaVersion(context.Background(), db)
	if err != nil {
		return databaseMigrationReport{}, fmt.Errorf("reading %s schema version: %w", name, err)
	}

	return databaseMigrationReport{
		Name:           name,
		Path:           path,
		FreshlyCreated: fresh,
		SchemaVersion:  version,
	}, nil
}

func writeMigrationReport(path string, report migrationReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding migration report: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing migration report %q: %w", path, err)
	}
	return nil
}
