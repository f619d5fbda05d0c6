package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// Migrator applies the embedded schema files (accounts, credentials) in
// lexical order. Applied files are recorded in a schema_migrations ledger,
// so running Migrate on every server start is idempotent.
type Migrator struct {
	db *sql.DB
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{db: conn.DB()}
}

// Migrate applies all pending schema files and returns their names in the
// order applied. A failure leaves earlier files applied and recorded.
func (m *Migrator) Migrate(ctx context.Context) ([]string, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}

	done, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	files, err := m.schemaFiles()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range files {
		if _, ok := done[name]; ok {
			continue
		}

		body, err := schemaFS.ReadFile("migrations/" + name)
		if err != nil {
			return applied, fmt.Errorf("read schema file %s: %w", name, err)
		}
		if err := m.apply(ctx, name, string(body)); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}

	return applied, nil
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	filename TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return fmt.Errorf("ensure schema ledger: %w", err)
	}
	return nil
}

func (m *Migrator) appliedSet(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query schema ledger: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema ledger: %w", err)
		}
		done[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema ledger: %w", err)
	}
	return done, nil
}

func (m *Migrator) schemaFiles() ([]string, error) {
	entries, err := schemaFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one schema file and records it in the ledger, atomically.
func (m *Migrator) apply(ctx context.Context, name, body string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx (%s): %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("apply schema %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename) VALUES ($1) ON CONFLICT DO NOTHING", name); err != nil {
		return fmt.Errorf("record schema %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema %s: %w", name, err)
	}
	return nil
}
