package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					amount REAL NOT NULL,
					direction TEXT NOT NULL,
					reconciled INTEGER NOT NULL DEFAULT 0,
					entry_id TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					reasoning TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_bank_transactions_date ON bank_transactions(date)`,
				`CREATE INDEX idx_bank_transactions_reconciled ON bank_transactions(reconciled)`,

				`CREATE TABLE IF NOT EXISTS companies (
					id TEXT PRIMARY KEY,
					legal_name TEXT NOT NULL,
					trade_name TEXT,
					tax_id TEXT,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS partners (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					company_id TEXT NOT NULL,
					name TEXT NOT NULL,
					role TEXT,
					FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_partners_company ON partners(company_id)`,

				`CREATE TABLE IF NOT EXISTS classification_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					priority INTEGER NOT NULL DEFAULT 100,
					match_type TEXT NOT NULL,
					match_value TEXT NOT NULL,
					direction TEXT,
					debit_account TEXT NOT NULL DEFAULT '',
					credit_account TEXT NOT NULL DEFAULT '',
					requires_approval INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_priority ON classification_rules(priority)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Ledger entries and lines",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					date DATETIME NOT NULL,
					description TEXT,
					entry_type TEXT NOT NULL,
					internal_code TEXT NOT NULL,
					source_type TEXT NOT NULL,
					source_id TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				// One non-reversed entry per source document, enforced by the
				// database rather than by application discipline.
				`CREATE UNIQUE INDEX idx_ledger_entries_source ON ledger_entries(source_type, source_id)`,
				`CREATE INDEX idx_ledger_entries_date ON ledger_entries(date)`,

				`CREATE TABLE IF NOT EXISTS ledger_lines (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					entry_id TEXT NOT NULL,
					line_no INTEGER NOT NULL,
					account TEXT NOT NULL,
					account_name TEXT,
					debit REAL NOT NULL DEFAULT 0,
					credit REAL NOT NULL DEFAULT 0,
					FOREIGN KEY (entry_id) REFERENCES ledger_entries(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_ledger_lines_entry ON ledger_lines(entry_id)`,
				`CREATE INDEX idx_ledger_lines_account ON ledger_lines(account)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Learned patterns",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS learned_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pattern TEXT UNIQUE NOT NULL,
					debit_account TEXT NOT NULL,
					debit_account_name TEXT,
					credit_account TEXT NOT NULL,
					credit_account_name TEXT,
					entry_type TEXT,
					usage_count INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					last_used_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Month closings, outstanding receivables and legacy balances",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS month_closings (
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					status TEXT NOT NULL,
					blocked_by TEXT,
					notes TEXT,
					closed_at DATETIME,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (year, month)
				)`,

				`CREATE TABLE IF NOT EXISTS outstanding_receivables (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					company_id TEXT NOT NULL,
					due_date DATETIME NOT NULL,
					amount REAL NOT NULL,
					remaining REAL NOT NULL,
					FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_outstanding_company ON outstanding_receivables(company_id)`,
				`CREATE INDEX idx_outstanding_due ON outstanding_receivables(due_date)`,

				`CREATE TABLE IF NOT EXISTS legacy_balances (
					company_id TEXT PRIMARY KEY,
					amount REAL NOT NULL DEFAULT 0,
					FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "Pending decisions for escalated transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// The escalated decision (question, options, suggested
				// accounts) is kept on the transaction until a human
				// resolves it.
				`ALTER TABLE bank_transactions ADD COLUMN pending_decision TEXT`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
