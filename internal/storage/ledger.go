package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

// CreateLedgerEntry inserts an entry with its lines atomically. A second
// entry for the same (source_type, source_id) is rejected by the unique
// index and surfaces as ErrDuplicateEntry.
func (s *SQLiteStorage) CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.createLedgerEntry(ctx, tx, entry); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) createLedgerEntry(ctx context.Context, exec dbtx, entry *model.LedgerEntry) error {
	const insertEntry = `
		INSERT INTO ledger_entries (id, date, description, entry_type, internal_code, source_type, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := exec.ExecContext(ctx, insertEntry,
		entry.ID, entry.Date, entry.Description, entry.EntryType,
		entry.InternalCode, entry.SourceType, entry.SourceID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: entry for %s/%s already exists",
				common.ErrDuplicateEntry, entry.SourceType, entry.SourceID)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	const insertLine = `
		INSERT INTO ledger_lines (entry_id, line_no, account, account_name, debit, credit)
		VALUES (?, ?, ?, ?, ?, ?)`

	for i, line := range entry.Lines {
		if _, err := exec.ExecContext(ctx, insertLine,
			entry.ID, i, line.Account, line.AccountName, line.Debit, line.Credit); err != nil {
			return fmt.Errorf("failed to insert ledger line %d: %w", i, err)
		}
	}
	return nil
}

// GetLedgerEntryByID fetches one entry with its lines.
func (s *SQLiteStorage) GetLedgerEntryByID(ctx context.Context, id string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getLedgerEntryByID(ctx, s.db, id)
}

func (s *SQLiteStorage) getLedgerEntryByID(ctx context.Context, exec dbtx, id string) (*model.LedgerEntry, error) {
	const query = `
		SELECT id, date, description, entry_type, internal_code, source_type, source_id
		FROM ledger_entries
		WHERE id = ?`
	return s.scanEntryWithLines(ctx, exec, exec.QueryRowContext(ctx, query, id), "entry "+id)
}

// GetLedgerEntryBySource fetches the entry posted for a source document.
func (s *SQLiteStorage) GetLedgerEntryBySource(ctx context.Context, sourceType, sourceID string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sourceType, "sourceType"); err != nil {
		return nil, err
	}
	if err := validateString(sourceID, "sourceID"); err != nil {
		return nil, err
	}
	return s.getLedgerEntryBySource(ctx, s.db, sourceType, sourceID)
}

func (s *SQLiteStorage) getLedgerEntryBySource(ctx context.Context, exec dbtx, sourceType, sourceID string) (*model.LedgerEntry, error) {
	const query = `
		SELECT id, date, description, entry_type, internal_code, source_type, source_id
		FROM ledger_entries
		WHERE source_type = ? AND source_id = ?`
	return s.scanEntryWithLines(ctx, exec,
		exec.QueryRowContext(ctx, query, sourceType, sourceID),
		fmt.Sprintf("entry for %s/%s", sourceType, sourceID))
}

func (s *SQLiteStorage) scanEntryWithLines(ctx context.Context, exec dbtx, row *sql.Row, what string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	var description sql.NullString
	err := row.Scan(&entry.ID, &entry.Date, &description, &entry.EntryType,
		&entry.InternalCode, &entry.SourceType, &entry.SourceID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, what)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	entry.Description = description.String

	const linesQuery = `
		SELECT account, account_name, debit, credit
		FROM ledger_lines
		WHERE entry_id = ?
		ORDER BY line_no`

	rows, err := exec.QueryContext(ctx, linesQuery, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line model.LedgerLine
		var accountName sql.NullString
		if err := rows.Scan(&line.Account, &accountName, &line.Debit, &line.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan ledger line: %w", err)
		}
		line.AccountName = accountName.String
		entry.Lines = append(entry.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger lines: %w", err)
	}
	return &entry, nil
}

// GetSuspenseBalances aggregates the given accounts over one month. Accounts
// with no postings in the period are omitted.
func (s *SQLiteStorage) GetSuspenseBalances(ctx context.Context, year, month int, accounts []string) ([]model.SuspenseBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return s.getSuspenseBalances(ctx, s.db, year, month, accounts)
}

func (s *SQLiteStorage) getSuspenseBalances(ctx context.Context, exec dbtx, year, month int, accounts []string) ([]model.SuspenseBalance, error) {
	balances := []model.SuspenseBalance{}
	if len(accounts) == 0 {
		return balances, nil
	}

	start, end := periodBounds(year, month)
	query := `
		SELECT l.account, COALESCE(MAX(l.account_name), ''), SUM(l.debit), SUM(l.credit)
		FROM ledger_lines l
		JOIN ledger_entries e ON e.id = l.entry_id
		WHERE e.date >= ? AND e.date < ? AND l.account IN (` + placeholders(len(accounts)) + `)
		GROUP BY l.account
		ORDER BY l.account`

	args := []any{start, end}
	args = append(args, stringArgs(accounts)...)

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspense balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var b model.SuspenseBalance
		if err := rows.Scan(&b.Account, &b.AccountName, &b.Debits, &b.Credits); err != nil {
			return nil, fmt.Errorf("failed to scan suspense balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suspense balances: %w", err)
	}
	return balances, nil
}

// GetUnbalancedEntries returns the IDs of entries in the period whose debit
// and credit totals disagree. A healthy ledger returns none; the close guard
// still checks.
func (s *SQLiteStorage) GetUnbalancedEntries(ctx context.Context, year, month int) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return s.getUnbalancedEntries(ctx, s.db, year, month)
}

func (s *SQLiteStorage) getUnbalancedEntries(ctx context.Context, exec dbtx, year, month int) ([]string, error) {
	start, end := periodBounds(year, month)
	query := fmt.Sprintf(`
		SELECT e.id
		FROM ledger_entries e
		JOIN ledger_lines l ON l.entry_id = e.id
		WHERE e.date >= ? AND e.date < ?
		GROUP BY e.id
		HAVING ABS(SUM(l.debit) - SUM(l.credit)) > %f
		ORDER BY e.id`, model.BalanceEpsilon)

	rows, err := exec.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unbalanced entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unbalanced entries: %w", err)
	}
	return ids, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// rejection.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
