package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/service"
)

// SaveTransactions stores statement rows, silently skipping duplicates by
// content hash so re-importing the same statement is harmless.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.BankTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}
	return s.saveTransactions(ctx, s.db, transactions)
}

func (s *SQLiteStorage) saveTransactions(ctx context.Context, exec dbtx, transactions []model.BankTransaction) error {
	const query = `
		INSERT INTO bank_transactions (id, hash, date, description, amount, direction, reconciled, entry_id, confidence, reasoning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`

	for i := range transactions {
		txn := &transactions[i]
		hash := txn.GenerateHash()
		if _, err := exec.ExecContext(ctx, query,
			txn.ID, hash, txn.Date, txn.Description, txn.Amount, string(txn.Direction),
			txn.Reconciled, nullString(txn.EntryID), txn.Confidence, txn.Reasoning); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// GetTransactionByID fetches a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransactionByID(ctx, s.db, id)
}

func (s *SQLiteStorage) getTransactionByID(ctx context.Context, exec dbtx, id string) (*model.BankTransaction, error) {
	const query = `
		SELECT id, date, description, amount, direction, reconciled, entry_id, confidence, reasoning
		FROM bank_transactions
		WHERE id = ?`

	txn, err := scanTransaction(exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions fetches transactions matching the filter, oldest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTransactions(ctx, s.db, filter)
}

func (s *SQLiteStorage) getTransactions(ctx context.Context, exec dbtx, filter service.TransactionFilter) ([]model.BankTransaction, error) {
	query := `
		SELECT id, date, description, amount, direction, reconciled, entry_id, confidence, reasoning
		FROM bank_transactions
		WHERE 1=1`
	args := []any{}

	if filter.StartDate != nil {
		query += " AND date >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND date <= ?"
		args = append(args, *filter.EndDate)
	}
	if filter.Direction != nil {
		query += " AND direction = ?"
		args = append(args, string(*filter.Direction))
	}
	if filter.OnlyPending {
		query += " AND reconciled = 0"
	}
	query += " ORDER BY date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

// GetPendingTransactions fetches the unreconciled transactions of a period.
func (s *SQLiteStorage) GetPendingTransactions(ctx context.Context, year, month int) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return s.getPendingTransactions(ctx, s.db, year, month)
}

func (s *SQLiteStorage) getPendingTransactions(ctx context.Context, exec dbtx, year, month int) ([]model.BankTransaction, error) {
	start, end := periodBounds(year, month)

	const query = `
		SELECT id, date, description, amount, direction, reconciled, entry_id, confidence, reasoning
		FROM bank_transactions
		WHERE reconciled = 0 AND date >= ? AND date < ?
		ORDER BY date, id`

	rows, err := exec.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTransactions(rows)
}

// MarkTransactionReconciled links a transaction to its ledger entry.
func (s *SQLiteStorage) MarkTransactionReconciled(ctx context.Context, id, entryID string, confidence float64, reasoning string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.markTransactionReconciled(ctx, s.db, id, entryID, confidence, reasoning)
}

func (s *SQLiteStorage) markTransactionReconciled(ctx context.Context, exec dbtx, id, entryID string, confidence float64, reasoning string) error {
	// Reconciliation resolves any escalation, so the pending decision is
	// cleared in the same statement.
	const query = `
		UPDATE bank_transactions
		SET reconciled = 1, entry_id = ?, confidence = ?, reasoning = ?, pending_decision = NULL
		WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, entryID, confidence, reasoning, id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reconciled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.BankTransaction, error) {
	var txn model.BankTransaction
	var direction string
	var entryID, reasoning sql.NullString

	err := row.Scan(&txn.ID, &txn.Date, &txn.Description, &txn.Amount, &direction,
		&txn.Reconciled, &entryID, &txn.Confidence, &reasoning)
	if err != nil {
		return nil, err
	}

	txn.Direction = model.TransactionDirection(direction)
	txn.EntryID = entryID.String
	txn.Reasoning = reasoning.String
	return &txn, nil
}

func collectTransactions(rows *sql.Rows) ([]model.BankTransaction, error) {
	transactions := []model.BankTransaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// periodBounds returns the half-open [start, end) interval of a month.
func periodBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
