package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/service"
)

// SaveEscalation attaches an escalated decision to its transaction so the
// question survives until a human answers it. The transaction's confidence
// and reasoning are updated to the decision's values.
func (s *SQLiteStorage) SaveEscalation(ctx context.Context, id string, decision *model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if decision == nil {
		return fmt.Errorf("%w: decision", ErrNilParameter)
	}
	return s.saveEscalation(ctx, s.db, id, decision)
}

func (s *SQLiteStorage) saveEscalation(ctx context.Context, exec dbtx, id string, decision *model.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode pending decision: %w", err)
	}

	const query = `
		UPDATE bank_transactions
		SET pending_decision = ?, confidence = ?, reasoning = ?
		WHERE id = ? AND reconciled = 0`

	result, err := exec.ExecContext(ctx, query, string(payload), decision.Confidence, decision.Reasoning, id)
	if err != nil {
		return fmt.Errorf("failed to save escalation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pending transaction %s", common.ErrNotFound, id)
	}
	return nil
}

// GetEscalation fetches the decision awaiting a human answer for one
// transaction. A transaction with no pending decision reports ErrNotFound.
func (s *SQLiteStorage) GetEscalation(ctx context.Context, id string) (*model.Decision, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getEscalation(ctx, s.db, id)
}

func (s *SQLiteStorage) getEscalation(ctx context.Context, exec dbtx, id string) (*model.Decision, error) {
	const query = `
		SELECT pending_decision
		FROM bank_transactions
		WHERE id = ?`

	var payload sql.NullString
	err := exec.QueryRowContext(ctx, query, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	if !payload.Valid || payload.String == "" {
		return nil, fmt.Errorf("%w: transaction %s has no pending decision", common.ErrNotFound, id)
	}

	var decision model.Decision
	if err := json.Unmarshal([]byte(payload.String), &decision); err != nil {
		return nil, fmt.Errorf("failed to decode pending decision for %s: %w", id, err)
	}
	return &decision, nil
}

// GetEscalatedTransactions fetches the period's transactions waiting on a
// human answer, oldest first, each paired with its pending decision.
func (s *SQLiteStorage) GetEscalatedTransactions(ctx context.Context, year, month int) ([]service.Escalation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return s.getEscalatedTransactions(ctx, s.db, year, month)
}

func (s *SQLiteStorage) getEscalatedTransactions(ctx context.Context, exec dbtx, year, month int) ([]service.Escalation, error) {
	start, end := periodBounds(year, month)

	const query = `
		SELECT id, date, description, amount, direction, reconciled, entry_id, confidence, reasoning, pending_decision
		FROM bank_transactions
		WHERE reconciled = 0 AND pending_decision IS NOT NULL AND date >= ? AND date < ?
		ORDER BY date, id`

	rows, err := exec.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalated transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	escalations := []service.Escalation{}
	for rows.Next() {
		var txn model.BankTransaction
		var direction, payload string
		var entryID, reasoning sql.NullString

		err := rows.Scan(&txn.ID, &txn.Date, &txn.Description, &txn.Amount, &direction,
			&txn.Reconciled, &entryID, &txn.Confidence, &reasoning, &payload)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalated transaction: %w", err)
		}
		txn.Direction = model.TransactionDirection(direction)
		txn.EntryID = entryID.String
		txn.Reasoning = reasoning.String

		var decision model.Decision
		if err := json.Unmarshal([]byte(payload), &decision); err != nil {
			return nil, fmt.Errorf("failed to decode pending decision for %s: %w", txn.ID, err)
		}
		escalations = append(escalations, service.Escalation{Transaction: txn, Decision: decision})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalated transactions: %w", err)
	}
	return escalations, nil
}
