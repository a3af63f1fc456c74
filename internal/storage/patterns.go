package storage

import (
	"context"
	"fmt"

	"github.com/amplafin/contaflow/internal/model"
)

// GetLearnedPatterns fetches all learned patterns, most used first.
func (s *SQLiteStorage) GetLearnedPatterns(ctx context.Context) ([]model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getLearnedPatterns(ctx, s.db)
}

func (s *SQLiteStorage) getLearnedPatterns(ctx context.Context, exec dbtx) ([]model.LearnedPattern, error) {
	const query = `
		SELECT id, pattern, debit_account, debit_account_name,
		       credit_account, credit_account_name, entry_type,
		       usage_count, created_at, last_used_at
		FROM learned_patterns
		ORDER BY usage_count DESC, pattern`

	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	patterns := []model.LearnedPattern{}
	for rows.Next() {
		var p model.LearnedPattern
		if err := rows.Scan(&p.ID, &p.Pattern, &p.DebitAccount, &p.DebitAccountName,
			&p.CreditAccount, &p.CreditAccountName, &p.EntryType,
			&p.UsageCount, &p.CreatedAt, &p.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate learned patterns: %w", err)
	}
	return patterns, nil
}

// UpsertLearnedPattern inserts a pattern or, when the key already exists,
// refreshes its accounts and bumps usage_count and last_used_at.
func (s *SQLiteStorage) UpsertLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}
	return s.upsertLearnedPattern(ctx, s.db, pattern)
}

func (s *SQLiteStorage) upsertLearnedPattern(ctx context.Context, exec dbtx, pattern *model.LearnedPattern) error {
	const query = `
		INSERT INTO learned_patterns
			(pattern, debit_account, debit_account_name, credit_account, credit_account_name, entry_type, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(pattern) DO UPDATE SET
			debit_account = excluded.debit_account,
			debit_account_name = excluded.debit_account_name,
			credit_account = excluded.credit_account,
			credit_account_name = excluded.credit_account_name,
			entry_type = excluded.entry_type,
			usage_count = usage_count + 1,
			last_used_at = CURRENT_TIMESTAMP`

	if _, err := exec.ExecContext(ctx, query,
		pattern.Pattern, pattern.DebitAccount, pattern.DebitAccountName,
		pattern.CreditAccount, pattern.CreditAccountName, pattern.EntryType); err != nil {
		return fmt.Errorf("failed to upsert learned pattern: %w", err)
	}
	return nil
}
