package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

// CreateRule stores a new classification rule and fills in its ID.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.ClassificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.createRule(ctx, s.db, rule)
}

func (s *SQLiteStorage) createRule(ctx context.Context, exec dbtx, rule *model.ClassificationRule) error {
	const query = `
		INSERT INTO classification_rules
			(name, priority, match_type, match_value, direction, debit_account, credit_account, requires_approval, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := exec.ExecContext(ctx, query,
		rule.Name, rule.Priority, string(rule.MatchType), rule.MatchValue,
		directionArg(rule.Direction), rule.DebitAccount, rule.CreditAccount,
		rule.RequiresApproval, rule.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = int(id)
	return nil
}

// GetActiveRules fetches active rules in evaluation order.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context) ([]model.ClassificationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getActiveRules(ctx, s.db)
}

func (s *SQLiteStorage) getActiveRules(ctx context.Context, exec dbtx) ([]model.ClassificationRule, error) {
	const query = `
		SELECT id, name, priority, match_type, match_value, direction,
		       debit_account, credit_account, requires_approval, is_active,
		       created_at, updated_at
		FROM classification_rules
		WHERE is_active = 1
		ORDER BY priority, id`

	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := []model.ClassificationRule{}
	for rows.Next() {
		var rule model.ClassificationRule
		var matchType string
		var direction sql.NullString
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Priority, &matchType,
			&rule.MatchValue, &direction, &rule.DebitAccount, &rule.CreditAccount,
			&rule.RequiresApproval, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.MatchType = model.RuleMatchType(matchType)
		if direction.Valid {
			d := model.TransactionDirection(direction.String)
			rule.Direction = &d
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// UpdateRule rewrites an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.ClassificationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.updateRule(ctx, s.db, rule)
}

func (s *SQLiteStorage) updateRule(ctx context.Context, exec dbtx, rule *model.ClassificationRule) error {
	const query = `
		UPDATE classification_rules
		SET name = ?, priority = ?, match_type = ?, match_value = ?, direction = ?,
		    debit_account = ?, credit_account = ?, requires_approval = ?, is_active = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	result, err := exec.ExecContext(ctx, query,
		rule.Name, rule.Priority, string(rule.MatchType), rule.MatchValue,
		directionArg(rule.Direction), rule.DebitAccount, rule.CreditAccount,
		rule.RequiresApproval, rule.IsActive, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, rule.ID)
	}
	return nil
}

// DeleteRule removes a rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteRule(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteRule(ctx context.Context, exec dbtx, id int) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM classification_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	return nil
}

func directionArg(direction *model.TransactionDirection) any {
	if direction == nil {
		return nil
	}
	return string(*direction)
}
