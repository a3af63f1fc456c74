package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

// GetMonthClosing fetches the governance record for a period. A period that
// was never touched returns a fresh OPEN record rather than an error.
func (s *SQLiteStorage) GetMonthClosing(ctx context.Context, year, month int) (*model.MonthClosing, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePeriod(year, month); err != nil {
		return nil, err
	}
	return s.getMonthClosing(ctx, s.db, year, month)
}

func (s *SQLiteStorage) getMonthClosing(ctx context.Context, exec dbtx, year, month int) (*model.MonthClosing, error) {
	const query = `
		SELECT year, month, status, blocked_by, notes, closed_at, updated_at
		FROM month_closings
		WHERE year = ? AND month = ?`

	var closing model.MonthClosing
	var blockedBy, notes sql.NullString
	var closedAt sql.NullTime
	var status string

	err := exec.QueryRowContext(ctx, query, year, month).Scan(
		&closing.Year, &closing.Month, &status, &blockedBy, &notes, &closedAt, &closing.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.MonthClosing{Year: year, Month: month, Status: model.ClosingOpen}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get month closing: %w", err)
	}

	closing.Status = model.ClosingStatus(status)
	closing.Notes = notes.String
	if closedAt.Valid {
		t := closedAt.Time
		closing.ClosedAt = &t
	}
	if blockedBy.Valid && blockedBy.String != "" {
		if err := json.Unmarshal([]byte(blockedBy.String), &closing.BlockedBy); err != nil {
			return nil, fmt.Errorf("failed to decode blocked_by: %w", err)
		}
	}
	return &closing, nil
}

// SaveMonthClosing upserts the governance record. A CLOSED period is
// terminal; overwriting it is refused.
func (s *SQLiteStorage) SaveMonthClosing(ctx context.Context, closing *model.MonthClosing) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if closing == nil {
		return fmt.Errorf("%w: closing", ErrNilParameter)
	}
	if err := validatePeriod(closing.Year, closing.Month); err != nil {
		return err
	}
	return s.saveMonthClosing(ctx, s.db, closing)
}

func (s *SQLiteStorage) saveMonthClosing(ctx context.Context, exec dbtx, closing *model.MonthClosing) error {
	existing, err := s.getMonthClosing(ctx, exec, closing.Year, closing.Month)
	if err != nil {
		return err
	}
	if existing.IsClosed() {
		return fmt.Errorf("%w: %04d-%02d", common.ErrPeriodClosed, closing.Year, closing.Month)
	}

	var blockedBy any
	if len(closing.BlockedBy) > 0 {
		encoded, err := json.Marshal(closing.BlockedBy)
		if err != nil {
			return fmt.Errorf("failed to encode blocked_by: %w", err)
		}
		blockedBy = string(encoded)
	}

	const query = `
		INSERT INTO month_closings (year, month, status, blocked_by, notes, closed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(year, month) DO UPDATE SET
			status = excluded.status,
			blocked_by = excluded.blocked_by,
			notes = excluded.notes,
			closed_at = excluded.closed_at,
			updated_at = CURRENT_TIMESTAMP`

	var closedAt any
	if closing.ClosedAt != nil {
		closedAt = *closing.ClosedAt
	}
	if _, err := exec.ExecContext(ctx, query,
		closing.Year, closing.Month, string(closing.Status), blockedBy, closing.Notes, closedAt); err != nil {
		return fmt.Errorf("failed to save month closing: %w", err)
	}
	return nil
}
