package model

import "time"

// ClosingStatus tracks the month-closing workflow state.
type ClosingStatus string

// Closing status constants. CLOSED is terminal.
const (
	ClosingOpen        ClosingStatus = "OPEN"
	ClosingClassifying ClosingStatus = "CLASSIFYING"
	ClosingValidating  ClosingStatus = "VALIDATING"
	ClosingBlocked     ClosingStatus = "BLOCKED"
	ClosingClosed      ClosingStatus = "CLOSED"
)

// CanTransition reports whether the workflow may move from s to next.
func (s ClosingStatus) CanTransition(next ClosingStatus) bool {
	switch s {
	case ClosingOpen:
		return next == ClosingClassifying
	case ClosingClassifying:
		return next == ClosingValidating
	case ClosingValidating:
		return next == ClosingBlocked || next == ClosingClosed
	case ClosingBlocked:
		return next == ClosingValidating || next == ClosingClassifying
	case ClosingClosed:
		return false
	}
	return false
}

// MonthClosing is the governance record for one accounting period.
type MonthClosing struct {
	ClosedAt  *time.Time    `json:"closed_at,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
	Status    ClosingStatus `json:"status"`
	Notes     string        `json:"notes"`
	BlockedBy []string      `json:"blocked_by,omitempty"`
	Year      int           `json:"year"`
	Month     int           `json:"month"`
}

// IsClosed reports whether the period reached the terminal state.
func (m *MonthClosing) IsClosed() bool {
	return m.Status == ClosingClosed
}
