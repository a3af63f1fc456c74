package model

import "time"

// RuleMatchType represents how a classification rule matches a description.
type RuleMatchType string

// Rule match type constants.
const (
	MatchExact     RuleMatchType = "exact"
	MatchSubstring RuleMatchType = "substring"
	MatchRegex     RuleMatchType = "regex"
)

// ClassificationRule maps a description pattern to a pair of ledger accounts.
// Rules are evaluated in ascending priority order; the first active match wins.
type ClassificationRule struct {
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	Name             string                `json:"name"`
	MatchType        RuleMatchType         `json:"match_type"`
	MatchValue       string                `json:"match_value"`
	Direction        *TransactionDirection `json:"direction,omitempty"`
	DebitAccount     string                `json:"debit_account"`
	CreditAccount    string                `json:"credit_account"`
	ID               int                   `json:"id"`
	Priority         int                   `json:"priority"`
	RequiresApproval bool                  `json:"requires_approval"`
	IsActive         bool                  `json:"is_active"`
}

// IsRedirect reports whether the rule routes the transaction into a dedicated
// sub-flow instead of posting directly. A rule with no destination accounts is
// a deliberate block, e.g. group payments that need waterfall allocation.
func (r *ClassificationRule) IsRedirect() bool {
	return r.DebitAccount == "" && r.CreditAccount == ""
}
