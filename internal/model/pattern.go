package model

import "time"

// Pattern key limits. Keys shorter than the minimum carry too little signal to
// reuse safely; longer keys are truncated so near-identical descriptions
// collapse into one pattern.
const (
	PatternMinLength = 5
	PatternMaxLength = 30
)

// LearnedPattern maps a normalized description fragment to the accounts a
// human confirmed for it, so future occurrences classify automatically.
type LearnedPattern struct {
	CreatedAt         time.Time `json:"created_at"`
	LastUsedAt        time.Time `json:"last_used_at"`
	Pattern           string    `json:"pattern"`
	DebitAccount      string    `json:"debit_account"`
	DebitAccountName  string    `json:"debit_account_name"`
	CreditAccount     string    `json:"credit_account"`
	CreditAccountName string    `json:"credit_account_name"`
	EntryType         string    `json:"entry_type"`
	ID                int       `json:"id"`
	UsageCount        int       `json:"usage_count"`
}
