// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/amplafin/contaflow/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate   *time.Time
	EndDate     *time.Time
	Direction   *model.TransactionDirection
	OnlyPending bool
	Limit       int
	Offset      int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.BankTransaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.BankTransaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.BankTransaction, error)
	GetPendingTransactions(ctx context.Context, year, month int) ([]model.BankTransaction, error)
	MarkTransactionReconciled(ctx context.Context, id, entryID string, confidence float64, reasoning string) error

	// Escalation operations
	SaveEscalation(ctx context.Context, id string, decision *model.Decision) error
	GetEscalation(ctx context.Context, id string) (*model.Decision, error)
	GetEscalatedTransactions(ctx context.Context, year, month int) ([]Escalation, error)

	// Registry operations
	SaveCompany(ctx context.Context, company *model.Company) error
	GetCompanyByID(ctx context.Context, id string) (*model.Company, error)
	GetActiveCompanies(ctx context.Context) ([]model.Company, error)
	GetOutstandingByCompanies(ctx context.Context, companyIDs []string) ([]model.Outstanding, error)
	GetLegacyBalance(ctx context.Context, companyID string) (float64, error)
	GetLegacyBalances(ctx context.Context) (map[string]float64, error)
	ReduceOutstanding(ctx context.Context, companyID string, dueDate time.Time, amount float64) error

	// Rule operations
	CreateRule(ctx context.Context, rule *model.ClassificationRule) error
	GetActiveRules(ctx context.Context) ([]model.ClassificationRule, error)
	UpdateRule(ctx context.Context, rule *model.ClassificationRule) error
	DeleteRule(ctx context.Context, id int) error

	// Learned pattern operations
	GetLearnedPatterns(ctx context.Context) ([]model.LearnedPattern, error)
	UpsertLearnedPattern(ctx context.Context, pattern *model.LearnedPattern) error

	// Ledger operations
	CreateLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error
	GetLedgerEntryByID(ctx context.Context, id string) (*model.LedgerEntry, error)
	GetLedgerEntryBySource(ctx context.Context, sourceType, sourceID string) (*model.LedgerEntry, error)
	GetSuspenseBalances(ctx context.Context, year, month int, accounts []string) ([]model.SuspenseBalance, error)
	GetUnbalancedEntries(ctx context.Context, year, month int) ([]string, error)

	// Month closing operations
	GetMonthClosing(ctx context.Context, year, month int) (*model.MonthClosing, error)
	SaveMonthClosing(ctx context.Context, closing *model.MonthClosing) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// Escalation pairs a pending transaction with the decision awaiting a human
// answer.
type Escalation struct {
	Transaction model.BankTransaction
	Decision    model.Decision
}

// ClassifyStats shows the results of a batch classification run.
type ClassifyStats struct {
	Total     int
	Auto      int
	Escalated int
	Skipped   int
	Errors    int
	Duration  time.Duration
}

// MonthStatus aggregates everything the close command reports for a period.
type MonthStatus struct {
	Closing          *model.MonthClosing
	SuspenseBalances []model.SuspenseBalance
	Total            int
	Reconciled       int
	Pending          int
}

// CloseResult is the outcome of a guarded close attempt. A blocked close is a
// refusal, not an error.
type CloseResult struct {
	BlockedBy []string
	OK        bool
}

// RetryOptions configures retry behavior.
type RetryOptions struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}
