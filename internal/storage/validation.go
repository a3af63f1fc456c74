// Package storage provides the data persistence layer for the contaflow application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amplafin/contaflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidPeriod      = errors.New("invalid accounting period")
	ErrInvalidDirection   = errors.New("invalid transaction direction")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidCompany     = errors.New("invalid company")
	ErrInvalidRule        = errors.New("invalid rule")
	ErrInvalidEntry       = errors.New("invalid ledger entry")
	ErrInvalidPattern     = errors.New("invalid learned pattern")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePeriod ensures year and month identify a real calendar month.
func validatePeriod(year, month int) error {
	if year < 2000 || year > 2200 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.BankTransaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.BankTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Description == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	switch txn.Direction {
	case model.DirectionCredit, model.DirectionDebit:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, txn.Direction)
	}
	return nil
}

// validateCompany validates a registry company.
func validateCompany(company *model.Company) error {
	if company == nil {
		return fmt.Errorf("%w: company", ErrNilParameter)
	}
	if strings.TrimSpace(company.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCompany)
	}
	if strings.TrimSpace(company.LegalName) == "" {
		return fmt.Errorf("%w: missing legal name", ErrInvalidCompany)
	}
	for i, partner := range company.Partners {
		if strings.TrimSpace(partner.Name) == "" {
			return fmt.Errorf("%w: partner at index %d has no name", ErrInvalidCompany, i)
		}
	}
	return nil
}

// validateRule validates a classification rule.
func validateRule(rule *model.ClassificationRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRule)
	}
	switch rule.MatchType {
	case model.MatchExact, model.MatchSubstring, model.MatchRegex:
	default:
		return fmt.Errorf("%w: unknown match type %q", ErrInvalidRule, rule.MatchType)
	}
	if strings.TrimSpace(rule.MatchValue) == "" {
		return fmt.Errorf("%w: missing match value", ErrInvalidRule)
	}
	// A rule with exactly one destination account cannot balance; both empty
	// is a deliberate redirect.
	if (rule.DebitAccount == "") != (rule.CreditAccount == "") {
		return fmt.Errorf("%w: destination accounts must both be set or both be empty", ErrInvalidRule)
	}
	return nil
}

// validateEntry validates a ledger entry before it reaches the database.
func validateEntry(entry *model.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidEntry)
	}
	if entry.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidEntry)
	}
	if entry.SourceType == "" || entry.SourceID == "" {
		return fmt.Errorf("%w: missing source fingerprint", ErrInvalidEntry)
	}
	if len(entry.Lines) < 2 {
		return fmt.Errorf("%w: needs at least two lines", ErrInvalidEntry)
	}
	for i, line := range entry.Lines {
		if line.Account == "" {
			return fmt.Errorf("%w: line %d has no account", ErrInvalidEntry, i)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d has a negative amount", ErrInvalidEntry, i)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("%w: line %d sets both debit and credit", ErrInvalidEntry, i)
		}
	}
	if !entry.Balanced() {
		return fmt.Errorf("%w: debits %.2f do not equal credits %.2f",
			ErrInvalidEntry, entry.TotalDebit(), entry.TotalCredit())
	}
	return nil
}

// validatePattern validates a learned pattern.
func validatePattern(pattern *model.LearnedPattern) error {
	if pattern == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if len(pattern.Pattern) < model.PatternMinLength {
		return fmt.Errorf("%w: key shorter than %d characters", ErrInvalidPattern, model.PatternMinLength)
	}
	if len(pattern.Pattern) > model.PatternMaxLength {
		return fmt.Errorf("%w: key longer than %d characters", ErrInvalidPattern, model.PatternMaxLength)
	}
	if pattern.DebitAccount == "" || pattern.CreditAccount == "" {
		return fmt.Errorf("%w: missing destination accounts", ErrInvalidPattern)
	}
	return nil
}
