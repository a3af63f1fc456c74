package model

import (
	"math"
	"time"
)

// BalanceEpsilon is the tolerance used when comparing monetary totals.
const BalanceEpsilon = 0.01

// SourceTypeBankTransaction marks ledger entries produced from statement rows.
const SourceTypeBankTransaction = "bank_transaction"

// LedgerLine is one leg of a double-entry posting. Exactly one of Debit and
// Credit is non-zero.
type LedgerLine struct {
	Account     string
	AccountName string
	Debit       float64
	Credit      float64
}

// LedgerEntry is a balanced double-entry posting. At most one non-reversed
// entry may exist per (SourceType, SourceID) pair.
type LedgerEntry struct {
	Date         time.Time
	ID           string
	Description  string
	EntryType    string
	InternalCode string
	SourceType   string
	SourceID     string
	Lines        []LedgerLine
}

// TotalDebit sums the debit side of the entry.
func (e *LedgerEntry) TotalDebit() float64 {
	var total float64
	for _, l := range e.Lines {
		total += l.Debit
	}
	return total
}

// TotalCredit sums the credit side of the entry.
func (e *LedgerEntry) TotalCredit() float64 {
	var total float64
	for _, l := range e.Lines {
		total += l.Credit
	}
	return total
}

// Balanced reports whether debits equal credits within BalanceEpsilon.
func (e *LedgerEntry) Balanced() bool {
	return math.Abs(e.TotalDebit()-e.TotalCredit()) < BalanceEpsilon
}

// SuspenseBalance aggregates one transitory account over a period.
type SuspenseBalance struct {
	Account     string
	AccountName string
	Debits      float64
	Credits     float64
}

// Net returns the signed balance of the account over the period.
func (b *SuspenseBalance) Net() float64 {
	return b.Debits - b.Credits
}

// IsZero reports whether the net balance is within BalanceEpsilon of zero.
func (b *SuspenseBalance) IsZero() bool {
	return math.Abs(b.Net()) <= BalanceEpsilon
}
