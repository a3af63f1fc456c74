// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// TransactionDirection indicates whether money entered or left the bank account.
type TransactionDirection string

// Transaction direction constants.
const (
	DirectionCredit TransactionDirection = "credit"
	DirectionDebit  TransactionDirection = "debit"
)

// BankTransaction represents a single movement from a bank statement.
type BankTransaction struct {
	Date        time.Time
	ID          string
	Description string // Raw statement description
	Direction   TransactionDirection
	EntryID     string // Ledger entry this transaction was posted to
	Reasoning   string
	Amount      float64 // Always positive; Direction carries the sign
	Confidence  float64
	Reconciled  bool
}

// GenerateHash creates a unique fingerprint for duplicate detection.
func (t *BankTransaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Direction,
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// IsCredit reports whether the movement is money entering the account.
func (t *BankTransaction) IsCredit() bool {
	return t.Direction == DirectionCredit
}
