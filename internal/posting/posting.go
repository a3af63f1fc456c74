// Package posting turns classification decisions into balanced double-entry
// ledger postings and feeds confirmed decisions back into the pattern store.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/extract"
	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/service"
)

// Service posts decisions to the ledger.
type Service struct {
	storage service.Storage
	cfg     config.Classification
}

// NewService creates a posting service.
func NewService(storage service.Storage, cfg config.Classification) *Service {
	return &Service{storage: storage, cfg: cfg}
}

// CreateEntry posts one decision as a balanced two-line entry. Posting the
// same transaction twice is an idempotent success returning the existing
// entry ID. An unbalanced entry aborts only this posting.
func (s *Service) CreateEntry(ctx context.Context, txn model.BankTransaction, decision model.Decision) (string, error) {
	if txn.ID == "" {
		return "", fmt.Errorf("%w: transaction ID is required", common.ErrInvalidConfig)
	}
	if decision.DebitAccount == "" || decision.CreditAccount == "" {
		return "", fmt.Errorf("%w: decision is missing a destination account", common.ErrIntegrityViolation)
	}

	if existing, err := s.storage.GetLedgerEntryBySource(ctx, model.SourceTypeBankTransaction, txn.ID); err == nil && existing != nil {
		slog.Info("Transaction already posted, reusing entry",
			"transaction", txn.ID,
			"entry", existing.ID)
		return existing.ID, nil
	} else if err != nil && !errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("checking for existing entry: %w", err)
	}

	entry := &model.LedgerEntry{
		ID:           uuid.NewString(),
		Date:         txn.Date,
		Description:  decision.Description,
		EntryType:    decision.EntryType,
		InternalCode: internalCode(txn.Date),
		SourceType:   model.SourceTypeBankTransaction,
		SourceID:     txn.ID,
		Lines: []model.LedgerLine{
			{Account: decision.DebitAccount, AccountName: decision.DebitAccountName, Debit: txn.Amount},
			{Account: decision.CreditAccount, AccountName: decision.CreditAccountName, Credit: txn.Amount},
		},
	}
	if entry.Description == "" {
		entry.Description = txn.Description
	}

	if !entry.Balanced() {
		return "", fmt.Errorf("%w: %w: debits %.2f credits %.2f",
			common.ErrIntegrityViolation, common.ErrUnbalancedEntry,
			entry.TotalDebit(), entry.TotalCredit())
	}

	if err := s.storage.CreateLedgerEntry(ctx, entry); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			// Lost a race against a concurrent posting of the same
			// transaction. The winner's entry is the answer.
			existing, lookupErr := s.storage.GetLedgerEntryBySource(ctx, model.SourceTypeBankTransaction, txn.ID)
			if lookupErr != nil {
				return "", fmt.Errorf("resolving duplicate entry: %w", lookupErr)
			}
			slog.Info("Concurrent posting detected, reusing entry",
				"transaction", txn.ID,
				"entry", existing.ID)
			return existing.ID, nil
		}
		return "", fmt.Errorf("creating ledger entry: %w", err)
	}

	if err := s.storage.MarkTransactionReconciled(ctx, txn.ID, entry.ID, decision.Confidence, decision.Reasoning); err != nil {
		return "", fmt.Errorf("marking transaction reconciled: %w", err)
	}

	return entry.ID, nil
}

// confirmationRule maps human answer vocabulary to an account pair.
type confirmationRule struct {
	resolve   func(s *Service, credit bool) (string, string, string, string)
	entryType string
	keywords  []string
}

// confirmationRules is evaluated in order; the first keyword hit wins.
var confirmationRules = []confirmationRule{
	{
		keywords:  []string{"old debt", "old receivable", "settles", "divida antiga"},
		entryType: model.EntryRevenueReceipt,
		resolve: func(s *Service, _ bool) (string, string, string, string) {
			return s.cfg.Accounts.Bank, s.cfg.Accounts.BankName,
				s.cfg.Accounts.Receivables, s.cfg.Accounts.ReceivablesName
		},
	},
	{
		keywords:  []string{"advance", "partner", "socio", "adiantamento"},
		entryType: model.EntryRelatedParty,
		resolve: func(s *Service, credit bool) (string, string, string, string) {
			if credit {
				return s.cfg.Accounts.Bank, s.cfg.Accounts.BankName,
					s.cfg.Accounts.RelatedParty, s.cfg.Accounts.RelatedPartyName
			}
			return s.cfg.Accounts.RelatedParty, s.cfg.Accounts.RelatedPartyName,
				s.cfg.Accounts.Bank, s.cfg.Accounts.BankName
		},
	},
	{
		keywords:  []string{"investment", "investimento", "aplicacao"},
		entryType: model.EntryInvestment,
		resolve: func(s *Service, credit bool) (string, string, string, string) {
			if credit {
				return s.cfg.Accounts.Bank, s.cfg.Accounts.BankName,
					s.cfg.Accounts.Investments, s.cfg.Accounts.InvestmentsName
			}
			return s.cfg.Accounts.Investments, s.cfg.Accounts.InvestmentsName,
				s.cfg.Accounts.Bank, s.cfg.Accounts.BankName
		},
	},
	{
		keywords:  []string{"internal transfer", "between accounts", "transferencia interna"},
		entryType: model.EntryTransfer,
		resolve: func(s *Service, credit bool) (string, string, string, string) {
			if credit {
				return s.cfg.Accounts.Bank, s.cfg.Accounts.BankName,
					s.cfg.Accounts.Cash, s.cfg.Accounts.CashName
			}
			return s.cfg.Accounts.Cash, s.cfg.Accounts.CashName,
				s.cfg.Accounts.Bank, s.cfg.Accounts.BankName
		},
	},
	{
		keywords:  []string{"supplier", "fornecedor"},
		entryType: model.EntrySupplierPayment,
		resolve: func(s *Service, _ bool) (string, string, string, string) {
			return s.cfg.Accounts.Suppliers, s.cfg.Accounts.SuppliersName,
				s.cfg.Accounts.Bank, s.cfg.Accounts.BankName
		},
	},
	{
		keywords:  []string{"expense", "despesa"},
		entryType: model.EntryExpense,
		resolve: func(s *Service, _ bool) (string, string, string, string) {
			return s.cfg.Accounts.OtherExpenses, s.cfg.Accounts.OtherExpensesName,
				s.cfg.Accounts.Bank, s.cfg.Accounts.BankName
		},
	},
	{
		keywords:  []string{"fee", "tarifa"},
		entryType: model.EntryBankFee,
		resolve: func(s *Service, _ bool) (string, string, string, string) {
			return s.cfg.Accounts.BankFees, s.cfg.Accounts.BankFeesName,
				s.cfg.Accounts.Bank, s.cfg.Accounts.BankName
		},
	},
	{
		keywords:  []string{"revenue", "receita", "current"},
		entryType: model.EntryRevenueReceipt,
		resolve: func(s *Service, _ bool) (string, string, string, string) {
			return s.cfg.Accounts.Bank, s.cfg.Accounts.BankName,
				s.cfg.Accounts.ServiceRevenue, s.cfg.Accounts.ServiceRevenueName
		},
	},
}

// ApplyConfirmation resolves an escalated decision from a human answer. A
// recognized answer rewrites the accounts, forces confidence to 1.0 and
// clears the escalation; an unrecognized answer leaves the decision pending.
// The movement direction comes from the transaction itself; escalated
// decisions may carry no accounts at all.
func (s *Service) ApplyConfirmation(txn model.BankTransaction, decision model.Decision, humanText string) (model.Decision, bool) {
	answer := extract.Normalize(humanText)
	if answer == "" {
		return decision, false
	}

	credit := txn.IsCredit()

	// A split settles part of the old receivable and books the rest as
	// current revenue, which needs two amounts no single answer carries.
	// Keep the decision pending and ask for the pieces instead.
	if strings.Contains(answer, "split") || strings.Contains(answer, "dividir") {
		decision.Question = "A split needs two amounts. Confirm the settled portion as \"old debt\" first, then the rest as \"current revenue\"."
		return decision, false
	}

	for _, rule := range confirmationRules {
		if !matchesAnyKeyword(answer, rule.keywords) {
			continue
		}
		debit, debitName, creditAcct, creditName := rule.resolve(s, credit)
		decision.DebitAccount = debit
		decision.DebitAccountName = debitName
		decision.CreditAccount = creditAcct
		decision.CreditAccountName = creditName
		decision.EntryType = rule.entryType
		decision.Confidence = 1.0
		decision.NeedsConfirmation = false
		decision.Redirect = false
		decision.Question = ""
		decision.Options = nil
		decision.Reasoning = fmt.Sprintf("%s; confirmed by user: %s", decision.Reasoning, humanText)
		return decision, true
	}

	return decision, false
}

// Resolve applies a human answer to an escalated transaction: the pending
// decision is confirmed, posted and learned in one step. An empty entry ID
// with a nil error means the answer was not understood; the returned decision
// then carries the question to ask again.
func (s *Service) Resolve(ctx context.Context, transactionID, answer string) (string, model.Decision, error) {
	txn, err := s.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return "", model.Decision{}, err
	}
	if txn.Reconciled {
		return "", model.Decision{}, fmt.Errorf("%w: transaction %s is already posted", common.ErrDuplicateEntry, transactionID)
	}

	pending, err := s.storage.GetEscalation(ctx, transactionID)
	if err != nil {
		return "", model.Decision{}, err
	}

	decision, applied := s.ApplyConfirmation(*txn, *pending, answer)
	if !applied {
		return "", decision, nil
	}

	entryID, err := s.CreateEntry(ctx, *txn, decision)
	if err != nil {
		return "", decision, err
	}

	if err := s.Learn(ctx, *txn, decision); err != nil {
		slog.Warn("Failed to learn from confirmation",
			"transaction", txn.ID,
			"error", err)
	}
	return entryID, decision, nil
}

// Learn stores the confirmed accounts under the transaction's pattern key so
// the next similar description classifies automatically.
func (s *Service) Learn(ctx context.Context, txn model.BankTransaction, decision model.Decision) error {
	key := PatternKey(txn.Description)
	if key == "" {
		slog.Debug("Description too short to learn from", "transaction", txn.ID)
		return nil
	}

	pattern := &model.LearnedPattern{
		Pattern:           key,
		DebitAccount:      decision.DebitAccount,
		DebitAccountName:  decision.DebitAccountName,
		CreditAccount:     decision.CreditAccount,
		CreditAccountName: decision.CreditAccountName,
		EntryType:         decision.EntryType,
	}
	if err := s.storage.UpsertLearnedPattern(ctx, pattern); err != nil {
		return fmt.Errorf("saving learned pattern: %w", err)
	}
	return nil
}

// PatternKey derives the stable lookup key for a description: normalized,
// digits stripped, collapsed and truncated. Keys shorter than the minimum
// carry too little signal and come back empty.
func PatternKey(description string) string {
	normalized := extract.Normalize(description)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r >= '0' && r <= '9' {
			continue
		}
		b.WriteRune(r)
	}
	key := strings.Join(strings.Fields(b.String()), " ")

	if len(key) > model.PatternMaxLength {
		key = strings.TrimSpace(key[:model.PatternMaxLength])
	}
	if len(key) < model.PatternMinLength {
		return ""
	}
	return key
}

func matchesAnyKeyword(answer string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(answer, extract.Normalize(kw)) {
			return true
		}
	}
	return false
}

// internalCode produces a human-scannable entry code, unique per posting.
func internalCode(date time.Time) string {
	return fmt.Sprintf("CF-%s-%s", date.Format("200601"), uuid.NewString()[:8])
}
