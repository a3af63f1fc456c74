package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/extract"
	"github.com/amplafin/contaflow/internal/match"
	"github.com/amplafin/contaflow/internal/model"
)

// GroupReconciliation summarizes one group payment posting.
type GroupReconciliation struct {
	EntryID     string
	Allocations []Allocation
	Remainder   float64
}

// ReconcileGroupPayment settles one incoming payment that covers receivables
// of several group companies: it resolves the paying group from the
// description, waterfalls the amount across open receivables oldest first,
// posts a single entry and keeps any remainder as a flagged credit balance.
func (w *Workflow) ReconcileGroupPayment(ctx context.Context, txn model.BankTransaction) (*GroupReconciliation, error) {
	if !txn.IsCredit() {
		return nil, fmt.Errorf("group payment must be a credit, got %s", txn.Direction)
	}

	// Idempotency mirrors regular postings: a reposted group payment
	// returns the original entry untouched.
	if existing, err := w.storage.GetLedgerEntryBySource(ctx, model.SourceTypeBankTransaction, txn.ID); err == nil && existing != nil {
		slog.Info("Group payment already reconciled, reusing entry",
			"transaction", txn.ID,
			"entry", existing.ID)
		return &GroupReconciliation{EntryID: existing.ID}, nil
	} else if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing entry: %w", err)
	}

	companies, err := w.storage.GetActiveCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading companies: %w", err)
	}

	extractor := extract.NewExtractor(w.cfg.ReservedKeywords)
	names := extractor.CandidateNames(txn.Description)
	result := match.NewMatcher(companies).Match(names)
	groupIDs := result.UniqueCompanies()
	if len(groupIDs) == 0 {
		return nil, fmt.Errorf("%w: no group companies identified in %q", common.ErrNotFound, txn.Description)
	}

	outstanding, err := w.storage.GetOutstandingByCompanies(ctx, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("loading outstanding receivables: %w", err)
	}

	allocations, remainder := Allocate(txn.Amount, outstanding)

	lines := []model.LedgerLine{
		{Account: w.cfg.Accounts.Bank, AccountName: w.cfg.Accounts.BankName, Debit: txn.Amount},
	}
	for _, alloc := range allocations {
		lines = append(lines, model.LedgerLine{
			Account:     w.cfg.Accounts.Receivables,
			AccountName: fmt.Sprintf("%s - %s", w.cfg.Accounts.ReceivablesName, alloc.Outstanding.CompanyName),
			Credit:      alloc.Applied,
		})
	}
	if remainder > 0 {
		lines = append(lines, model.LedgerLine{
			Account:     w.cfg.Accounts.SuspenseCredit,
			AccountName: w.cfg.Accounts.SuspenseCreditName,
			Credit:      remainder,
		})
		slog.Warn("Group payment exceeds open receivables, remainder kept as credit balance",
			"transaction", txn.ID,
			"remainder", remainder)
	}

	entry := &model.LedgerEntry{
		ID:           uuid.NewString(),
		Date:         txn.Date,
		Description:  txn.Description,
		EntryType:    model.EntryGroupPayment,
		InternalCode: fmt.Sprintf("CF-%s-%s", txn.Date.Format("200601"), uuid.NewString()[:8]),
		SourceType:   model.SourceTypeBankTransaction,
		SourceID:     txn.ID,
		Lines:        lines,
	}

	if err := w.storage.CreateLedgerEntry(ctx, entry); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			existing, lookupErr := w.storage.GetLedgerEntryBySource(ctx, model.SourceTypeBankTransaction, txn.ID)
			if lookupErr != nil {
				return nil, fmt.Errorf("resolving duplicate entry: %w", lookupErr)
			}
			return &GroupReconciliation{EntryID: existing.ID}, nil
		}
		return nil, fmt.Errorf("posting group payment: %w", err)
	}

	for _, alloc := range allocations {
		if err := w.storage.ReduceOutstanding(ctx, alloc.Outstanding.CompanyID,
			alloc.Outstanding.DueDate, alloc.Applied); err != nil {
			return nil, fmt.Errorf("reducing receivable for %s: %w", alloc.Outstanding.CompanyID, err)
		}
	}

	reasoning := fmt.Sprintf("group payment allocated across %d receivable(s), remainder %.2f",
		len(allocations), remainder)
	if err := w.storage.MarkTransactionReconciled(ctx, txn.ID, entry.ID, 1.0, reasoning); err != nil {
		return nil, fmt.Errorf("marking transaction reconciled: %w", err)
	}

	return &GroupReconciliation{
		EntryID:     entry.ID,
		Allocations: allocations,
		Remainder:   remainder,
	}, nil
}
