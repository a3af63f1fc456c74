package closing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amplafin/contaflow/internal/advisor"
	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/engine"
	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/posting"
	"github.com/amplafin/contaflow/internal/service"
)

// Workflow drives a month through classification, validation and the guarded
// close. A blocked close is a refusal with reasons, not an error.
type Workflow struct {
	storage service.Storage
	posting *posting.Service
	advisor advisor.Advisor
	cfg     config.Classification
}

// NewWorkflow creates the month-closing workflow. A nil advisor disables
// enrichment.
func NewWorkflow(storage service.Storage, post *posting.Service, adv advisor.Advisor, cfg config.Classification) *Workflow {
	if adv == nil {
		adv = advisor.Disabled{}
	}
	return &Workflow{
		storage: storage,
		posting: post,
		advisor: adv,
		cfg:     cfg,
	}
}

// SetAutoThreshold overrides the minimum confidence for automatic posting
// for this workflow instance.
func (w *Workflow) SetAutoThreshold(threshold float64) {
	w.cfg.AutoThreshold = threshold
}

// suspenseAccounts returns the transitory accounts that must net to zero
// before a month may close.
func (w *Workflow) suspenseAccounts() []string {
	return []string{w.cfg.Accounts.SuspenseDebit, w.cfg.Accounts.SuspenseCredit}
}

// MonthStatus reports where a period stands: workflow state, transaction
// counts and suspense balances.
func (w *Workflow) MonthStatus(ctx context.Context, year, month int) (*service.MonthStatus, error) {
	closing, err := w.storage.GetMonthClosing(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("loading month closing: %w", err)
	}

	start, end := monthBounds(year, month)
	transactions, err := w.storage.GetTransactions(ctx, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}

	status := &service.MonthStatus{
		Closing: closing,
		Total:   len(transactions),
	}
	for _, txn := range transactions {
		if txn.Reconciled {
			status.Reconciled++
		} else {
			status.Pending++
		}
	}

	status.SuspenseBalances, err = w.storage.GetSuspenseBalances(ctx, year, month, w.suspenseAccounts())
	if err != nil {
		return nil, fmt.Errorf("loading suspense balances: %w", err)
	}
	return status, nil
}

// ClassifyMonth classifies every pending transaction of the period. Items
// are isolated: one failure never aborts the batch. The progress callback
// may be nil.
func (w *Workflow) ClassifyMonth(ctx context.Context, year, month int, progress func(done, total int)) (service.ClassifyStats, error) {
	started := time.Now()
	stats := service.ClassifyStats{}

	closing, err := w.storage.GetMonthClosing(ctx, year, month)
	if err != nil {
		return stats, fmt.Errorf("loading month closing: %w", err)
	}
	if closing.IsClosed() {
		return stats, fmt.Errorf("%w: %04d-%02d", common.ErrPeriodClosed, year, month)
	}

	pending, err := w.storage.GetPendingTransactions(ctx, year, month)
	if err != nil {
		return stats, fmt.Errorf("loading pending transactions: %w", err)
	}
	stats.Total = len(pending)
	if stats.Total == 0 {
		return stats, nil
	}

	snapshot, err := w.buildSnapshot(ctx)
	if err != nil {
		return stats, err
	}
	classifier := engine.NewClassifier(snapshot)

	if err := w.setStatus(ctx, closing, model.ClosingClassifying); err != nil {
		return stats, err
	}

	for i, txn := range pending {
		if progress != nil {
			progress(i+1, stats.Total)
		}

		decision := classifier.Classify(ctx, txn)

		switch {
		case decision.Redirect:
			if _, err := w.ReconcileGroupPayment(ctx, txn); err != nil {
				common.LogError(err, "Group payment reconciliation failed",
					common.Fields{"transaction": txn.ID})
				stats.Errors++
				continue
			}
			stats.Auto++

		case decision.Postable():
			if _, err := w.posting.CreateEntry(ctx, txn, decision); err != nil {
				common.LogError(err, "Posting failed",
					common.Fields{"transaction": txn.ID})
				stats.Errors++
				continue
			}
			stats.Auto++

		case decision.NeedsConfirmation:
			// The advisor may polish the question a human will see.
			// Its failures never block classification.
			var enriched model.Decision
			err := common.WithRetry(ctx, func() error {
				var enrichErr error
				enriched, enrichErr = w.advisor.Enrich(ctx, txn, decision)
				return enrichErr
			}, service.RetryOptions{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond})
			if err != nil {
				slog.Warn("Advisor enrichment failed",
					"transaction", txn.ID,
					"error", err)
			} else {
				decision = enriched
			}

			// The question must survive the batch so a human can answer
			// it later via review.
			if err := w.storage.SaveEscalation(ctx, txn.ID, &decision); err != nil {
				common.LogError(err, "Saving escalated decision failed",
					common.Fields{"transaction": txn.ID})
				stats.Errors++
				continue
			}
			stats.Escalated++

		default:
			stats.Skipped++
		}
	}

	stats.Duration = time.Since(started)
	return stats, nil
}

// ValidateTransitoryZero checks that every suspense account nets to zero
// within the epsilon. It is side-effect free and reports every account
// either way.
func (w *Workflow) ValidateTransitoryZero(ctx context.Context, year, month int) (bool, []model.SuspenseBalance, error) {
	balances, err := w.storage.GetSuspenseBalances(ctx, year, month, w.suspenseAccounts())
	if err != nil {
		return false, nil, fmt.Errorf("loading suspense balances: %w", err)
	}

	ok := true
	for _, b := range balances {
		if !b.IsZero() {
			ok = false
		}
	}
	return ok, balances, nil
}

// CloseMonthGuarded runs every guard check and either closes the period or
// records why it is blocked. All checks always run so the caller sees the
// complete list of problems at once.
func (w *Workflow) CloseMonthGuarded(ctx context.Context, year, month int) (service.CloseResult, error) {
	closing, err := w.storage.GetMonthClosing(ctx, year, month)
	if err != nil {
		return service.CloseResult{}, fmt.Errorf("loading month closing: %w", err)
	}
	if closing.IsClosed() {
		return service.CloseResult{
			BlockedBy: []string{fmt.Sprintf("period %04d-%02d is already closed", year, month)},
		}, nil
	}

	blockedBy := []string{}

	zero, balances, err := w.ValidateTransitoryZero(ctx, year, month)
	if err != nil {
		return service.CloseResult{}, err
	}
	if !zero {
		for _, b := range balances {
			if !b.IsZero() {
				blockedBy = append(blockedBy, fmt.Sprintf(
					"suspense account %s (%s) has net balance %.2f",
					b.Account, b.AccountName, b.Net()))
			}
		}
	}

	pending, err := w.storage.GetPendingTransactions(ctx, year, month)
	if err != nil {
		return service.CloseResult{}, fmt.Errorf("loading pending transactions: %w", err)
	}
	if len(pending) > 0 {
		blockedBy = append(blockedBy, fmt.Sprintf(
			"%d transaction(s) remain unreconciled", len(pending)))
	}

	unbalanced, err := w.storage.GetUnbalancedEntries(ctx, year, month)
	if err != nil {
		return service.CloseResult{}, fmt.Errorf("checking entry balance: %w", err)
	}
	for _, id := range unbalanced {
		blockedBy = append(blockedBy, fmt.Sprintf("ledger entry %s does not balance", id))
	}

	if len(blockedBy) > 0 {
		closing.BlockedBy = blockedBy
		if err := w.setStatus(ctx, closing, model.ClosingBlocked); err != nil {
			return service.CloseResult{}, err
		}
		return service.CloseResult{OK: false, BlockedBy: blockedBy}, nil
	}

	now := time.Now().UTC()
	closing.BlockedBy = nil
	closing.ClosedAt = &now
	if err := w.setStatus(ctx, closing, model.ClosingClosed); err != nil {
		return service.CloseResult{}, err
	}

	slog.Info("Month closed",
		"year", year,
		"month", month)
	return service.CloseResult{OK: true}, nil
}

// buildSnapshot loads everything the classifier reads in one place so a run
// is replayable.
func (w *Workflow) buildSnapshot(ctx context.Context) (engine.Snapshot, error) {
	rules, err := w.storage.GetActiveRules(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("loading rules: %w", err)
	}
	companies, err := w.storage.GetActiveCompanies(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("loading companies: %w", err)
	}
	patterns, err := w.storage.GetLearnedPatterns(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("loading learned patterns: %w", err)
	}
	legacy, err := w.storage.GetLegacyBalances(ctx)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("loading legacy balances: %w", err)
	}

	return engine.Snapshot{
		Rules:          rules,
		Companies:      companies,
		Patterns:       patterns,
		LegacyBalances: legacy,
		Config:         w.cfg,
	}, nil
}

// setStatus advances the closing record to target, stepping through the
// mandatory intermediate states, and persists the result.
func (w *Workflow) setStatus(ctx context.Context, closing *model.MonthClosing, target model.ClosingStatus) error {
	if closing.IsClosed() {
		return fmt.Errorf("%w: %04d-%02d", common.ErrPeriodClosed, closing.Year, closing.Month)
	}

	if closing.Status != target {
		for _, step := range []model.ClosingStatus{model.ClosingClassifying, model.ClosingValidating, target} {
			if closing.Status == step || !closing.Status.CanTransition(step) {
				continue
			}
			closing.Status = step
			if step == target {
				break
			}
		}
		if closing.Status != target {
			return fmt.Errorf("cannot move period %04d-%02d from %s to %s",
				closing.Year, closing.Month, closing.Status, target)
		}
	}

	if err := w.storage.SaveMonthClosing(ctx, closing); err != nil {
		return fmt.Errorf("saving month closing: %w", err)
	}
	return nil
}

// monthBounds returns the inclusive date range used for transaction filters.
func monthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0).Add(-time.Second)
}
