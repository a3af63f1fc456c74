package engine

import (
	"fmt"
	"strings"

	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/extract"
	"github.com/amplafin/contaflow/internal/match"
	"github.com/amplafin/contaflow/internal/model"
)

// Heuristic confidence levels, calibrated against the auto-approval
// threshold: anything below it escalates to a human.
const (
	confidenceOpening      = 0.95
	confidencePattern      = 0.95
	confidenceFee          = 0.95
	confidenceUniquePayer  = 0.85
	confidenceLegacyDoubt  = 0.80
	confidenceRelated      = 0.70
	confidenceAmbiguous    = 0.60
	confidenceTransfer     = 0.40
	confidenceUnclassified = 0.30
)

// genericTransferOptions is the canned choice list offered for unidentified
// outgoing transfers.
var genericTransferOptions = []string{
	"Advance to partner",
	"Company expense",
	"Supplier payment",
	"Internal transfer between accounts",
	"Other",
}

// genericCategoryOptions is offered by the universal fallback.
var genericCategoryOptions = []string{
	"Revenue",
	"Expense",
	"Advance to partner",
	"Internal transfer between accounts",
	"Other",
}

// evaluation carries everything the heuristics may inspect for one
// transaction. It is built once per Classify call.
type evaluation struct {
	txn        model.BankTransaction
	normalized string
	digitless  string
	names      []string
	patterns   []model.LearnedPattern
	match      match.Result
	legacy     map[string]float64
}

// heuristic is one step of the fallback chain. The chain is an ordered slice
// so precedence is explicit data rather than nested conditionals.
type heuristic struct {
	apply func(cfg *config.Classification, ev *evaluation) *model.Decision
	name  string
}

// fallbackChain returns the heuristics in precedence order. The first one
// that produces a decision wins; the universal fallback guarantees the chain
// never comes up empty.
func fallbackChain() []heuristic {
	return []heuristic{
		{name: "opening-period", apply: applyOpeningPeriod},
		{name: "related-party", apply: applyRelatedParty},
		{name: "learned-pattern", apply: applyLearnedPattern},
		{name: "payer-identity", apply: applyPayerIdentity},
		{name: "fee", apply: applyFee},
		{name: "generic-transfer", apply: applyGenericTransfer},
		{name: "universal", apply: applyUniversal},
	}
}

// applyOpeningPeriod books credits inside the cutover window as opening
// balance transfers from the previous bookkeeping system. It deliberately
// outranks the related-party detector: during the cutover the partners move
// the company's own funds in, which is equity, not an advance.
func applyOpeningPeriod(cfg *config.Classification, ev *evaluation) *model.Decision {
	if !ev.txn.IsCredit() || !cfg.OpeningWindow.Contains(ev.txn.Date) {
		return nil
	}
	return &model.Decision{
		Confidence:        confidenceOpening,
		DebitAccount:      cfg.Accounts.Bank,
		DebitAccountName:  cfg.Accounts.BankName,
		CreditAccount:     cfg.Accounts.OpeningBalances,
		CreditAccountName: cfg.Accounts.OpeningBalancesName,
		EntryType:         model.EntryOpeningBalance,
		Description:       ev.txn.Description,
		Reasoning: fmt.Sprintf("credit dated %s falls inside the opening window %s to %s",
			ev.txn.Date.Format("2006-01-02"),
			cfg.OpeningWindow.Start.Format("2006-01-02"),
			cfg.OpeningWindow.End.Format("2006-01-02")),
	}
}

// applyRelatedParty flags movements naming a beneficial owner. These are
// never revenue; they are advances, and they always need a human look.
func applyRelatedParty(cfg *config.Classification, ev *evaluation) *model.Decision {
	for _, party := range cfg.RelatedParties {
		partyName := extract.Normalize(party.Name)
		if partyName == "" || !strings.Contains(ev.normalized, partyName) {
			continue
		}

		decision := &model.Decision{
			Confidence:        confidenceRelated,
			EntryType:         model.EntryRelatedParty,
			Description:       ev.txn.Description,
			NeedsConfirmation: true,
			Question: fmt.Sprintf("Movement names related party %q. Book as advance on %s?",
				party.Name, party.Account),
			Reasoning: fmt.Sprintf("description matches related party %q; related-party movements are advances, not revenue",
				party.Name),
		}
		if ev.txn.IsCredit() {
			decision.DebitAccount = cfg.Accounts.Bank
			decision.DebitAccountName = cfg.Accounts.BankName
			decision.CreditAccount = party.Account
			decision.CreditAccountName = party.AccountName
		} else {
			decision.DebitAccount = party.Account
			decision.DebitAccountName = party.AccountName
			decision.CreditAccount = cfg.Accounts.Bank
			decision.CreditAccountName = cfg.Accounts.BankName
		}
		return decision
	}
	return nil
}

// applyLearnedPattern reuses accounts a human already confirmed for a similar
// description. The longest matching pattern wins.
func applyLearnedPattern(_ *config.Classification, ev *evaluation) *model.Decision {
	var best *model.LearnedPattern
	for i := range ev.patterns {
		p := &ev.patterns[i]
		if len(p.Pattern) < model.PatternMinLength {
			continue
		}
		if !strings.Contains(ev.digitless, p.Pattern) {
			continue
		}
		if best == nil || len(p.Pattern) > len(best.Pattern) {
			best = p
		}
	}
	if best == nil {
		return nil
	}

	return &model.Decision{
		Confidence:        confidencePattern,
		DebitAccount:      best.DebitAccount,
		DebitAccountName:  best.DebitAccountName,
		CreditAccount:     best.CreditAccount,
		CreditAccountName: best.CreditAccountName,
		EntryType:         best.EntryType,
		Description:       ev.txn.Description,
		Reasoning: fmt.Sprintf("learned pattern %q confirmed %d time(s) before",
			best.Pattern, best.UsageCount),
	}
}

// applyPayerIdentity acts on the matcher result. A unique clean payer books
// automatically as revenue; a unique payer with pre-system debt raises the
// old-debt question; multiple companies always escalate.
func applyPayerIdentity(cfg *config.Classification, ev *evaluation) *model.Decision {
	if !ev.txn.IsCredit() || len(ev.match.Matches) == 0 {
		return nil
	}

	companies := ev.match.UniqueCompanies()
	best := ev.match.Best()

	if len(companies) > 1 {
		options := make([]string, 0, len(companies)+1)
		seen := make(map[string]struct{})
		for _, m := range ev.match.Matches {
			if _, dup := seen[m.CompanyID]; dup {
				continue
			}
			seen[m.CompanyID] = struct{}{}
			options = append(options, m.CompanyName)
		}
		options = append(options, "Other")

		return &model.Decision{
			Confidence:        confidenceAmbiguous,
			EntryType:         model.EntryRevenueReceipt,
			Description:       ev.txn.Description,
			NeedsConfirmation: true,
			Matches:           ev.match.Matches,
			Options:           options,
			Question:          fmt.Sprintf("Payer %q matches %d companies. Which one paid?", best.Name, len(companies)),
			Reasoning: fmt.Sprintf("payer name matches %d distinct companies; identity is ambiguous and is never guessed",
				len(companies)),
		}
	}

	if ev.legacy[best.CompanyID] > 0 {
		return &model.Decision{
			Confidence:        confidenceLegacyDoubt,
			DebitAccount:      cfg.Accounts.Bank,
			DebitAccountName:  cfg.Accounts.BankName,
			CreditAccount:     cfg.Accounts.Receivables,
			CreditAccountName: cfg.Accounts.ReceivablesName,
			EntryType:         model.EntryRevenueReceipt,
			Description:       ev.txn.Description,
			NeedsConfirmation: true,
			Matches:           ev.match.Matches,
			Options: []string{
				"Settles old receivable",
				"Current month revenue",
				"Split between both",
			},
			Question: fmt.Sprintf("%s has a balance from before the system cutover. Does this payment settle old debt, current revenue, or both?",
				best.CompanyName),
			Reasoning: fmt.Sprintf("unique payer %s (score %d) carries a pre-system receivable balance",
				best.CompanyName, best.Score),
		}
	}

	return &model.Decision{
		Confidence:        confidenceUniquePayer,
		DebitAccount:      cfg.Accounts.Bank,
		DebitAccountName:  cfg.Accounts.BankName,
		CreditAccount:     cfg.Accounts.ServiceRevenue,
		CreditAccountName: cfg.Accounts.ServiceRevenueName,
		EntryType:         model.EntryRevenueReceipt,
		Description:       ev.txn.Description,
		Matches:           ev.match.Matches,
		Reasoning: fmt.Sprintf("unique payer %s identified via %s (score %d)",
			best.CompanyName, best.Relationship, best.Score),
	}
}

// applyFee books debits carrying bank fee vocabulary.
func applyFee(cfg *config.Classification, ev *evaluation) *model.Decision {
	if ev.txn.IsCredit() {
		return nil
	}
	for _, kw := range cfg.FeeKeywords {
		keyword := extract.Normalize(kw)
		if keyword == "" || !strings.Contains(ev.normalized, keyword) {
			continue
		}
		return &model.Decision{
			Confidence:        confidenceFee,
			DebitAccount:      cfg.Accounts.BankFees,
			DebitAccountName:  cfg.Accounts.BankFeesName,
			CreditAccount:     cfg.Accounts.Bank,
			CreditAccountName: cfg.Accounts.BankName,
			EntryType:         model.EntryBankFee,
			Description:       ev.txn.Description,
			Reasoning:         fmt.Sprintf("debit description contains fee keyword %q", kw),
		}
	}
	return nil
}

// applyGenericTransfer escalates outgoing transfers with the canned options.
func applyGenericTransfer(cfg *config.Classification, ev *evaluation) *model.Decision {
	if ev.txn.IsCredit() {
		return nil
	}
	for _, kw := range cfg.TransferKeywords {
		keyword := extract.Normalize(kw)
		if keyword == "" || !strings.Contains(ev.normalized, keyword) {
			continue
		}
		return &model.Decision{
			Confidence:        confidenceTransfer,
			DebitAccount:      cfg.Accounts.SuspenseDebit,
			DebitAccountName:  cfg.Accounts.SuspenseDebitName,
			CreditAccount:     cfg.Accounts.Bank,
			CreditAccountName: cfg.Accounts.BankName,
			EntryType:         model.EntryTransfer,
			Description:       ev.txn.Description,
			NeedsConfirmation: true,
			Options:           genericTransferOptions,
			Question:          "Outgoing transfer with no identified beneficiary. What is it?",
			Reasoning:         fmt.Sprintf("debit carries transfer keyword %q but no beneficiary could be identified", kw),
		}
	}
	return nil
}

// applyUniversal is the floor of the chain; it always produces a decision so
// no transaction leaves classification without one.
func applyUniversal(cfg *config.Classification, ev *evaluation) *model.Decision {
	decision := &model.Decision{
		Confidence:        confidenceUnclassified,
		EntryType:         model.EntryUnclassified,
		Description:       ev.txn.Description,
		NeedsConfirmation: true,
		Options:           genericCategoryOptions,
		Question:          "Movement could not be classified. Choose a category.",
		Reasoning:         "no rule, pattern or payer matched; parked on a suspense account until a human decides",
	}
	if ev.txn.IsCredit() {
		decision.DebitAccount = cfg.Accounts.Bank
		decision.DebitAccountName = cfg.Accounts.BankName
		decision.CreditAccount = cfg.Accounts.SuspenseCredit
		decision.CreditAccountName = cfg.Accounts.SuspenseCreditName
	} else {
		decision.DebitAccount = cfg.Accounts.SuspenseDebit
		decision.DebitAccountName = cfg.Accounts.SuspenseDebitName
		decision.CreditAccount = cfg.Accounts.Bank
		decision.CreditAccountName = cfg.Accounts.BankName
	}
	return decision
}
