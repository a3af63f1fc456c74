package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/extract"
	"github.com/amplafin/contaflow/internal/match"
	"github.com/amplafin/contaflow/internal/model"
)

// Snapshot is everything one classification run reads: rules, the company
// registry, learned patterns, pre-system receivable balances and the domain
// configuration. Classify is pure over it, so a run can be replayed.
type Snapshot struct {
	LegacyBalances map[string]float64
	Config         config.Classification
	Rules          []model.ClassificationRule
	Companies      []model.Company
	Patterns       []model.LearnedPattern
}

// Classifier decides how each bank transaction should be posted.
type Classifier struct {
	rules      *RuleMatcher
	extractor  *extract.Extractor
	matcher    *match.Matcher
	heuristics []heuristic
	snapshot   Snapshot
}

// NewClassifier builds a classifier over a snapshot.
func NewClassifier(snapshot Snapshot) *Classifier {
	return &Classifier{
		snapshot:   snapshot,
		rules:      NewRuleMatcher(snapshot.Rules),
		extractor:  extract.NewExtractor(snapshot.Config.ReservedKeywords),
		matcher:    match.NewMatcher(snapshot.Companies),
		heuristics: fallbackChain(),
	}
}

// Classify produces a decision for one transaction. Explicit rules win; the
// fallback chain guarantees a decision with non-empty reasoning otherwise.
// Any decision below the auto-approval threshold escalates.
func (c *Classifier) Classify(_ context.Context, txn model.BankTransaction) model.Decision {
	normalized := extract.Normalize(txn.Description)

	if rule := c.rules.FirstMatch(txn, normalized); rule != nil {
		decision := decisionFromRule(rule, txn, &c.snapshot.Config.Accounts)
		return c.finalize(txn, decision)
	}

	ev := &evaluation{
		txn:        txn,
		normalized: normalized,
		digitless:  stripDigits(normalized),
		names:      c.extractor.CandidateNames(txn.Description),
		patterns:   c.snapshot.Patterns,
		legacy:     c.snapshot.LegacyBalances,
	}
	ev.match = c.matcher.Match(ev.names)

	for _, h := range c.heuristics {
		decision := h.apply(&c.snapshot.Config, ev)
		if decision == nil {
			continue
		}
		slog.Debug("Heuristic decided transaction",
			"heuristic", h.name,
			"transaction", txn.ID,
			"confidence", decision.Confidence)
		return c.finalize(txn, *decision)
	}

	// Unreachable: the universal fallback always decides.
	return c.finalize(txn, *applyUniversal(&c.snapshot.Config, ev))
}

// finalize enforces the threshold invariant: confidence below the
// auto-approval threshold always needs confirmation.
func (c *Classifier) finalize(txn model.BankTransaction, decision model.Decision) model.Decision {
	if decision.Confidence < c.snapshot.Config.AutoThreshold {
		decision.NeedsConfirmation = true
		if decision.Question == "" {
			decision.Question = "Confidence is below the auto-approval threshold. Confirm the suggested accounts?"
		}
	}
	if decision.Description == "" {
		decision.Description = txn.Description
	}
	return decision
}

// stripDigits removes digits and re-collapses whitespace, the same key shape
// learned patterns are stored under.
func stripDigits(normalized string) string {
	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r >= '0' && r <= '9' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
