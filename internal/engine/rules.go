// Package engine turns bank transactions into posting decisions. A prioritized
// rule table is consulted first; transactions no rule claims fall through an
// ordered chain of fallback heuristics that always produces a decision.
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/extract"
	"github.com/amplafin/contaflow/internal/model"
)

// ruleConfidence is assigned to decisions produced by an explicit rule.
// Rules are curated by the accountant, so they outrank every heuristic.
const ruleConfidence = 0.98

// RuleMatcher evaluates classification rules against normalized descriptions.
type RuleMatcher struct {
	compiledRegex map[int]*regexp.Regexp
	rules         []model.ClassificationRule
}

// NewRuleMatcher creates a matcher over the given rules. Rules are ordered by
// ascending priority and regex patterns are pre-compiled; rules with invalid
// patterns are logged and skipped.
func NewRuleMatcher(rules []model.ClassificationRule) *RuleMatcher {
	m := &RuleMatcher{
		rules:         make([]model.ClassificationRule, 0, len(rules)),
		compiledRegex: make(map[int]*regexp.Regexp),
	}

	for _, rule := range rules {
		if rule.MatchType == model.MatchRegex {
			re, err := regexp.Compile(rule.MatchValue)
			if err != nil {
				slog.Warn("Skipping rule with invalid regex",
					"rule", rule.Name,
					"pattern", rule.MatchValue,
					"error", err)
				continue
			}
			m.compiledRegex[rule.ID] = re
		}
		m.rules = append(m.rules, rule)
	}

	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority < m.rules[j].Priority
	})

	return m
}

// FirstMatch returns the highest-priority active rule matching the
// transaction, or nil when no rule claims it.
func (m *RuleMatcher) FirstMatch(txn model.BankTransaction, normalized string) *model.ClassificationRule {
	for i := range m.rules {
		rule := &m.rules[i]
		if !rule.IsActive {
			continue
		}
		if rule.Direction != nil && txn.Direction != *rule.Direction {
			continue
		}
		if m.matchesValue(rule, normalized) {
			return rule
		}
	}
	return nil
}

func (m *RuleMatcher) matchesValue(rule *model.ClassificationRule, normalized string) bool {
	switch rule.MatchType {
	case model.MatchExact:
		return extract.Normalize(rule.MatchValue) == normalized
	case model.MatchSubstring:
		return strings.Contains(normalized, extract.Normalize(rule.MatchValue))
	case model.MatchRegex:
		re, ok := m.compiledRegex[rule.ID]
		return ok && re.MatchString(normalized)
	}
	return false
}

// decisionFromRule converts a matched rule into a posting decision. Account
// names are resolved from the chart of accounts where the codes are known.
func decisionFromRule(rule *model.ClassificationRule, txn model.BankTransaction, accounts *config.Accounts) model.Decision {
	if rule.IsRedirect() {
		return model.Decision{
			Confidence: ruleConfidence,
			EntryType:  model.EntryGroupPayment,
			Redirect:   true,
			RuleName:   rule.Name,
			Reasoning: fmt.Sprintf("rule %q (priority %d) routes this movement into group payment reconciliation",
				rule.Name, rule.Priority),
		}
	}

	decision := model.Decision{
		Confidence:        ruleConfidence,
		DebitAccount:      rule.DebitAccount,
		DebitAccountName:  accounts.NameFor(rule.DebitAccount),
		CreditAccount:     rule.CreditAccount,
		CreditAccountName: accounts.NameFor(rule.CreditAccount),
		EntryType:         entryTypeForDirection(txn.Direction),
		RuleName:          rule.Name,
		Description:       txn.Description,
		Reasoning: fmt.Sprintf("rule %q (priority %d, %s match on %q)",
			rule.Name, rule.Priority, rule.MatchType, rule.MatchValue),
	}
	if rule.RequiresApproval {
		decision.NeedsConfirmation = true
		decision.Question = fmt.Sprintf("Rule %q requires manual approval. Confirm posting %s -> %s?",
			rule.Name, rule.DebitAccount, rule.CreditAccount)
	}
	return decision
}

func entryTypeForDirection(direction model.TransactionDirection) string {
	if direction == model.DirectionCredit {
		return model.EntryRevenueReceipt
	}
	return model.EntryExpense
}
