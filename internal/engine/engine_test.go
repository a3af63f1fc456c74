package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/model"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Config: config.DefaultClassification(),
		Companies: []model.Company{
			{
				ID:        "co-acme",
				LegalName: "ACME Consultoria Empresarial LTDA",
				TradeName: "ACME Consultoria",
				IsActive:  true,
				Partners: []model.Partner{
					{Name: "José da Silva Santos", Role: "administrator"},
				},
			},
			{
				ID:        "co-horizonte",
				LegalName: "Horizonte Transportes LTDA",
				IsActive:  true,
				Partners: []model.Partner{
					{Name: "Roberto Lima Souza", Role: "partner"},
				},
			},
			{
				ID:        "co-vertice",
				LegalName: "Vertice Engenharia LTDA",
				IsActive:  true,
				Partners: []model.Partner{
					{Name: "Roberto Lima Souza", Role: "partner"},
				},
			},
		},
	}
}

func creditTxn(id, description string, date time.Time) model.BankTransaction {
	return model.BankTransaction{
		ID:          id,
		Date:        date,
		Description: description,
		Amount:      1000,
		Direction:   model.DirectionCredit,
	}
}

func debitTxn(id, description string, date time.Time) model.BankTransaction {
	return model.BankTransaction{
		ID:          id,
		Date:        date,
		Description: description,
		Amount:      1000,
		Direction:   model.DirectionDebit,
	}
}

var february = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

func TestClassifyOpeningPeriodCredit(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	january := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	decision := classifier.Classify(context.Background(), creditTxn("t1", "TED RECEBIDO JOSE DA SILVA SANTOS", january))

	assert.Equal(t, model.EntryOpeningBalance, decision.EntryType)
	assert.False(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.95, decision.Confidence, 0.001)
	accounts := config.DefaultClassification().Accounts
	assert.Equal(t, accounts.Bank, decision.DebitAccount)
	assert.Equal(t, accounts.OpeningBalances, decision.CreditAccount)
	assert.NotEmpty(t, decision.Reasoning)
}

func TestClassifyRelatedPartyAlwaysEscalates(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	decision := classifier.Classify(context.Background(), creditTxn("t2", "PIX RECEBIDO SERGIO LEAO", february))

	assert.Equal(t, model.EntryRelatedParty, decision.EntryType)
	assert.True(t, decision.NeedsConfirmation)
	assert.NotEmpty(t, decision.Question)
	assert.Equal(t, "1.1.3.01", decision.CreditAccount)
}

func TestClassifyLearnedPattern(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Patterns = []model.LearnedPattern{
		{
			Pattern:           "mensalidade condominio",
			DebitAccount:      "4.1.2.99",
			DebitAccountName:  "Other Operating Expenses",
			CreditAccount:     "1.1.1.02",
			CreditAccountName: "Bank Accounts",
			EntryType:         model.EntryExpense,
			UsageCount:        3,
		},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), debitTxn("t3", "MENSALIDADE CONDOMINIO 02/2025", february))

	assert.Equal(t, "4.1.2.99", decision.DebitAccount)
	assert.False(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.95, decision.Confidence, 0.001)
	assert.Contains(t, decision.Reasoning, "mensalidade condominio")
}

func TestClassifyUniquePayerAutoApproves(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	decision := classifier.Classify(context.Background(), creditTxn("t4", "PIX RECEBIDO JOSE DA SILVA SANTOS", february))

	assert.Equal(t, model.EntryRevenueReceipt, decision.EntryType)
	assert.False(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.85, decision.Confidence, 0.001)
	assert.Contains(t, decision.Reasoning, "ACME")
	require.NotEmpty(t, decision.Matches)
	assert.Equal(t, "co-acme", decision.Matches[0].CompanyID)
}

func TestClassifyUniquePayerWithLegacyBalance(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.LegacyBalances = map[string]float64{"co-acme": 1500}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), creditTxn("t5", "PIX RECEBIDO JOSE DA SILVA SANTOS", february))

	assert.True(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.80, decision.Confidence, 0.001)
	assert.Len(t, decision.Options, 3)
	assert.Contains(t, decision.Question, "cutover")
}

func TestClassifyAmbiguousPayerEscalates(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	decision := classifier.Classify(context.Background(), creditTxn("t6", "PIX RECEBIDO ROBERTO LIMA SOUZA", february))

	assert.True(t, decision.NeedsConfirmation)
	assert.Less(t, decision.Confidence, 0.8)
	assert.Contains(t, decision.Options, "Horizonte Transportes LTDA")
	assert.Contains(t, decision.Options, "Vertice Engenharia LTDA")
	assert.Contains(t, decision.Options, "Other")
}

func TestClassifyFeeDebit(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	decision := classifier.Classify(context.Background(), debitTxn("t7", "TARIFA PACOTE DE SERVICOS", february))

	assert.Equal(t, model.EntryBankFee, decision.EntryType)
	assert.False(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.95, decision.Confidence, 0.001)
	accounts := config.DefaultClassification().Accounts
	assert.Equal(t, accounts.BankFees, decision.DebitAccount)
	assert.Equal(t, accounts.Bank, decision.CreditAccount)
}

func TestClassifyGenericTransferDebit(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	decision := classifier.Classify(context.Background(), debitTxn("t8", "PIX ENVIADO 98765432000188", february))

	assert.Equal(t, model.EntryTransfer, decision.EntryType)
	assert.True(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.40, decision.Confidence, 0.001)
	assert.Equal(t, genericTransferOptions, decision.Options)
}

func TestClassifyUniversalFallback(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	decision := classifier.Classify(context.Background(), creditTxn("t9", "CREDITO AVULSO SEM ORIGEM", february))

	assert.Equal(t, model.EntryUnclassified, decision.EntryType)
	assert.True(t, decision.NeedsConfirmation)
	assert.InDelta(t, 0.30, decision.Confidence, 0.001)
	accounts := config.DefaultClassification().Accounts
	assert.Equal(t, accounts.SuspenseCredit, decision.CreditAccount)
	assert.NotEmpty(t, decision.Reasoning)
}

func TestClassifyRuleWinsOverHeuristics(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Rules = []model.ClassificationRule{
		{
			ID:            1,
			Name:          "office rent",
			Priority:      10,
			MatchType:     model.MatchSubstring,
			MatchValue:    "aluguel",
			DebitAccount:  "4.1.2.99",
			CreditAccount: "1.1.1.02",
			IsActive:      true,
		},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), debitTxn("t10", "PIX PAGAMENTO ALUGUEL ESCRITORIO", february))

	assert.Equal(t, "office rent", decision.RuleName)
	assert.Equal(t, "4.1.2.99", decision.DebitAccount)
	assert.False(t, decision.NeedsConfirmation)
	assert.InDelta(t, ruleConfidence, decision.Confidence, 0.001)

	// Rule accounts from the chart carry their display names, so ledger
	// lines posted from rules are as readable as heuristic ones.
	assert.Equal(t, "Other Operating Expenses", decision.DebitAccountName)
	assert.Equal(t, "Bank Accounts", decision.CreditAccountName)
}

func TestClassifyRulePriorityOrder(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Rules = []model.ClassificationRule{
		{ID: 1, Name: "late", Priority: 20, MatchType: model.MatchSubstring, MatchValue: "aluguel", DebitAccount: "9.9.9.99", CreditAccount: "1.1.1.02", IsActive: true},
		{ID: 2, Name: "early", Priority: 5, MatchType: model.MatchSubstring, MatchValue: "aluguel", DebitAccount: "4.1.2.99", CreditAccount: "1.1.1.02", IsActive: true},
		{ID: 3, Name: "inactive", Priority: 1, MatchType: model.MatchSubstring, MatchValue: "aluguel", DebitAccount: "8.8.8.88", CreditAccount: "1.1.1.02", IsActive: false},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), debitTxn("t11", "ALUGUEL", february))

	assert.Equal(t, "early", decision.RuleName)
}

func TestClassifyRedirectRule(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Rules = []model.ClassificationRule{
		{
			ID:         1,
			Name:       "group payment",
			Priority:   1,
			MatchType:  model.MatchSubstring,
			MatchValue: "grupo empresarial",
			IsActive:   true,
		},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), creditTxn("t12", "PIX RECEBIDO GRUPO EMPRESARIAL LEAO", february))

	assert.True(t, decision.Redirect)
	assert.Equal(t, model.EntryGroupPayment, decision.EntryType)
	assert.False(t, decision.Postable())
}

func TestClassifyRuleRequiresApproval(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Rules = []model.ClassificationRule{
		{
			ID:               1,
			Name:             "big supplier",
			Priority:         1,
			MatchType:        model.MatchSubstring,
			MatchValue:       "fornecedor",
			DebitAccount:     "2.1.1.01",
			CreditAccount:    "1.1.1.02",
			RequiresApproval: true,
			IsActive:         true,
		},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), debitTxn("t13", "PAGAMENTO FORNECEDOR", february))

	assert.True(t, decision.NeedsConfirmation)
	assert.NotEmpty(t, decision.Question)
}

func TestClassifyInvalidRegexRuleSkipped(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Rules = []model.ClassificationRule{
		{ID: 1, Name: "broken", Priority: 1, MatchType: model.MatchRegex, MatchValue: "([", DebitAccount: "4.1.2.99", CreditAccount: "1.1.1.02", IsActive: true},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), debitTxn("t14", "TARIFA BANCARIA", february))

	// The broken rule is skipped and the fee heuristic decides instead.
	assert.Equal(t, model.EntryBankFee, decision.EntryType)
}

func TestClassifyDirectionFilteredRule(t *testing.T) {
	credit := model.DirectionCredit
	snapshot := testSnapshot()
	snapshot.Rules = []model.ClassificationRule{
		{
			ID:            1,
			Name:          "credit only",
			Priority:      1,
			MatchType:     model.MatchSubstring,
			MatchValue:    "tarifa",
			Direction:     &credit,
			DebitAccount:  "1.1.1.02",
			CreditAccount: "3.1.2.01",
			IsActive:      true,
		},
	}
	classifier := NewClassifier(snapshot)

	decision := classifier.Classify(context.Background(), debitTxn("t15", "TARIFA BANCARIA", february))

	// Direction mismatch, so the rule is passed over.
	assert.Equal(t, model.EntryBankFee, decision.EntryType)
	assert.Empty(t, decision.RuleName)
}

func TestClassifyLowConfidenceAlwaysEscalates(t *testing.T) {
	classifier := NewClassifier(testSnapshot())

	transactions := []model.BankTransaction{
		creditTxn("a", "CREDITO DESCONHECIDO", february),
		debitTxn("b", "PIX ENVIADO QUALQUER", february),
		creditTxn("c", "PIX RECEBIDO ROBERTO LIMA SOUZA", february),
		debitTxn("d", "DEBITO SEM DESCRICAO UTIL", february),
	}

	for _, txn := range transactions {
		decision := classifier.Classify(context.Background(), txn)
		if decision.Confidence < 0.8 {
			assert.True(t, decision.NeedsConfirmation, "transaction %s", txn.ID)
		}
		assert.NotEmpty(t, decision.Reasoning, "transaction %s", txn.ID)
	}
}
