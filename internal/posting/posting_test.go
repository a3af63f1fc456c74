package posting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/config"
	"github.com/amplafin/contaflow/internal/model"
	"github.com/amplafin/contaflow/internal/testutil"
)

func testTransaction(id string, amount float64) model.BankTransaction {
	return model.BankTransaction{
		ID:          id,
		Date:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "PIX RECEBIDO ACME CONSULTORIA",
		Direction:   model.DirectionCredit,
		Amount:      amount,
	}
}

func revenueDecision(cfg config.Classification) model.Decision {
	return model.Decision{
		DebitAccount:      cfg.Accounts.Bank,
		DebitAccountName:  cfg.Accounts.BankName,
		CreditAccount:     cfg.Accounts.ServiceRevenue,
		CreditAccountName: cfg.Accounts.ServiceRevenueName,
		EntryType:         model.EntryRevenueReceipt,
		Reasoning:         "identified payer with clean receivable state",
		Confidence:        0.85,
	}
}

func TestCreateEntryPostsBalancedEntry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := config.DefaultClassification()
	svc := NewService(db.Storage, cfg)
	ctx := context.Background()

	txn := testTransaction("txn-001", 1500.00)
	db.SeedTransactions(txn)

	entryID, err := svc.CreateEntry(ctx, txn, revenueDecision(cfg))
	require.NoError(t, err)
	require.NotEmpty(t, entryID)

	entry, err := db.Storage.GetLedgerEntryByID(ctx, entryID)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	assert.True(t, entry.Balanced())
	assert.InDelta(t, 1500.00, entry.TotalDebit(), 0.001)
	assert.Equal(t, model.EntryRevenueReceipt, entry.EntryType)
	assert.Equal(t, model.SourceTypeBankTransaction, entry.SourceType)
	assert.Equal(t, txn.ID, entry.SourceID)

	stored, err := db.Storage.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reconciled)
	assert.Equal(t, entryID, stored.EntryID)
}

func TestCreateEntryIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := config.DefaultClassification()
	svc := NewService(db.Storage, cfg)
	ctx := context.Background()

	txn := testTransaction("txn-002", 980.50)
	db.SeedTransactions(txn)
	decision := revenueDecision(cfg)

	first, err := svc.CreateEntry(ctx, txn, decision)
	require.NoError(t, err)

	second, err := svc.CreateEntry(ctx, txn, decision)
	require.NoError(t, err)
	assert.Equal(t, first, second, "reposting the same transaction must reuse the entry")

	entry, err := db.Storage.GetLedgerEntryBySource(ctx, model.SourceTypeBankTransaction, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, first, entry.ID)
}

func TestCreateEntryRejectsMissingAccounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := config.DefaultClassification()
	svc := NewService(db.Storage, cfg)

	txn := testTransaction("txn-003", 100.00)
	db.SeedTransactions(txn)

	decision := revenueDecision(cfg)
	decision.CreditAccount = ""

	_, err := svc.CreateEntry(context.Background(), txn, decision)
	require.Error(t, err)

	// Nothing may be written when the decision is incomplete.
	_, err = db.Storage.GetLedgerEntryBySource(context.Background(), model.SourceTypeBankTransaction, txn.ID)
	require.Error(t, err)
}

func TestApplyConfirmation(t *testing.T) {
	cfg := config.DefaultClassification()
	svc := NewService(nil, cfg)

	escalatedCredit := model.Decision{
		DebitAccount:      cfg.Accounts.Bank,
		DebitAccountName:  cfg.Accounts.BankName,
		CreditAccount:     cfg.Accounts.SuspenseCredit,
		CreditAccountName: cfg.Accounts.SuspenseCreditName,
		EntryType:         model.EntryUnclassified,
		Question:          "What is this movement?",
		Reasoning:         "no heuristic matched",
		Confidence:        0.30,
		NeedsConfirmation: true,
	}
	escalatedDebit := model.Decision{
		DebitAccount:      cfg.Accounts.SuspenseDebit,
		DebitAccountName:  cfg.Accounts.SuspenseDebitName,
		CreditAccount:     cfg.Accounts.Bank,
		CreditAccountName: cfg.Accounts.BankName,
		EntryType:         model.EntryUnclassified,
		Question:          "What is this payment?",
		Reasoning:         "no heuristic matched",
		Confidence:        0.30,
		NeedsConfirmation: true,
	}

	tests := []struct {
		name        string
		decision    model.Decision
		direction   model.TransactionDirection
		answer      string
		wantApplied bool
		wantDebit   string
		wantCredit  string
		wantType    string
	}{
		{
			name:        "old debt settles receivable",
			decision:    escalatedCredit,
			direction:   model.DirectionCredit,
			answer:      "It settles an old debt from 2023",
			wantApplied: true,
			wantDebit:   cfg.Accounts.Bank,
			wantCredit:  cfg.Accounts.Receivables,
			wantType:    model.EntryRevenueReceipt,
		},
		{
			name:        "partner advance on incoming money",
			decision:    escalatedCredit,
			direction:   model.DirectionCredit,
			answer:      "advance from a partner",
			wantApplied: true,
			wantDebit:   cfg.Accounts.Bank,
			wantCredit:  cfg.Accounts.RelatedParty,
			wantType:    model.EntryRelatedParty,
		},
		{
			name:        "partner advance on outgoing money",
			decision:    escalatedDebit,
			direction:   model.DirectionDebit,
			answer:      "adiantamento para socio",
			wantApplied: true,
			wantDebit:   cfg.Accounts.RelatedParty,
			wantCredit:  cfg.Accounts.Bank,
			wantType:    model.EntryRelatedParty,
		},
		{
			name:        "investment redemption",
			decision:    escalatedCredit,
			direction:   model.DirectionCredit,
			answer:      "resgate de investimento",
			wantApplied: true,
			wantDebit:   cfg.Accounts.Bank,
			wantCredit:  cfg.Accounts.Investments,
			wantType:    model.EntryInvestment,
		},
		{
			name:        "supplier payment",
			decision:    escalatedDebit,
			direction:   model.DirectionDebit,
			answer:      "pagamento de fornecedor",
			wantApplied: true,
			wantDebit:   cfg.Accounts.Suppliers,
			wantCredit:  cfg.Accounts.Bank,
			wantType:    model.EntrySupplierPayment,
		},
		{
			name:        "generic expense",
			decision:    escalatedDebit,
			direction:   model.DirectionDebit,
			answer:      "just an expense",
			wantApplied: true,
			wantDebit:   cfg.Accounts.OtherExpenses,
			wantCredit:  cfg.Accounts.Bank,
			wantType:    model.EntryExpense,
		},
		{
			name:        "current revenue",
			decision:    escalatedCredit,
			direction:   model.DirectionCredit,
			answer:      "current service revenue",
			wantApplied: true,
			wantDebit:   cfg.Accounts.Bank,
			wantCredit:  cfg.Accounts.ServiceRevenue,
			wantType:    model.EntryRevenueReceipt,
		},
		{
			name:        "unrecognized answer stays pending",
			decision:    escalatedCredit,
			direction:   model.DirectionCredit,
			answer:      "no idea what this is",
			wantApplied: false,
		},
		{
			name:        "empty answer stays pending",
			decision:    escalatedCredit,
			direction:   model.DirectionCredit,
			answer:      "   ",
			wantApplied: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := model.BankTransaction{
				ID:        "txn-confirm",
				Direction: tt.direction,
				Amount:    100,
			}
			resolved, applied := svc.ApplyConfirmation(txn, tt.decision, tt.answer)
			assert.Equal(t, tt.wantApplied, applied)

			if !tt.wantApplied {
				assert.True(t, resolved.NeedsConfirmation, "unresolved decision must stay escalated")
				return
			}
			assert.Equal(t, tt.wantDebit, resolved.DebitAccount)
			assert.Equal(t, tt.wantCredit, resolved.CreditAccount)
			assert.Equal(t, tt.wantType, resolved.EntryType)
			assert.InDelta(t, 1.0, resolved.Confidence, 0.001)
			assert.False(t, resolved.NeedsConfirmation)
			assert.Empty(t, resolved.Question)
		})
	}
}

func TestApplyConfirmationWithoutSuggestedAccounts(t *testing.T) {
	cfg := config.DefaultClassification()
	svc := NewService(nil, cfg)

	// An ambiguous-payer escalation carries a question and options but no
	// accounts; the direction must come from the transaction itself.
	ambiguous := model.Decision{
		EntryType:         model.EntryRevenueReceipt,
		Question:          "Payer matches 2 companies. Which one paid?",
		Reasoning:         "payer name matches 2 distinct companies",
		Options:           []string{"ACME LTDA", "Vertice LTDA", "Other"},
		Confidence:        0.60,
		NeedsConfirmation: true,
	}
	incoming := model.BankTransaction{
		ID:        "txn-ambiguous",
		Direction: model.DirectionCredit,
		Amount:    500,
	}

	resolved, applied := svc.ApplyConfirmation(incoming, ambiguous, "advance to partner")
	require.True(t, applied)
	assert.Equal(t, cfg.Accounts.Bank, resolved.DebitAccount, "incoming money must debit the bank account")
	assert.Equal(t, cfg.Accounts.RelatedParty, resolved.CreditAccount)
	assert.Equal(t, model.EntryRelatedParty, resolved.EntryType)

	resolved, applied = svc.ApplyConfirmation(incoming, ambiguous, "internal transfer between accounts")
	require.True(t, applied)
	assert.Equal(t, cfg.Accounts.Bank, resolved.DebitAccount)
	assert.Equal(t, cfg.Accounts.Cash, resolved.CreditAccount)
}

func TestApplyConfirmationSplitStaysPending(t *testing.T) {
	cfg := config.DefaultClassification()
	svc := NewService(nil, cfg)

	decision := model.Decision{
		EntryType:         model.EntryRevenueReceipt,
		Question:          "Does this payment settle old debt, current revenue, or both?",
		Options:           []string{"Settles old receivable", "Current month revenue", "Split between both"},
		Reasoning:         "unique payer carries a pre-system receivable balance",
		Confidence:        0.80,
		NeedsConfirmation: true,
	}
	txn := model.BankTransaction{ID: "txn-split", Direction: model.DirectionCredit, Amount: 900}

	resolved, applied := svc.ApplyConfirmation(txn, decision, "Split between both")
	assert.False(t, applied, "a split cannot be posted from a single answer")
	assert.True(t, resolved.NeedsConfirmation)
	assert.Contains(t, resolved.Question, "old debt")
	assert.Contains(t, resolved.Question, "current revenue")
}

func TestResolveEscalatedTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := config.DefaultClassification()
	svc := NewService(db.Storage, cfg)
	ctx := context.Background()

	txn := model.BankTransaction{
		ID:          "txn-review",
		Date:        time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC),
		Description: "MENSALIDADE SISTEMA CONTABIL",
		Direction:   model.DirectionDebit,
		Amount:      250,
	}
	db.SeedTransactions(txn)

	pending := model.Decision{
		DebitAccount:      cfg.Accounts.SuspenseDebit,
		DebitAccountName:  cfg.Accounts.SuspenseDebitName,
		CreditAccount:     cfg.Accounts.Bank,
		CreditAccountName: cfg.Accounts.BankName,
		EntryType:         model.EntryUnclassified,
		Question:          "Movement could not be classified. Choose a category.",
		Options:           []string{"Revenue", "Expense", "Other"},
		Reasoning:         "no rule, pattern or payer matched",
		Confidence:        0.30,
		NeedsConfirmation: true,
	}
	require.NoError(t, db.Storage.SaveEscalation(ctx, txn.ID, &pending))

	// An answer nobody understands leaves everything pending.
	entryID, decision, err := svc.Resolve(ctx, txn.ID, "hmm not sure")
	require.NoError(t, err)
	assert.Empty(t, entryID)
	assert.True(t, decision.NeedsConfirmation)

	// A recognized answer posts, reconciles and learns in one step.
	entryID, decision, err = svc.Resolve(ctx, txn.ID, "company expense")
	require.NoError(t, err)
	require.NotEmpty(t, entryID)
	assert.Equal(t, cfg.Accounts.OtherExpenses, decision.DebitAccount)

	entry, err := db.Storage.GetLedgerEntryByID(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, entry.Balanced())
	assert.Equal(t, model.EntryExpense, entry.EntryType)

	stored, err := db.Storage.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reconciled)

	patterns, err := db.Storage.GetLearnedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, cfg.Accounts.OtherExpenses, patterns[0].DebitAccount)

	// Reconciliation cleared the escalation; resolving again is refused.
	_, _, err = svc.Resolve(ctx, txn.ID, "company expense")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDuplicateEntry))
}

func TestLearnStoresPattern(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := config.DefaultClassification()
	svc := NewService(db.Storage, cfg)
	ctx := context.Background()

	txn := testTransaction("txn-004", 300.00)
	decision := revenueDecision(cfg)

	require.NoError(t, svc.Learn(ctx, txn, decision))

	patterns, err := db.Storage.GetLearnedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, PatternKey(txn.Description), patterns[0].Pattern)
	assert.Equal(t, cfg.Accounts.ServiceRevenue, patterns[0].CreditAccount)
}

func TestPatternKey(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{
			name:        "strips digits and collapses whitespace",
			description: "PIX 12345 ACME LTDA",
			want:        "pix acme ltda",
		},
		{
			name:        "strips accents",
			description: "TRANSFERÊNCIA RECEBIDA JOSÉ",
			want:        "transferencia recebida jose",
		},
		{
			name:        "truncates long keys",
			description: "pix transferencia recebida cliente acme",
			want:        "pix transferencia recebida cli",
		},
		{
			name:        "too short after stripping",
			description: "TED 99821",
			want:        "",
		},
		{
			name:        "empty description",
			description: "",
			want:        "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PatternKey(tt.description))
		})
	}
}
