package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

func pendingDecision(question string) model.Decision {
	return model.Decision{
		DebitAccount:      "1.1.1.02",
		CreditAccount:     "2.1.9.01",
		EntryType:         model.EntryUnclassified,
		Question:          question,
		Options:           []string{"Revenue", "Expense", "Other"},
		Reasoning:         "no rule, pattern or payer matched",
		Confidence:        0.30,
		NeedsConfirmation: true,
	}
}

func TestSaveAndGetEscalation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{sampleTransaction("txn-esc", 5)}))

	decision := pendingDecision("What is this movement?")
	require.NoError(t, store.SaveEscalation(ctx, "txn-esc", &decision))

	got, err := store.GetEscalation(ctx, "txn-esc")
	require.NoError(t, err)
	assert.Equal(t, decision.Question, got.Question)
	assert.Equal(t, decision.Options, got.Options)
	assert.Equal(t, decision.DebitAccount, got.DebitAccount)
	assert.True(t, got.NeedsConfirmation)

	// The transaction row mirrors the decision's confidence and reasoning.
	txn, err := store.GetTransactionByID(ctx, "txn-esc")
	require.NoError(t, err)
	assert.InDelta(t, 0.30, txn.Confidence, 0.001)
	assert.Equal(t, decision.Reasoning, txn.Reasoning)
}

func TestSaveEscalationUnknownTransaction(t *testing.T) {
	store := setupStore(t)

	decision := pendingDecision("What is this?")
	err := store.SaveEscalation(context.Background(), "txn-missing", &decision)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGetEscalationWithoutPendingDecision(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{sampleTransaction("txn-clean", 6)}))

	_, err := store.GetEscalation(ctx, "txn-clean")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGetEscalatedTransactionsHonorsPeriod(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	march := sampleTransaction("txn-march", 10)
	april := model.BankTransaction{
		ID:          "txn-april",
		Date:        time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Description: "CREDITO DIVERSO ABRIL",
		Direction:   model.DirectionCredit,
		Amount:      70,
	}
	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{march, april}))

	marchDecision := pendingDecision("March question")
	aprilDecision := pendingDecision("April question")
	require.NoError(t, store.SaveEscalation(ctx, "txn-march", &marchDecision))
	require.NoError(t, store.SaveEscalation(ctx, "txn-april", &aprilDecision))

	escalations, err := store.GetEscalatedTransactions(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, "txn-march", escalations[0].Transaction.ID)
	assert.Equal(t, "March question", escalations[0].Decision.Question)
}

func TestReconcileClearsEscalation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{sampleTransaction("txn-done", 8)}))

	decision := pendingDecision("What is this payment?")
	require.NoError(t, store.SaveEscalation(ctx, "txn-done", &decision))
	require.NoError(t, store.MarkTransactionReconciled(ctx, "txn-done", "entry-1", 1.0, "confirmed by user"))

	_, err := store.GetEscalation(ctx, "txn-done")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	escalations, err := store.GetEscalatedTransactions(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Empty(t, escalations)

	// A reconciled transaction can no longer be escalated.
	err = store.SaveEscalation(ctx, "txn-done", &decision)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
