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
	"github.com/amplafin/contaflow/internal/service"
)

func setupStore(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func sampleTransaction(id string, day int) model.BankTransaction {
	return model.BankTransaction{
		ID:          id,
		Date:        time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Description: "PIX RECEBIDO CLIENTE " + id,
		Direction:   model.DirectionCredit,
		Amount:      150.75,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupStore(t)
	// A second run must be a no-op, not a failure.
	require.NoError(t, store.Migrate(context.Background()))
}

func TestSaveAndGetTransactions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	txns := []model.BankTransaction{
		sampleTransaction("txn-a", 3),
		sampleTransaction("txn-b", 1),
	}
	require.NoError(t, store.SaveTransactions(ctx, txns))

	got, err := store.GetTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Oldest first.
	assert.Equal(t, "txn-b", got[0].ID)
	assert.Equal(t, "txn-a", got[1].ID)

	single, err := store.GetTransactionByID(ctx, "txn-a")
	require.NoError(t, err)
	assert.Equal(t, model.DirectionCredit, single.Direction)
	assert.InDelta(t, 150.75, single.Amount, 0.001)
	assert.False(t, single.Reconciled)
}

func TestSaveTransactionsSkipsDuplicateHash(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	original := sampleTransaction("txn-a", 3)
	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{original}))

	// Same content under a different ID: the hash dedupes it.
	duplicate := original
	duplicate.ID = "txn-reimported"
	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{duplicate}))

	got, err := store.GetTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "txn-a", got[0].ID)
}

func TestGetTransactionByIDNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetTransactionByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestMarkTransactionReconciled(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{sampleTransaction("txn-a", 3)}))
	require.NoError(t, store.MarkTransactionReconciled(ctx, "txn-a", "entry-1", 0.95, "fee heuristic"))

	got, err := store.GetTransactionByID(ctx, "txn-a")
	require.NoError(t, err)
	assert.True(t, got.Reconciled)
	assert.Equal(t, "entry-1", got.EntryID)
	assert.InDelta(t, 0.95, got.Confidence, 0.001)
	assert.Equal(t, "fee heuristic", got.Reasoning)

	err = store.MarkTransactionReconciled(ctx, "missing", "entry-1", 1.0, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGetPendingTransactionsHonorsPeriod(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	inMarch := sampleTransaction("txn-march", 15)
	inApril := sampleTransaction("txn-april", 1)
	inApril.Date = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTransactions(ctx, []model.BankTransaction{inMarch, inApril}))
	require.NoError(t, store.MarkTransactionReconciled(ctx, "txn-april", "entry-x", 1.0, ""))

	pending, err := store.GetPendingTransactions(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "txn-march", pending[0].ID)

	pending, err = store.GetPendingTransactions(ctx, 2025, 4)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSaveCompanyReplacesPartners(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	company := model.Company{
		ID:        "co-acme",
		LegalName: "ACME Consultoria LTDA",
		TradeName: "ACME",
		IsActive:  true,
		Partners: []model.Partner{
			{Name: "José Silva", Role: "administrator"},
			{Name: "Maria Souza", Role: "partner"},
		},
	}
	require.NoError(t, store.SaveCompany(ctx, &company))

	company.Partners = []model.Partner{{Name: "Pedro Lima", Role: "partner"}}
	require.NoError(t, store.SaveCompany(ctx, &company))

	got, err := store.GetCompanyByID(ctx, "co-acme")
	require.NoError(t, err)
	require.Len(t, got.Partners, 1)
	assert.Equal(t, "Pedro Lima", got.Partners[0].Name)
}

func TestGetActiveCompaniesExcludesInactive(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCompany(ctx, &model.Company{
		ID: "co-active", LegalName: "Ativa LTDA", IsActive: true,
	}))
	require.NoError(t, store.SaveCompany(ctx, &model.Company{
		ID: "co-gone", LegalName: "Encerrada LTDA", IsActive: false,
	}))

	companies, err := store.GetActiveCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "co-active", companies[0].ID)
}

func TestOutstandingLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCompany(ctx, &model.Company{
		ID: "co-acme", LegalName: "ACME LTDA", IsActive: true,
	}))

	due := time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveOutstanding(ctx, &model.Outstanding{
		CompanyID: "co-acme", DueDate: due, Amount: 1000, Remaining: 1000,
	}))

	open, err := store.GetOutstandingByCompanies(ctx, []string{"co-acme"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ACME LTDA", open[0].CompanyName)

	require.NoError(t, store.ReduceOutstanding(ctx, "co-acme", due, 400))

	open, err = store.GetOutstandingByCompanies(ctx, []string{"co-acme"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 600, open[0].Remaining, 0.001)

	require.NoError(t, store.ReduceOutstanding(ctx, "co-acme", due, 600))

	open, err = store.GetOutstandingByCompanies(ctx, []string{"co-acme"})
	require.NoError(t, err)
	assert.Empty(t, open, "settled receivables drop out of the open list")

	err = store.ReduceOutstanding(ctx, "co-acme", due, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestLegacyBalances(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCompany(ctx, &model.Company{
		ID: "co-acme", LegalName: "ACME LTDA", IsActive: true,
	}))

	amount, err := store.GetLegacyBalance(ctx, "co-acme")
	require.NoError(t, err)
	assert.Zero(t, amount, "no row means zero, not an error")

	require.NoError(t, store.SaveLegacyBalance(ctx, "co-acme", 2500))

	amount, err = store.GetLegacyBalance(ctx, "co-acme")
	require.NoError(t, err)
	assert.InDelta(t, 2500, amount, 0.001)

	balances, err := store.GetLegacyBalances(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2500, balances["co-acme"], 0.001)
}
