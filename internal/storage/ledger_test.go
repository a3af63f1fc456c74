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

func sampleEntry(id, sourceID string, amount float64) *model.LedgerEntry {
	return &model.LedgerEntry{
		ID:           id,
		Date:         time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Description:  "service revenue receipt",
		EntryType:    model.EntryRevenueReceipt,
		InternalCode: "CF-202503-" + id,
		SourceType:   model.SourceTypeBankTransaction,
		SourceID:     sourceID,
		Lines: []model.LedgerLine{
			{Account: "1.1.1.02", AccountName: "Bank Accounts", Debit: amount},
			{Account: "3.1.1.01", AccountName: "Service Revenue", Credit: amount},
		},
	}
}

func TestCreateAndGetLedgerEntry(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := sampleEntry("entry-1", "txn-1", 500)
	require.NoError(t, store.CreateLedgerEntry(ctx, entry))

	got, err := store.GetLedgerEntryByID(ctx, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, entry.SourceID, got.SourceID)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "1.1.1.02", got.Lines[0].Account)
	assert.True(t, got.Balanced())

	bySource, err := store.GetLedgerEntryBySource(ctx, model.SourceTypeBankTransaction, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "entry-1", bySource.ID)
}

func TestCreateLedgerEntryRejectsDuplicateSource(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLedgerEntry(ctx, sampleEntry("entry-1", "txn-1", 500)))

	err := store.CreateLedgerEntry(ctx, sampleEntry("entry-2", "txn-1", 500))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDuplicateEntry),
		"the unique source index must surface as ErrDuplicateEntry")

	// The losing entry left nothing behind.
	_, err = store.GetLedgerEntryByID(ctx, "entry-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCreateLedgerEntryRejectsUnbalanced(t *testing.T) {
	store := setupStore(t)

	entry := sampleEntry("entry-1", "txn-1", 500)
	entry.Lines[1].Credit = 400

	err := store.CreateLedgerEntry(context.Background(), entry)
	require.Error(t, err)
}

func TestGetSuspenseBalances(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	inPeriod := sampleEntry("entry-1", "txn-1", 120)
	inPeriod.Lines = []model.LedgerLine{
		{Account: "1.1.9.01", AccountName: "Suspense Debits", Debit: 120},
		{Account: "1.1.1.02", AccountName: "Bank Accounts", Credit: 120},
	}
	require.NoError(t, store.CreateLedgerEntry(ctx, inPeriod))

	outOfPeriod := sampleEntry("entry-2", "txn-2", 80)
	outOfPeriod.Date = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	outOfPeriod.Lines = []model.LedgerLine{
		{Account: "1.1.9.01", AccountName: "Suspense Debits", Debit: 80},
		{Account: "1.1.1.02", AccountName: "Bank Accounts", Credit: 80},
	}
	require.NoError(t, store.CreateLedgerEntry(ctx, outOfPeriod))

	balances, err := store.GetSuspenseBalances(ctx, 2025, 3, []string{"1.1.9.01", "2.1.9.01"})
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "1.1.9.01", balances[0].Account)
	assert.InDelta(t, 120, balances[0].Net(), 0.001)
	assert.False(t, balances[0].IsZero())

	// No suspense accounts requested, nothing to report.
	balances, err = store.GetSuspenseBalances(ctx, 2025, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestGetUnbalancedEntriesFindsNone(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateLedgerEntry(ctx, sampleEntry("entry-1", "txn-1", 500)))

	ids, err := store.GetUnbalancedEntries(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
