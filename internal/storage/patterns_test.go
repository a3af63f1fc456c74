package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplafin/contaflow/internal/model"
)

func TestUpsertLearnedPatternBumpsUsage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	pattern := model.LearnedPattern{
		Pattern:       "folha pagamento",
		DebitAccount:  "4.1.2.99",
		CreditAccount: "1.1.1.02",
		EntryType:     model.EntryExpense,
	}
	require.NoError(t, store.UpsertLearnedPattern(ctx, &pattern))

	patterns, err := store.GetLearnedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 1, patterns[0].UsageCount)

	// A second confirmation of the same key bumps usage and can retarget
	// the accounts.
	pattern.DebitAccount = "4.1.3.01"
	require.NoError(t, store.UpsertLearnedPattern(ctx, &pattern))

	patterns, err = store.GetLearnedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].UsageCount)
	assert.Equal(t, "4.1.3.01", patterns[0].DebitAccount)
}

func TestGetLearnedPatternsOrderedByUsage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rare := model.LearnedPattern{
		Pattern: "aluguel escritorio", DebitAccount: "4.1.2.99", CreditAccount: "1.1.1.02",
	}
	frequent := model.LearnedPattern{
		Pattern: "mensalidade contabil", DebitAccount: "1.1.1.02", CreditAccount: "3.1.1.01",
	}
	require.NoError(t, store.UpsertLearnedPattern(ctx, &rare))
	require.NoError(t, store.UpsertLearnedPattern(ctx, &frequent))
	require.NoError(t, store.UpsertLearnedPattern(ctx, &frequent))

	patterns, err := store.GetLearnedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "mensalidade contabil", patterns[0].Pattern)
	assert.Equal(t, 2, patterns[0].UsageCount)
}
