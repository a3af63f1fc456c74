package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplafin/contaflow/internal/common"
	"github.com/amplafin/contaflow/internal/model"
)

func TestRuleLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	credit := model.DirectionCredit
	rule := model.ClassificationRule{
		Name:          "acme retainer",
		Priority:      10,
		MatchType:     model.MatchSubstring,
		MatchValue:    "acme consultoria",
		Direction:     &credit,
		DebitAccount:  "1.1.1.02",
		CreditAccount: "3.1.1.01",
		IsActive:      true,
	}
	require.NoError(t, store.CreateRule(ctx, &rule))
	require.NotZero(t, rule.ID)

	rules, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "acme retainer", rules[0].Name)
	require.NotNil(t, rules[0].Direction)
	assert.Equal(t, model.DirectionCredit, *rules[0].Direction)

	rule.Priority = 5
	rule.IsActive = false
	require.NoError(t, store.UpdateRule(ctx, &rule))

	rules, err = store.GetActiveRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules, "inactive rules are not returned")

	require.NoError(t, store.DeleteRule(ctx, rule.ID))
	err = store.DeleteRule(ctx, rule.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGetActiveRulesOrder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, r := range []model.ClassificationRule{
		{Name: "late", Priority: 200, MatchType: model.MatchSubstring, MatchValue: "b",
			DebitAccount: "1.1.9.01", CreditAccount: "1.1.1.02", IsActive: true},
		{Name: "early", Priority: 10, MatchType: model.MatchSubstring, MatchValue: "a",
			DebitAccount: "1.1.9.01", CreditAccount: "1.1.1.02", IsActive: true},
	} {
		rule := r
		require.NoError(t, store.CreateRule(ctx, &rule))
	}

	rules, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "early", rules[0].Name)
	assert.Equal(t, "late", rules[1].Name)
}

func TestCreateRuleRejectsOneSidedAccounts(t *testing.T) {
	store := setupStore(t)

	rule := model.ClassificationRule{
		Name:         "broken",
		MatchType:    model.MatchSubstring,
		MatchValue:   "x",
		DebitAccount: "1.1.1.02",
		IsActive:     true,
	}
	err := store.CreateRule(context.Background(), &rule)
	require.Error(t, err, "a rule must carry both accounts or neither")
}

func TestRedirectRuleRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	rule := model.ClassificationRule{
		Name:       "group payments",
		Priority:   1,
		MatchType:  model.MatchSubstring,
		MatchValue: "grupo",
		IsActive:   true,
	}
	require.NoError(t, store.CreateRule(ctx, &rule))

	rules, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].IsRedirect())
	assert.Nil(t, rules[0].Direction)
}
