package service

import (
	"context"
	"testing"

	"mysticoracle/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpreadCosts(t *testing.T) {
	db := newTestDB(t)
	svc := NewCatalogService(db, testConfig())

	cost, err := svc.GetSpreadCost("celtic_cross")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cost)

	_, err = svc.GetSpreadCost("unknown_spread")
	assert.Error(t, err)

	assert.Equal(t, int64(1), svc.GetFollowUpCost())
	assert.Equal(t, int64(2), svc.GetExtendedQuestionCost())
	assert.Equal(t, int64(1), svc.GetQuestionSummaryCost())
}

func TestListActivePackagesOrdering(t *testing.T) {
	db := newTestDB(t)
	svc := NewCatalogService(db, testConfig())
	ctx := context.Background()

	require.NoError(t, db.Create(&model.CreditPackage{Credits: 60, PriceCents: 3499, Currency: "USD", LabelKey: "p_value", Active: true, SortOrder: 3}).Error)
	require.NoError(t, db.Create(&model.CreditPackage{Credits: 3, PriceCents: 299, Currency: "USD", LabelKey: "p_starter", Active: true, SortOrder: 1}).Error)
	require.NoError(t, db.Create(&model.CreditPackage{Credits: 10, PriceCents: 799, Currency: "USD", LabelKey: "p_retired", Active: false, SortOrder: 2}).Error)

	packages, err := svc.ListActivePackages(ctx)
	require.NoError(t, err)
	require.Len(t, packages, 2, "下架套餐不出现在列表里")
	assert.Equal(t, "p_starter", packages[0].LabelKey)
	assert.Equal(t, "p_value", packages[1].LabelKey)
}
