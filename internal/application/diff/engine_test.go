package diff

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archie-core-sync-layer/internal/domain"
)

func item(sku string, price string, stock int) domain.CatalogItem {
	return domain.CatalogItem{
		SKU:   sku,
		Title: "Item " + sku,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func allRules() domain.SyncRules {
	return domain.SyncRules{
		SyncPrice:       true,
		SyncCategories:  true,
		SyncTags:        true,
		SyncCollections: true,
		CreateMissing:   true,
	}
}

// applyPlan writes create and update actions onto a copy of destination.
func applyPlan(destination []domain.CatalogItem, plan []domain.PlanItem) []domain.CatalogItem {
	out := append([]domain.CatalogItem(nil), destination...)
	for _, p := range plan {
		switch p.Action {
		case domain.ActionCreate:
			out = append(out, p.Deltas.ApplyTo(domain.CatalogItem{SKU: p.SKU}))
		case domain.ActionUpdate:
			for i := range out {
				if out[i].SKU == p.SKU {
					out[i] = p.Deltas.ApplyTo(out[i])
				}
			}
		}
	}
	return out
}

func TestComputePlan_PriceIsRuleGated(t *testing.T) {
	source := []domain.CatalogItem{item("A", "12.00", 5)}
	destination := []domain.CatalogItem{item("A", "10.00", 5)}
	rules := allRules()
	rules.SyncPrice = false

	plan := ComputePlan(source, destination, rules)

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionSkip, plan[0].Action)
	assert.Equal(t, domain.ReasonNoChanges, plan[0].Reason)
}

func TestComputePlan_PriceChangeWithSyncPrice(t *testing.T) {
	source := []domain.CatalogItem{item("A", "12.00", 5)}
	destination := []domain.CatalogItem{item("A", "10.00", 5)}

	plan := ComputePlan(source, destination, allRules())

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionUpdate, plan[0].Action)
	require.NotNil(t, plan[0].Deltas.Price)
	assert.True(t, plan[0].Deltas.Price.Equal(decimal.RequireFromString("12")))
	require.NotNil(t, plan[0].Deltas.Stock)
	assert.Equal(t, 5, *plan[0].Deltas.Stock)
}

func TestComputePlan_StockAlwaysCompared(t *testing.T) {
	source := []domain.CatalogItem{item("A", "10.00", 7)}
	destination := []domain.CatalogItem{item("A", "10.00", 3)}

	plan := ComputePlan(source, destination, domain.SyncRules{})

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionUpdate, plan[0].Action)
	require.NotNil(t, plan[0].Deltas.Stock)
	assert.Equal(t, 7, *plan[0].Deltas.Stock)
	assert.Nil(t, plan[0].Deltas.Price)
	assert.Equal(t, []domain.FieldChange{{Field: "stock", From: "3", To: "7"}}, plan[0].Changes)
}

func TestComputePlan_CreationDisabled(t *testing.T) {
	source := []domain.CatalogItem{item("X", "1.00", 1)}
	rules := allRules()
	rules.CreateMissing = false

	plan := ComputePlan(source, nil, rules)

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionSkip, plan[0].Action)
	assert.Equal(t, domain.ReasonCreationDisabled, plan[0].Reason)
}

func TestComputePlan_CreateCarriesPublishFlag(t *testing.T) {
	source := []domain.CatalogItem{item("X", "1.00", 1)}
	rules := allRules()
	rules.PublishNew = true

	plan := ComputePlan(source, nil, rules)

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionCreate, plan[0].Action)
	assert.True(t, plan[0].Deltas.Publish)
	require.NotNil(t, plan[0].Deltas.Title)
	assert.Equal(t, "Item X", *plan[0].Deltas.Title)
}

func TestComputePlan_AmbiguousDestination(t *testing.T) {
	source := []domain.CatalogItem{item("A", "1.00", 1)}
	destination := []domain.CatalogItem{item("A", "1.00", 1), item("A", "2.00", 4)}

	plan := ComputePlan(source, destination, allRules())

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionSkip, plan[0].Action)
	assert.Equal(t, domain.ReasonAmbiguousMatch, plan[0].Reason)
}

func TestComputePlan_MissingAndDuplicateSourceSKU(t *testing.T) {
	source := []domain.CatalogItem{item(" ", "1.00", 1), item("B", "1.00", 1), item("B", "2.00", 2)}

	plan := ComputePlan(source, nil, allRules())

	require.Len(t, plan, 3)
	assert.Equal(t, domain.ReasonMissingSKU, plan[0].Reason)
	assert.Equal(t, domain.ActionCreate, plan[1].Action)
	assert.Equal(t, domain.ActionSkip, plan[2].Action)
	assert.Equal(t, domain.ReasonDuplicateSource, plan[2].Reason)
}

func TestComputePlan_SetsComparedWithoutOrder(t *testing.T) {
	src := item("A", "1.00", 1)
	src.Tags = []string{"b", "a", "a"}
	dst := item("A", "1.00", 1)
	dst.Tags = []string{"a", "b"}

	plan := ComputePlan([]domain.CatalogItem{src}, []domain.CatalogItem{dst}, allRules())

	require.Len(t, plan, 1)
	assert.Equal(t, domain.ActionSkip, plan[0].Action)
}

func TestComputePlan_PreservesSourceOrder(t *testing.T) {
	source := []domain.CatalogItem{item("C", "1", 1), item("A", "1", 1), item("B", "1", 1)}

	plan := ComputePlan(source, nil, allRules())

	skus := make([]string, 0, len(plan))
	for _, p := range plan {
		skus = append(skus, p.SKU)
	}
	assert.Equal(t, []string{"C", "A", "B"}, skus)
}

func TestComputePlan_Deterministic(t *testing.T) {
	source := []domain.CatalogItem{item("A", "12.00", 5), item("B", "3.00", 1), item("C", "4.00", 0)}
	source[0].Categories = []string{"Shoes", "Sale"}
	destination := []domain.CatalogItem{item("A", "10.00", 5), item("C", "4.00", 2)}

	first := ComputePlan(source, destination, allRules())
	second := ComputePlan(source, destination, allRules())

	assert.Equal(t, first, second)
}

func TestComputePlan_RoundTripYieldsOnlySkips(t *testing.T) {
	source := []domain.CatalogItem{item("A", "12.00", 5), item("B", "3.00", 1), item("C", "4.00", 0)}
	source[0].Categories = []string{"Shoes"}
	source[1].Tags = []string{"new", "summer"}
	source[2].Collections = []string{"Frontpage"}
	destination := []domain.CatalogItem{item("A", "10.00", 2), item("C", "4.00", 9)}

	plan := ComputePlan(source, destination, allRules())
	summary := domain.Summarize(plan)
	require.Equal(t, 1, summary.Create)
	require.Equal(t, 2, summary.Update)

	replanned := ComputePlan(source, applyPlan(destination, plan), allRules())
	for _, p := range replanned {
		assert.Equal(t, domain.ActionSkip, p.Action, p.SKU)
		assert.Equal(t, domain.ReasonNoChanges, p.Reason, p.SKU)
	}
}

func TestComputePlan_IdempotentWithoutSourceChanges(t *testing.T) {
	source := []domain.CatalogItem{item("A", "12.00", 5), item("B", "3.00", 1)}
	destination := append([]domain.CatalogItem(nil), source...)

	plan := ComputePlan(source, destination, allRules())

	assert.Equal(t, domain.PlanSummary{Skip: 2}, domain.Summarize(plan))
}
