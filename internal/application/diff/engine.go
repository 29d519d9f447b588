// Package diff computes reconciliation plans between a source and a
// destination catalog. It performs no I/O.
package diff

import (
	"sort"
	"strconv"
	"strings"

	"archie-core-sync-layer/internal/domain"
)

// ComputePlan returns one PlanItem per source item, in source order.
// Destination items are matched by SKU; a SKU present more than once on the
// destination side is never guessed at.
func ComputePlan(source, destination []domain.CatalogItem, rules domain.SyncRules) []domain.PlanItem {
	index := make(map[string][]int, len(destination))
	for i, item := range destination {
		sku := normalizeSKU(item.SKU)
		if sku == "" {
			continue
		}
		index[sku] = append(index[sku], i)
	}

	plan := make([]domain.PlanItem, 0, len(source))
	seen := make(map[string]struct{}, len(source))
	for _, src := range source {
		sku := normalizeSKU(src.SKU)
		src.SKU = sku
		switch {
		case sku == "":
			plan = append(plan, skip(src, domain.ReasonMissingSKU))
			continue
		case has(seen, sku):
			plan = append(plan, skip(src, domain.ReasonDuplicateSource))
			continue
		}
		seen[sku] = struct{}{}

		matches := index[sku]
		switch len(matches) {
		case 0:
			if !rules.CreateMissing {
				plan = append(plan, skip(src, domain.ReasonCreationDisabled))
				continue
			}
			plan = append(plan, createItem(src, rules))
		case 1:
			plan = append(plan, compare(src, destination[matches[0]], rules))
		default:
			plan = append(plan, skip(src, domain.ReasonAmbiguousMatch))
		}
	}
	return plan
}

func skip(src domain.CatalogItem, reason string) domain.PlanItem {
	return domain.PlanItem{SKU: src.SKU, Action: domain.ActionSkip, Reason: reason, Source: src}
}

// CreationDeltas returns the fields written when src is created on the
// destination. Title and price are only ever written on creation.
func CreationDeltas(src domain.CatalogItem, rules domain.SyncRules) domain.ItemDeltas {
	title := src.Title
	price := src.Price
	stock := src.Stock
	deltas := domain.ItemDeltas{
		Title:   &title,
		Price:   &price,
		Stock:   &stock,
		Publish: rules.PublishNew,
	}
	if rules.SyncCategories {
		deltas.Categories = normalizeSet(src.Categories)
	}
	if rules.SyncTags {
		deltas.Tags = normalizeSet(src.Tags)
	}
	if rules.SyncCollections {
		deltas.Collections = normalizeSet(src.Collections)
	}
	return deltas
}

func createItem(src domain.CatalogItem, rules domain.SyncRules) domain.PlanItem {
	deltas := CreationDeltas(src, rules)
	changes := []domain.FieldChange{
		{Field: "title", To: *deltas.Title},
		{Field: "price", To: deltas.Price.StringFixed(2)},
		{Field: "stock", To: strconv.Itoa(*deltas.Stock)},
	}
	if deltas.Categories != nil {
		changes = append(changes, domain.FieldChange{Field: "categories", To: joinSet(deltas.Categories)})
	}
	if deltas.Tags != nil {
		changes = append(changes, domain.FieldChange{Field: "tags", To: joinSet(deltas.Tags)})
	}
	if deltas.Collections != nil {
		changes = append(changes, domain.FieldChange{Field: "collections", To: joinSet(deltas.Collections)})
	}
	return domain.PlanItem{
		SKU:     src.SKU,
		Action:  domain.ActionCreate,
		Reason:  domain.ReasonMissingInDest,
		Changes: changes,
		Deltas:  deltas,
		Source:  src,
	}
}

// compare builds an update when any rule-gated field differs. Stock is
// always compared and always carried by an update.
func compare(src, dst domain.CatalogItem, rules domain.SyncRules) domain.PlanItem {
	var (
		deltas  domain.ItemDeltas
		changes []domain.FieldChange
	)

	if src.Stock != dst.Stock {
		changes = append(changes, domain.FieldChange{
			Field: "stock",
			From:  strconv.Itoa(dst.Stock),
			To:    strconv.Itoa(src.Stock),
		})
	}
	if rules.SyncPrice && !src.Price.Equal(dst.Price) {
		price := src.Price
		deltas.Price = &price
		changes = append(changes, domain.FieldChange{
			Field: "price",
			From:  dst.Price.StringFixed(2),
			To:    src.Price.StringFixed(2),
		})
	}
	if rules.SyncCategories {
		if set, change, ok := diffSet("categories", src.Categories, dst.Categories); ok {
			deltas.Categories = set
			changes = append(changes, change)
		}
	}
	if rules.SyncTags {
		if set, change, ok := diffSet("tags", src.Tags, dst.Tags); ok {
			deltas.Tags = set
			changes = append(changes, change)
		}
	}
	if rules.SyncCollections {
		if set, change, ok := diffSet("collections", src.Collections, dst.Collections); ok {
			deltas.Collections = set
			changes = append(changes, change)
		}
	}

	if len(changes) == 0 {
		return skip(src, domain.ReasonNoChanges)
	}
	stock := src.Stock
	deltas.Stock = &stock
	return domain.PlanItem{
		SKU:     src.SKU,
		Action:  domain.ActionUpdate,
		Reason:  domain.ReasonFieldsChanged,
		Changes: changes,
		Deltas:  deltas,
		Source:  src,
	}
}

func diffSet(field string, src, dst []string) ([]string, domain.FieldChange, bool) {
	want := normalizeSet(src)
	have := normalizeSet(dst)
	if equalSets(want, have) {
		return nil, domain.FieldChange{}, false
	}
	return want, domain.FieldChange{Field: field, From: joinSet(have), To: joinSet(want)}, true
}

// normalizeSet trims, drops empties, de-duplicates and sorts. The result is
// never nil so an empty set still clears the destination.
func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || has(seen, v) {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinSet(values []string) string {
	return strings.Join(values, ", ")
}

func normalizeSKU(sku string) string {
	return strings.TrimSpace(sku)
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
