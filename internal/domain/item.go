package domain

import (
	"github.com/shopspring/decimal"
)

// CatalogItem is a platform-neutral sellable unit keyed by SKU.
type CatalogItem struct {
	SKU         string          `json:"sku"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Categories  []string        `json:"categories,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Collections []string        `json:"collections,omitempty"`
	RemoteID    string          `json:"remote_id,omitempty"`
}

// ItemPage is one page of a lazy item listing. An empty NextCursor ends
// the sequence.
type ItemPage struct {
	Items      []CatalogItem
	NextCursor string
}

// ItemDeltas are the fields to write for a create or update. Nil pointers
// and nil slices mean "leave unchanged".
type ItemDeltas struct {
	Title       *string          `json:"title,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	Categories  []string         `json:"categories,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Collections []string         `json:"collections,omitempty"`
	Publish     bool             `json:"publish,omitempty"`
}

// Empty reports whether no field would be written.
func (d ItemDeltas) Empty() bool {
	return d.Title == nil && d.Price == nil && d.Stock == nil &&
		d.Categories == nil && d.Tags == nil && d.Collections == nil
}

// WithoutStock returns a copy with the stock delta removed.
func (d ItemDeltas) WithoutStock() ItemDeltas {
	d.Stock = nil
	return d
}

// ApplyTo returns item with the deltas written over it.
func (d ItemDeltas) ApplyTo(item CatalogItem) CatalogItem {
	if d.Title != nil {
		item.Title = *d.Title
	}
	if d.Price != nil {
		item.Price = *d.Price
	}
	if d.Stock != nil {
		item.Stock = *d.Stock
	}
	if d.Categories != nil {
		item.Categories = append([]string(nil), d.Categories...)
	}
	if d.Tags != nil {
		item.Tags = append([]string(nil), d.Tags...)
	}
	if d.Collections != nil {
		item.Collections = append([]string(nil), d.Collections...)
	}
	return item
}
