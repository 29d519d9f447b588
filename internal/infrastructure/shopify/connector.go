package shopify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	maxPageSize  = 250
	defaultTitle = "Default Title"
)

type variantRef struct {
	productID       uint64
	variantID       uint64
	inventoryItemID uint64
}

type collectionIndex struct {
	titleByID map[uint64]string
	idByTitle map[string]uint64
	byProduct map[uint64][]string
}

// Connector is the Shopify StoreConnector. One catalog item is one product
// variant keyed by its SKU.
type Connector struct {
	api    adminAPI
	shop   string
	logger zerolog.Logger

	mu          sync.Mutex
	variants    map[string]variantRef
	collections *collectionIndex
}

var _ ports.StoreConnector = (*Connector)(nil)

func newConnector(api adminAPI, shop string, logger zerolog.Logger) *Connector {
	return &Connector{
		api:      api,
		shop:     shop,
		logger:   logger.With().Str("shop", shop).Logger(),
		variants: make(map[string]variantRef),
	}
}

func (c *Connector) Platform() domain.Platform { return domain.PlatformShopify }

func (c *Connector) Capabilities() ports.Capabilities {
	return ports.Capabilities{InventoryViaLevels: true}
}

func (c *Connector) ListItems(ctx context.Context, cursor string, opts ports.ListOptions) (*domain.ItemPage, error) {
	q := productQuery{Limit: opts.PageSize, PageInfo: cursor}
	if q.Limit <= 0 || q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if cursor == "" && opts.UpdatedSince != nil {
		q.UpdatedAtMin = opts.UpdatedSince.UTC().Format(time.RFC3339)
	}

	products, next, err := c.api.ListProducts(ctx, q)
	if err != nil {
		return nil, classify("list products", err)
	}
	collections, err := c.loadCollections(ctx)
	if err != nil {
		return nil, err
	}

	page := &domain.ItemPage{NextCursor: next}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		for _, v := range p.Variants {
			sku := strings.TrimSpace(v.Sku)
			if sku != "" {
				c.variants[sku] = variantRef{productID: p.Id, variantID: v.Id, inventoryItemID: v.InventoryItemId}
			}
			page.Items = append(page.Items, toCatalogItem(p, v, collections.byProduct[p.Id]))
		}
	}
	return page, nil
}

func toCatalogItem(p goshopify.Product, v goshopify.Variant, collections []string) domain.CatalogItem {
	title := p.Title
	if len(p.Variants) > 1 && v.Title != "" && v.Title != defaultTitle {
		title = p.Title + " - " + v.Title
	}
	price := decimal.Zero
	if v.Price != nil {
		price = *v.Price
	}
	item := domain.CatalogItem{
		SKU:         strings.TrimSpace(v.Sku),
		Title:       title,
		Price:       price,
		Stock:       v.InventoryQuantity,
		Tags:        splitTags(p.Tags),
		Collections: collections,
		RemoteID:    strconv.FormatUint(v.Id, 10),
	}
	if p.ProductType != "" {
		item.Categories = []string{p.ProductType}
	}
	return item
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (c *Connector) CreateItem(ctx context.Context, item domain.CatalogItem, deltas domain.ItemDeltas) error {
	item = deltas.ApplyTo(item)
	price := item.Price
	product := goshopify.Product{
		Title:  item.Title,
		Tags:   strings.Join(deltas.Tags, ", "),
		Status: goshopify.ProductStatusDraft,
		Variants: []goshopify.Variant{{
			Sku:                 item.SKU,
			Price:               &price,
			InventoryManagement: "shopify",
		}},
	}
	if deltas.Publish {
		product.Status = goshopify.ProductStatusActive
	}
	if len(deltas.Categories) > 0 {
		product.ProductType = deltas.Categories[0]
	}

	created, err := c.api.CreateProduct(ctx, product)
	if err != nil {
		return classify("create product", err)
	}
	if created == nil || len(created.Variants) == 0 {
		return domain.NewConnectorError(domain.KindUpstreamServer, "create product", 0, fmt.Errorf("no variant returned for sku %s", item.SKU))
	}
	v := created.Variants[0]
	c.mu.Lock()
	c.variants[item.SKU] = variantRef{productID: created.Id, variantID: v.Id, inventoryItemID: v.InventoryItemId}
	c.mu.Unlock()

	if deltas.Collections != nil {
		return c.addToCollections(ctx, created.Id, deltas.Collections)
	}
	return nil
}

// UpdateItem writes price on the variant and categories, tags and
// collection membership on the product. Stock goes through SetInventoryLevel.
func (c *Connector) UpdateItem(ctx context.Context, sku string, deltas domain.ItemDeltas) error {
	ref, err := c.lookup(sku, "update product")
	if err != nil {
		return err
	}

	if deltas.Price != nil {
		price := *deltas.Price
		if _, err := c.api.UpdateVariant(ctx, goshopify.Variant{Id: ref.variantID, ProductId: ref.productID, Price: &price}); err != nil {
			return classify("update variant", err)
		}
	}
	if deltas.Categories != nil || deltas.Tags != nil {
		product := goshopify.Product{Id: ref.productID}
		if len(deltas.Categories) > 0 {
			product.ProductType = deltas.Categories[0]
		}
		if deltas.Tags != nil {
			product.Tags = strings.Join(deltas.Tags, ", ")
		}
		if _, err := c.api.UpdateProduct(ctx, product); err != nil {
			return classify("update product", err)
		}
	}
	if deltas.Collections != nil {
		return c.addToCollections(ctx, ref.productID, deltas.Collections)
	}
	return nil
}

func (c *Connector) SetInventoryLevel(ctx context.Context, locationID, sku string, quantity int) error {
	ref, err := c.lookup(sku, "set inventory level")
	if err != nil {
		return err
	}
	location, err := strconv.ParseUint(locationID, 10, 64)
	if err != nil {
		return domain.NewConnectorError(domain.KindUpstreamClient, "set inventory level", 0, fmt.Errorf("invalid location id %q", locationID))
	}
	err = c.api.SetInventoryLevel(ctx, goshopify.InventoryLevel{
		InventoryItemId: ref.inventoryItemID,
		LocationId:      location,
		Available:       quantity,
	})
	return classify("set inventory level", err)
}

func (c *Connector) lookup(sku, op string) (variantRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.variants[strings.TrimSpace(sku)]
	if !ok {
		return variantRef{}, domain.NewConnectorError(domain.KindNotFound, op, 0, fmt.Errorf("sku %s not listed", sku))
	}
	return ref, nil
}

func (c *Connector) loadCollections(ctx context.Context) (*collectionIndex, error) {
	c.mu.Lock()
	loaded := c.collections
	c.mu.Unlock()
	if loaded != nil {
		return loaded, nil
	}

	custom, err := c.api.ListCustomCollections(ctx)
	if err != nil {
		return nil, classify("list collections", err)
	}
	collects, err := c.api.ListCollects(ctx)
	if err != nil {
		return nil, classify("list collects", err)
	}
	idx := &collectionIndex{
		titleByID: make(map[uint64]string, len(custom)),
		idByTitle: make(map[string]uint64, len(custom)),
		byProduct: make(map[uint64][]string),
	}
	for _, cc := range custom {
		idx.titleByID[cc.Id] = cc.Title
		idx.idByTitle[cc.Title] = cc.Id
	}
	for _, col := range collects {
		if title, ok := idx.titleByID[col.CollectionId]; ok {
			idx.byProduct[col.ProductId] = append(idx.byProduct[col.ProductId], title)
		}
	}

	c.mu.Lock()
	c.collections = idx
	c.mu.Unlock()
	return idx, nil
}

// addToCollections adds the product to every named custom collection it is
// not yet in. Membership is never removed.
func (c *Connector) addToCollections(ctx context.Context, productID uint64, titles []string) error {
	idx, err := c.loadCollections(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	current := make(map[string]struct{}, len(idx.byProduct[productID]))
	for _, t := range idx.byProduct[productID] {
		current[t] = struct{}{}
	}
	c.mu.Unlock()

	for _, title := range titles {
		if _, ok := current[title]; ok {
			continue
		}
		collectionID, ok := idx.idByTitle[title]
		if !ok {
			c.logger.Debug().Str("collection", title).Msg("Unknown collection skipped")
			continue
		}
		if err := c.api.CreateCollect(ctx, goshopify.Collect{CollectionId: collectionID, ProductId: productID}); err != nil {
			return classify("add to collection", err)
		}
		c.mu.Lock()
		idx.byProduct[productID] = append(idx.byProduct[productID], title)
		c.mu.Unlock()
	}
	return nil
}
