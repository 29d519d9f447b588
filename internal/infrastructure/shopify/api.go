package shopify

import (
	"context"
	"fmt"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// productQuery is encoded as the query string of product listings. Shopify
// rejects filters next to page_info, so a cursor page carries only limit.
type productQuery struct {
	Limit        int    `url:"limit,omitempty"`
	PageInfo     string `url:"page_info,omitempty"`
	UpdatedAtMin string `url:"updated_at_min,omitempty"`
}

type limitQuery struct {
	Limit int `url:"limit,omitempty"`
}

// adminAPI is the slice of the Admin REST API the sync layer uses.
type adminAPI interface {
	ListProducts(ctx context.Context, q productQuery) ([]goshopify.Product, string, error)
	CreateProduct(ctx context.Context, p goshopify.Product) (*goshopify.Product, error)
	UpdateProduct(ctx context.Context, p goshopify.Product) (*goshopify.Product, error)
	UpdateVariant(ctx context.Context, v goshopify.Variant) (*goshopify.Variant, error)
	SetInventoryLevel(ctx context.Context, level goshopify.InventoryLevel) error
	ListCustomCollections(ctx context.Context) ([]goshopify.CustomCollection, error)
	ListCollects(ctx context.Context) ([]goshopify.Collect, error)
	CreateCollect(ctx context.Context, c goshopify.Collect) error
	ListLocations(ctx context.Context) ([]goshopify.Location, error)
	ListWebhooks(ctx context.Context) ([]goshopify.Webhook, error)
	CreateWebhook(ctx context.Context, w goshopify.Webhook) error
}

// apiFactory opens an adminAPI for one shop.
type apiFactory func(shop, accessToken string) (adminAPI, error)

// restAPI implements adminAPI with go-shopify. Every call waits on the
// shop's rate limiter first.
type restAPI struct {
	client  *goshopify.Client
	shop    string
	limiter *RateLimiter
}

func newRESTFactory(app goshopify.App, limiter *RateLimiter) apiFactory {
	return func(shop, accessToken string) (adminAPI, error) {
		client, err := goshopify.NewClient(app, shop, accessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
		return &restAPI{client: client, shop: shop, limiter: limiter}, nil
	}
}

func (a *restAPI) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx, a.shop)
}

func (a *restAPI) ListProducts(ctx context.Context, q productQuery) ([]goshopify.Product, string, error) {
	if err := a.wait(ctx); err != nil {
		return nil, "", err
	}
	products, pagination, err := a.client.Product.ListWithPagination(ctx, q)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if pagination != nil && pagination.NextPageOptions != nil {
		next = pagination.NextPageOptions.PageInfo
	}
	return products, next, nil
}

func (a *restAPI) CreateProduct(ctx context.Context, p goshopify.Product) (*goshopify.Product, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.Product.Create(ctx, p)
}

func (a *restAPI) UpdateProduct(ctx context.Context, p goshopify.Product) (*goshopify.Product, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.Product.Update(ctx, p)
}

func (a *restAPI) UpdateVariant(ctx context.Context, v goshopify.Variant) (*goshopify.Variant, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.Variant.Update(ctx, v)
}

func (a *restAPI) SetInventoryLevel(ctx context.Context, level goshopify.InventoryLevel) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.client.InventoryLevel.Set(ctx, level)
	return err
}

func (a *restAPI) ListCustomCollections(ctx context.Context) ([]goshopify.CustomCollection, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.CustomCollection.List(ctx, limitQuery{Limit: 250})
}

func (a *restAPI) ListCollects(ctx context.Context) ([]goshopify.Collect, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.Collect.List(ctx, limitQuery{Limit: 250})
}

func (a *restAPI) CreateCollect(ctx context.Context, c goshopify.Collect) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.client.Collect.Create(ctx, c)
	return err
}

func (a *restAPI) ListLocations(ctx context.Context) ([]goshopify.Location, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.Location.List(ctx, nil)
}

func (a *restAPI) ListWebhooks(ctx context.Context) ([]goshopify.Webhook, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.Webhook.List(ctx, nil)
}

func (a *restAPI) CreateWebhook(ctx context.Context, w goshopify.Webhook) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.client.Webhook.Create(ctx, w)
	return err
}
