package shopify

import (
	"context"
	"sync"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

type fakeAPI struct {
	mu          sync.Mutex
	pages       map[string][]goshopify.Product
	next        map[string]string
	queries     []productQuery
	created     []goshopify.Product
	variants    []goshopify.Variant
	products    []goshopify.Product
	levels      []goshopify.InventoryLevel
	custom      []goshopify.CustomCollection
	collects    []goshopify.Collect
	newCollects []goshopify.Collect
	locations   []goshopify.Location
	webhooks    []goshopify.Webhook
	createErr   error
	listErr     error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{pages: map[string][]goshopify.Product{}, next: map[string]string{}}
}

func (f *fakeAPI) ListProducts(_ context.Context, q productQuery) ([]goshopify.Product, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	return f.pages[q.PageInfo], f.next[q.PageInfo], nil
}

func (f *fakeAPI) CreateProduct(_ context.Context, p goshopify.Product) (*goshopify.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, p)
	p.Id = uint64(1000 + len(f.created))
	for i := range p.Variants {
		p.Variants[i].Id = p.Id*10 + uint64(i)
		p.Variants[i].InventoryItemId = p.Id*100 + uint64(i)
	}
	return &p, nil
}

func (f *fakeAPI) UpdateProduct(_ context.Context, p goshopify.Product) (*goshopify.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append(f.products, p)
	return &p, nil
}

func (f *fakeAPI) UpdateVariant(_ context.Context, v goshopify.Variant) (*goshopify.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants = append(f.variants, v)
	return &v, nil
}

func (f *fakeAPI) SetInventoryLevel(_ context.Context, level goshopify.InventoryLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	return nil
}

func (f *fakeAPI) ListCustomCollections(context.Context) ([]goshopify.CustomCollection, error) {
	return f.custom, nil
}

func (f *fakeAPI) ListCollects(context.Context) ([]goshopify.Collect, error) {
	return f.collects, nil
}

func (f *fakeAPI) CreateCollect(_ context.Context, c goshopify.Collect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newCollects = append(f.newCollects, c)
	return nil
}

func (f *fakeAPI) ListLocations(context.Context) ([]goshopify.Location, error) {
	return f.locations, nil
}

func (f *fakeAPI) ListWebhooks(context.Context) ([]goshopify.Webhook, error) {
	return f.webhooks, nil
}

func (f *fakeAPI) CreateWebhook(_ context.Context, w goshopify.Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, w)
	return nil
}
