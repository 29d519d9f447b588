// Package woocommerce implements the WooCommerce-style REST destination.
package woocommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	apiPrefix   = "/wp-json/wc/v3"
	maxPageSize = 100
)

// Config configures the connector.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
	// RequestsPerSecond throttles every call; zero disables throttling.
	RequestsPerSecond float64
}

type term struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type product struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name,omitempty"`
	SKU           string `json:"sku,omitempty"`
	Status        string `json:"status,omitempty"`
	RegularPrice  string `json:"regular_price,omitempty"`
	ManageStock   *bool  `json:"manage_stock,omitempty"`
	StockQuantity *int   `json:"stock_quantity,omitempty"`
	Categories    []term `json:"categories,omitempty"`
	Tags          []term `json:"tags,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status     int   `json:"status"`
		ResourceID int64 `json:"resource_id"`
	} `json:"data"`
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Message
}

// Connector talks to the /wp-json/wc/v3 REST API with basic auth.
type Connector struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu         sync.Mutex
	ids        map[string]int64
	categories map[string]int64
	tags       map[string]int64

	// termMu serializes term resolution so concurrent items never create
	// the same term twice.
	termMu sync.Mutex
}

var _ ports.StoreConnector = (*Connector)(nil)

// NewConnector creates a connector for the store at cfg.BaseURL.
func NewConnector(cfg Config, logger zerolog.Logger) *Connector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+apiPrefix).
		SetBasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	c := &Connector{
		client: client,
		logger: logger.With().Str("store", cfg.BaseURL).Logger(),
		ids:    make(map[string]int64),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

func (c *Connector) Platform() domain.Platform { return domain.PlatformWooCommerce }

// Capabilities reports that stock travels inside the product payload.
func (c *Connector) Capabilities() ports.Capabilities { return ports.Capabilities{} }

func (c *Connector) request(ctx context.Context) (*resty.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return c.client.R().SetContext(ctx).SetError(&apiError{}), nil
}

// ListItems pages through /products. The cursor is the page number.
func (c *Connector) ListItems(ctx context.Context, cursor string, opts ports.ListOptions) (*domain.ItemPage, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, domain.NewConnectorError(domain.KindUpstreamClient, "list products", 0, fmt.Errorf("invalid cursor %q", cursor))
		}
		page = n
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > maxPageSize {
		perPage = maxPageSize
	}

	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	req.SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("per_page", strconv.Itoa(perPage)).
		SetQueryParam("orderby", "id").
		SetQueryParam("order", "asc")
	if opts.UpdatedSince != nil {
		req.SetQueryParam("modified_after", opts.UpdatedSince.UTC().Format("2006-01-02T15:04:05"))
	}

	var products []product
	resp, err := req.SetResult(&products).Get("/products")
	if err := check("list products", resp, err); err != nil {
		return nil, err
	}

	out := &domain.ItemPage{}
	c.mu.Lock()
	for _, p := range products {
		sku := strings.TrimSpace(p.SKU)
		if sku != "" {
			c.ids[sku] = p.ID
		}
		out.Items = append(out.Items, toCatalogItem(p))
	}
	c.mu.Unlock()

	totalPages, _ := strconv.Atoi(resp.Header().Get("X-WP-TotalPages"))
	if page < totalPages || (totalPages == 0 && len(products) == perPage) {
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}

func toCatalogItem(p product) domain.CatalogItem {
	item := domain.CatalogItem{
		SKU:      strings.TrimSpace(p.SKU),
		Title:    p.Name,
		RemoteID: strconv.FormatInt(p.ID, 10),
	}
	if d, err := decimal.NewFromString(p.RegularPrice); err == nil {
		item.Price = d
	}
	if p.StockQuantity != nil {
		item.Stock = *p.StockQuantity
	}
	for _, t := range p.Categories {
		item.Categories = append(item.Categories, t.Name)
	}
	for _, t := range p.Tags {
		item.Tags = append(item.Tags, t.Name)
	}
	return item
}

func (c *Connector) CreateItem(ctx context.Context, item domain.CatalogItem, deltas domain.ItemDeltas) error {
	item = deltas.ApplyTo(item)
	body, err := c.payload(ctx, deltas)
	if err != nil {
		return err
	}
	body.Name = item.Title
	body.SKU = item.SKU
	body.RegularPrice = item.Price.StringFixed(2)
	body.Status = "draft"
	if deltas.Publish {
		body.Status = "publish"
	}
	if body.StockQuantity == nil {
		stock := item.Stock
		body.StockQuantity = &stock
		body.ManageStock = boolPtr(true)
	}

	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	var created product
	resp, err := req.SetBody(body).SetResult(&created).Post("/products")
	if err := check("create product", resp, err); err != nil {
		return err
	}
	c.mu.Lock()
	c.ids[item.SKU] = created.ID
	c.mu.Unlock()
	return nil
}

// UpdateItem ignores collections, which the platform does not have.
func (c *Connector) UpdateItem(ctx context.Context, sku string, deltas domain.ItemDeltas) error {
	id, err := c.productID(ctx, sku, "update product")
	if err != nil {
		return err
	}
	body, err := c.payload(ctx, deltas)
	if err != nil {
		return err
	}
	if deltas.Title != nil {
		body.Name = *deltas.Title
	}
	return c.put(ctx, id, body)
}

func (c *Connector) SetInventoryLevel(ctx context.Context, _ string, sku string, quantity int) error {
	id, err := c.productID(ctx, sku, "set stock")
	if err != nil {
		return err
	}
	return c.put(ctx, id, product{ManageStock: boolPtr(true), StockQuantity: &quantity})
}

func (c *Connector) put(ctx context.Context, id int64, body product) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(body).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		Put("/products/{id}")
	return check("update product", resp, err)
}

// payload builds the shared create/update body. Price and title are set by
// the caller on creation.
func (c *Connector) payload(ctx context.Context, deltas domain.ItemDeltas) (product, error) {
	var body product
	if deltas.Price != nil {
		body.RegularPrice = deltas.Price.StringFixed(2)
	}
	if deltas.Stock != nil {
		stock := *deltas.Stock
		body.StockQuantity = &stock
		body.ManageStock = boolPtr(true)
	}
	if deltas.Categories != nil {
		terms, err := c.terms(ctx, "categories", deltas.Categories)
		if err != nil {
			return product{}, err
		}
		body.Categories = terms
	}
	if deltas.Tags != nil {
		terms, err := c.terms(ctx, "tags", deltas.Tags)
		if err != nil {
			return product{}, err
		}
		body.Tags = terms
	}
	return body, nil
}

// productID resolves sku from the listing cache, falling back to a sku query.
func (c *Connector) productID(ctx context.Context, sku, op string) (int64, error) {
	c.mu.Lock()
	id, ok := c.ids[sku]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	req, err := c.request(ctx)
	if err != nil {
		return 0, err
	}
	var found []product
	resp, err := req.SetQueryParam("sku", sku).SetResult(&found).Get("/products")
	if err := check(op, resp, err); err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, domain.NewConnectorError(domain.KindNotFound, op, http.StatusNotFound, fmt.Errorf("sku %s not found", sku))
	}
	c.mu.Lock()
	c.ids[sku] = found[0].ID
	c.mu.Unlock()
	return found[0].ID, nil
}

// terms maps names to taxonomy ids, creating missing terms.
func (c *Connector) terms(ctx context.Context, taxonomy string, names []string) ([]term, error) {
	c.termMu.Lock()
	defer c.termMu.Unlock()

	index, err := c.termIndex(ctx, taxonomy)
	if err != nil {
		return nil, err
	}
	out := make([]term, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		id, ok := index[key]
		if !ok {
			id, err = c.createTerm(ctx, taxonomy, name)
			if err != nil {
				return nil, err
			}
			index[key] = id
		}
		out = append(out, term{ID: id})
	}
	return out, nil
}

// createTerm adds a term. A term created concurrently elsewhere is reported
// as term_exists with its id, which is used as is.
func (c *Connector) createTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	req, err := c.request(ctx)
	if err != nil {
		return 0, err
	}
	var created term
	resp, err := req.SetBody(term{Name: name}).SetResult(&created).Post("/products/" + taxonomy)
	if err == nil && resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Code == "term_exists" && e.Data.ResourceID > 0 {
			c.logger.Debug().Str("taxonomy", taxonomy).Str("term", name).Msg("Term already exists")
			return e.Data.ResourceID, nil
		}
	}
	if err := check("create "+taxonomy, resp, err); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (c *Connector) termIndex(ctx context.Context, taxonomy string) (map[string]int64, error) {
	c.mu.Lock()
	cached := c.categories
	if taxonomy == "tags" {
		cached = c.tags
	}
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	index := make(map[string]int64)
	for page := 1; ; page++ {
		req, err := c.request(ctx)
		if err != nil {
			return nil, err
		}
		var terms []term
		resp, err := req.SetQueryParam("per_page", strconv.Itoa(maxPageSize)).
			SetQueryParam("page", strconv.Itoa(page)).
			SetResult(&terms).
			Get("/products/" + taxonomy)
		if err := check("list "+taxonomy, resp, err); err != nil {
			return nil, err
		}
		for _, t := range terms {
			index[strings.ToLower(t.Name)] = t.ID
		}
		if len(terms) < maxPageSize {
			break
		}
	}

	c.mu.Lock()
	if taxonomy == "tags" {
		c.tags = index
	} else {
		c.categories = index
	}
	c.mu.Unlock()
	return index, nil
}

// check maps transport and HTTP failures onto the connector taxonomy.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.NewConnectorError(domain.KindTransientNetwork, op, 0, err)
	}
	if !resp.IsError() {
		return nil
	}

	status := resp.StatusCode()
	var cause error = fmt.Errorf("status %d", status)
	if e, ok := resp.Error().(*apiError); ok && e.Code != "" {
		cause = e
	}

	var kind domain.ConnectorErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.KindUnauthorized
	case status == http.StatusNotFound:
		kind = domain.KindNotFound
	case status == http.StatusTooManyRequests:
		kind = domain.KindRateLimited
	case status == http.StatusConflict, duplicateSKU(cause):
		kind = domain.KindAlreadyExists
	case status >= 500:
		kind = domain.KindUpstreamServer
	default:
		kind = domain.KindUpstreamClient
	}
	ce := domain.NewConnectorError(kind, op, status, cause)
	if kind == domain.KindRateLimited {
		if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
			ce.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return ce
}

func duplicateSKU(err error) bool {
	var e *apiError
	return errors.As(err, &e) && e.Code == "product_invalid_sku"
}

func boolPtr(b bool) *bool { return &b }
