package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionValidate(t *testing.T) {
	shopify := func() *Connection {
		return &Connection{
			Name:       "Retail",
			Platform:   PlatformShopify,
			LocationID: "123",
			Destination: DestinationCredentials{
				ShopDomain:  "retail.myshopify.com",
				AccessToken: "shpat_x",
			},
		}
	}
	woo := func() *Connection {
		return &Connection{
			Name:     "Woo",
			Platform: PlatformWooCommerce,
			Destination: DestinationCredentials{
				BaseURL:        "https://woo.example.com",
				ConsumerKey:    "ck",
				ConsumerSecret: "cs",
			},
		}
	}

	assert.NoError(t, shopify().Validate())
	assert.NoError(t, woo().Validate())

	c := shopify()
	c.LocationID = ""
	assert.ErrorIs(t, c.Validate(), ErrValidation)

	c = shopify()
	c.Destination.ShopDomain = "retail.example.com"
	err := c.Validate()
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "destination.shop_domain", ve.Field)

	c = woo()
	c.Destination.BaseURL = "ftp://woo"
	assert.ErrorIs(t, c.Validate(), ErrValidation)

	c = woo()
	c.Platform = "magento"
	assert.ErrorIs(t, c.Validate(), ErrValidation)
}

func TestConnectionRunnable(t *testing.T) {
	c := &Connection{Status: ConnectionActive}
	assert.NoError(t, c.Runnable())

	c.Status = ConnectionPaused
	assert.ErrorIs(t, c.Runnable(), ErrConnectionPaused)

	c.Status = ConnectionDisabled
	assert.ErrorIs(t, c.Runnable(), ErrConnectionDisabled)
}

func TestNormalizeShopDomain(t *testing.T) {
	shop, err := NormalizeShopDomain(" HTTPS://My-Shop.myshopify.com/ ")
	assert.NoError(t, err)
	assert.Equal(t, "my-shop.myshopify.com", shop)

	_, err = NormalizeShopDomain("evil.com/my-shop.myshopify.com")
	assert.ErrorIs(t, err, ErrInvalidShopDomain)

	_, err = NormalizeShopDomain("")
	assert.ErrorIs(t, err, ErrInvalidShopDomain)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeUnauthorized, CodeOf(NewConnectorError(KindUnauthorized, "update", 401, nil)))
	assert.Equal(t, CodeRateLimited, CodeOf(NewConnectorError(KindRateLimited, "update", 429, nil)))
	assert.Equal(t, CodeUpstream, CodeOf(NewConnectorError(KindUpstreamServer, "update", 502, nil)))
	assert.Equal(t, CodeValidation, CodeOf(NewValidationError("name", "is required")))
	assert.Equal(t, CodeTokenExchange, CodeOf(&TokenExchangeError{Status: 400, Body: "bad code"}))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestTokenExchangeErrorHidesBody(t *testing.T) {
	err := &TokenExchangeError{Status: 400, Body: "secret diagnostics"}

	assert.NotContains(t, err.Error(), "secret diagnostics")
	assert.ErrorIs(t, err, ErrTokenExchangeFailed)
}
