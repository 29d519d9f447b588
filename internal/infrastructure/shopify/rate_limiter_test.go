package shopify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterIsPerShop(t *testing.T) {
	l := NewRateLimiter(1, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "a.myshopify.com"))
	require.NoError(t, l.Wait(ctx, "b.myshopify.com"))

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "a.myshopify.com"), "second call within the window must wait")
}
