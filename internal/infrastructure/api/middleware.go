package api

import (
	"net/http"

	"archie-core-sync-layer/internal/domain"
)

// ShopHeader identifies the calling merchant on /api/v1 routes.
const ShopHeader = "X-Shop-Domain"

// shopDomainMiddleware puts the normalized calling shop into the request context.
func shopDomainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := r.Header.Get(ShopHeader)
		if shop == "" {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, ShopHeader+" header required")
			return
		}
		normalized, err := domain.NormalizeShopDomain(shop)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeInvalidShop, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(domain.WithShop(r.Context(), normalized)))
	})
}

// securityHeaders sets the response headers every route carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
