package shopify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"archie-core-sync-layer/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// classify maps a go-shopify failure onto the connector taxonomy. Context
// errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ce *domain.ConnectorError
	if errors.As(err, &ce) {
		return err
	}

	if retryAfter, ok := rateLimitHint(err); ok {
		e := domain.NewConnectorError(domain.KindRateLimited, op, http.StatusTooManyRequests, err)
		e.RetryAfter = retryAfter
		return e
	}
	if status, msg, ok := responseStatus(err); ok {
		return domain.NewConnectorError(kindForStatus(status, msg), op, status, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewConnectorError(domain.KindTransientNetwork, op, 0, err)
	}
	return domain.NewConnectorError(domain.KindUpstreamServer, op, 0, err)
}

func rateLimitHint(err error) (time.Duration, bool) {
	var rl goshopify.RateLimitError
	if errors.As(err, &rl) {
		return time.Duration(rl.RetryAfter) * time.Second, true
	}
	var rlp *goshopify.RateLimitError
	if errors.As(err, &rlp) && rlp != nil {
		return time.Duration(rlp.RetryAfter) * time.Second, true
	}
	return 0, false
}

func responseStatus(err error) (int, string, bool) {
	var re goshopify.ResponseError
	if errors.As(err, &re) {
		return re.Status, re.Error(), true
	}
	var rep *goshopify.ResponseError
	if errors.As(err, &rep) && rep != nil {
		return rep.Status, rep.Error(), true
	}
	return 0, "", false
}

func kindForStatus(status int, msg string) domain.ConnectorErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.KindUnauthorized
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case status == http.StatusConflict:
		return domain.KindAlreadyExists
	case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "already"):
		return domain.KindAlreadyExists
	case status >= 500:
		return domain.KindUpstreamServer
	case status == 0:
		return domain.KindTransientNetwork
	}
	return domain.KindUpstreamClient
}
