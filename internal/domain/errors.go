package domain

import (
	"errors"
	"fmt"
	"time"
)

// Code is a machine-readable error classification surfaced to callers.
type Code string

const (
	CodeValidation       Code = "validation_error"
	CodeInvalidShop      Code = "invalid_shop_domain"
	CodeNotFound         Code = "not_found"
	CodeAlreadyExists    Code = "already_exists"
	CodeAlreadyRunning   Code = "already_running"
	CodeJobRunning       Code = "job_running"
	CodePaused           Code = "connection_paused"
	CodeDisabled         Code = "connection_disabled"
	CodeNeedsReinstall   Code = "needs_reinstall"
	CodeUnauthorized     Code = "unauthorized"
	CodeStateMismatch    Code = "state_mismatch"
	CodeStateExpired     Code = "state_expired"
	CodeSignatureInvalid Code = "signature_invalid"
	CodeTokenExchange    Code = "token_exchange_failed"
	CodeInviteInvalid    Code = "invite_invalid"
	CodeRateLimited      Code = "rate_limited"
	CodeUpstream         Code = "upstream_error"
	CodeJobDead          Code = "job_dead"
	CodeCancelled        Code = "cancelled"
	CodeInternal         Code = "internal_error"
)

var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidShopDomain indicates a shop domain outside the *.myshopify.com pattern.
	ErrInvalidShopDomain = errors.New("invalid shop domain")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate record.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyRunning indicates a connection already has a queued or running job.
	ErrAlreadyRunning = errors.New("sync already running")

	// ErrJobRunning indicates an operation was refused because a job is running.
	ErrJobRunning = errors.New("job is running")

	// ErrConnectionPaused indicates the connection is paused.
	ErrConnectionPaused = errors.New("connection is paused")

	// ErrConnectionDisabled indicates the connection was disabled by the system.
	ErrConnectionDisabled = errors.New("connection is disabled")

	// ErrNeedsReinstall indicates the owning installation has no credential.
	ErrNeedsReinstall = errors.New("installation needs reinstall")

	// ErrStateMismatch indicates an unknown, consumed, or foreign handshake state.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrStateExpired indicates the handshake state outlived its TTL.
	ErrStateExpired = errors.New("oauth state expired")

	// ErrSignatureInvalid indicates the callback signature did not verify.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrTokenExchangeFailed indicates the platform rejected the code exchange.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrInviteInvalid indicates a bad, expired, or already-used invite token.
	ErrInviteInvalid = errors.New("invite invalid")

	// ErrCancelled indicates a job stopped at an item boundary on request.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError carries the field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TokenExchangeError keeps the upstream response for diagnostics but never
// renders the body in Error().
type TokenExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("token exchange failed: upstream status %d", e.Status)
	}
	return "token exchange failed"
}

func (e *TokenExchangeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTokenExchangeFailed, e.Err}
	}
	return []error{ErrTokenExchangeFailed}
}

// ConnectorErrorKind classifies store connector failures.
type ConnectorErrorKind string

const (
	KindRateLimited      ConnectorErrorKind = "rate_limited"
	KindUnauthorized     ConnectorErrorKind = "unauthorized"
	KindNotFound         ConnectorErrorKind = "not_found"
	KindAlreadyExists    ConnectorErrorKind = "already_exists"
	KindTransientNetwork ConnectorErrorKind = "transient_network"
	KindUpstreamServer   ConnectorErrorKind = "upstream_server"
	KindUpstreamClient   ConnectorErrorKind = "upstream_client"
)

// ConnectorError is returned by every StoreConnector call that fails.
type ConnectorError struct {
	Kind       ConnectorErrorKind
	Op         string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *ConnectorError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// NewConnectorError builds a ConnectorError.
func NewConnectorError(kind ConnectorErrorKind, op string, status int, err error) *ConnectorError {
	return &ConnectorError{Kind: kind, Op: op, Status: status, Err: err}
}

func connectorKind(err error) (ConnectorErrorKind, bool) {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsRateLimited returns true if err is a rate-limit connector failure.
func IsRateLimited(err error) bool {
	k, ok := connectorKind(err)
	return ok && k == KindRateLimited
}

// IsUnauthorized returns true if err means the credential is invalid or revoked.
func IsUnauthorized(err error) bool {
	k, ok := connectorKind(err)
	return ok && k == KindUnauthorized
}

// IsNotFound returns true for connector not-found failures and ErrNotFound.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	k, ok := connectorKind(err)
	return ok && k == KindNotFound
}

// IsAlreadyExists returns true for connector conflicts on create.
func IsAlreadyExists(err error) bool {
	k, ok := connectorKind(err)
	return ok && k == KindAlreadyExists
}

// IsRetryable returns true for failures retried with backoff.
func IsRetryable(err error) bool {
	k, ok := connectorKind(err)
	if !ok {
		return false
	}
	switch k {
	case KindRateLimited, KindTransientNetwork, KindUpstreamServer:
		return true
	}
	return false
}

// RetryAfterHint returns the upstream retry hint, if any.
func RetryAfterHint(err error) time.Duration {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// CodeOf maps an error to its machine-readable code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidShopDomain):
		return CodeInvalidShop
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrAlreadyRunning):
		return CodeAlreadyRunning
	case errors.Is(err, ErrJobRunning):
		return CodeJobRunning
	case errors.Is(err, ErrConnectionPaused):
		return CodePaused
	case errors.Is(err, ErrConnectionDisabled):
		return CodeDisabled
	case errors.Is(err, ErrNeedsReinstall):
		return CodeNeedsReinstall
	case errors.Is(err, ErrStateMismatch):
		return CodeStateMismatch
	case errors.Is(err, ErrStateExpired):
		return CodeStateExpired
	case errors.Is(err, ErrSignatureInvalid):
		return CodeSignatureInvalid
	case errors.Is(err, ErrTokenExchangeFailed):
		return CodeTokenExchange
	case errors.Is(err, ErrInviteInvalid):
		return CodeInviteInvalid
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	case IsUnauthorized(err):
		return CodeUnauthorized
	case IsRateLimited(err):
		return CodeRateLimited
	}
	if _, ok := connectorKind(err); ok {
		return CodeUpstream
	}
	return CodeInternal
}
