package service

import (
	"context"
	"errors"
	"time"

	"dining-service/internal/models"
)

// MenuCatalog answers item existence and price. Catalog CRUD lives elsewhere.
type MenuCatalog interface {
	LookupMenuItems(ctx context.Context, storeID string, ids []string) (map[string]models.MenuItem, error)
}

// BalanceLookup returns a customer's redeemable points and coupons and
// debits them once a payment settles. Redeem fails with
// models.ErrInsufficientBalance instead of overdrawing. Restore gives back
// what a refunded payment redeemed.
type BalanceLookup interface {
	Balance(ctx context.Context, storeID, customerID string) (models.Balance, error)
	Redeem(ctx context.Context, storeID, customerID string, allocations []models.Allocation) error
	Restore(ctx context.Context, storeID, customerID string, allocations []models.Allocation) error
}

// GatewayStatus is the gateway's view of an idempotency key
type GatewayStatus string

const (
	GatewaySucceeded GatewayStatus = "SUCCEEDED"
	GatewayDeclined  GatewayStatus = "DECLINED"
	GatewayPending   GatewayStatus = "PENDING"
	GatewayUnknown   GatewayStatus = "UNKNOWN"
)

// ChargeResult is returned by Charge and QueryStatus
type ChargeResult struct {
	Status    GatewayStatus
	Reference string
	Reason    string
}

// ErrGatewayUnavailable may be returned by gateways when the outcome of a call is unknown
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PaymentGateway is the external card processor. It must deduplicate charges by key.
type PaymentGateway interface {
	Charge(ctx context.Context, idempotencyKey string, amount int64) (ChargeResult, error)
	QueryStatus(ctx context.Context, idempotencyKey string) (ChargeResult, error)
	Refund(ctx context.Context, reference string, amount int64) error
}

// PaymentLedger is the authoritative record of payment attempts by idempotency key
type PaymentLedger interface {
	// FindAttempt returns nil, nil when the key is unknown
	FindAttempt(ctx context.Context, key string) (*models.PaymentAttempt, error)
	// CreateAttempt returns models.ErrDuplicateIdempotencyKey when the key exists
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	UpdateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	PendingAttempts(ctx context.Context) ([]models.PaymentAttempt, error)
}

// KeyGuard serializes work on one idempotency key across processes
type KeyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ReplayCache is an optional fast path in front of the ledger
type ReplayCache interface {
	GetResult(ctx context.Context, key string) (*models.PaymentResult, bool, error)
	PutResult(ctx context.Context, key string, result *models.PaymentResult) error
}

// Journal persists tables and check aggregates so sessions survive a restart
type Journal interface {
	SaveTable(ctx context.Context, table *models.Table) error
	SaveCheck(ctx context.Context, check *models.Check) error
}

// EventPublisher receives every committed event in per-check order. Publish must not block.
type EventPublisher interface {
	Publish(env models.Envelope)
}

// ActivitySink records events fire-and-forget
type ActivitySink interface {
	Record(ctx context.Context, env models.Envelope)
}
