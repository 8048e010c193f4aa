package gateway

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"dining-service/internal/service"
	"dining-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownCharge  = errors.New("unknown charge reference")
	ErrRefundTooLarge = errors.New("refund exceeds charged amount")
)

type charge struct {
	key       string
	amount    int64
	refunded  int64
	result    service.ChargeResult
	createdAt time.Time
}

// Simulated is a card gateway (mocked) that deduplicates charges by
// idempotency key. Whether a key succeeds is derived from the key itself, so
// retries with the same key always get the same answer.
type Simulated struct {
	mu          sync.Mutex
	charges     map[string]*charge
	byRef       map[string]*charge
	successRate float64
	latency     time.Duration
	logger      *zap.Logger
}

// NewSimulated creates a simulated gateway. successRate is 0.0 - 1.0.
func NewSimulated(successRate float64, latency time.Duration) *Simulated {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Simulated{
		charges:     make(map[string]*charge),
		byRef:       make(map[string]*charge),
		successRate: successRate,
		latency:     latency,
		logger:      util.GetLogger(),
	}
}

func (g *Simulated) approves(key string) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return float64(h.Sum32()%10000) < g.successRate*10000
}

// Charge records the charge before the simulated network delay, so a caller
// that times out can still find the outcome through QueryStatus.
func (g *Simulated) Charge(ctx context.Context, key string, amount int64) (service.ChargeResult, error) {
	if key == "" || amount <= 0 {
		return service.ChargeResult{}, fmt.Errorf("invalid charge: key=%q amount=%d", key, amount)
	}

	g.mu.Lock()
	ch, exists := g.charges[key]
	if !exists {
		ch = &charge{key: key, amount: amount, createdAt: time.Now()}
		if g.approves(key) {
			ch.result = service.ChargeResult{
				Status:    service.GatewaySucceeded,
				Reference: fmt.Sprintf("TXN-%s", uuid.New().String()[:8]),
			}
			g.byRef[ch.result.Reference] = ch
		} else {
			ch.result = service.ChargeResult{Status: service.GatewayDeclined, Reason: "mock_payment_declined"}
		}
		g.charges[key] = ch
	}
	result := ch.result
	g.mu.Unlock()

	if exists {
		g.logger.Info("Duplicate charge suppressed", zap.String("idempotency_key", key))
	} else {
		g.logger.Info("Charge processed",
			zap.String("idempotency_key", key),
			zap.Int64("amount", amount),
			zap.String("status", string(result.Status)))
	}

	if err := g.wait(ctx); err != nil {
		return service.ChargeResult{}, err
	}
	return result, nil
}

// QueryStatus reports UNKNOWN for keys never charged
func (g *Simulated) QueryStatus(ctx context.Context, key string) (service.ChargeResult, error) {
	if err := g.wait(ctx); err != nil {
		return service.ChargeResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.charges[key]; ok {
		return ch.result, nil
	}
	return service.ChargeResult{Status: service.GatewayUnknown}, nil
}

// Refund returns part or all of a succeeded charge
func (g *Simulated) Refund(ctx context.Context, reference string, amount int64) error {
	if err := g.wait(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.byRef[reference]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCharge, reference)
	}
	if ch.refunded+amount > ch.amount {
		return fmt.Errorf("%w: %s", ErrRefundTooLarge, reference)
	}
	ch.refunded += amount

	g.logger.Info("Charge refunded",
		zap.String("idempotency_key", ch.key),
		zap.String("reference", reference),
		zap.Int64("amount", amount))
	return nil
}

func (g *Simulated) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
