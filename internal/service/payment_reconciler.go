package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ReconcilerConfig bounds external calls made by the payment reconciler
type ReconcilerConfig struct {
	GatewayTimeout time.Duration
	KeyLockTTL     time.Duration
}

// DefaultReconcilerConfig returns the production defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		GatewayTimeout: 8 * time.Second,
		KeyLockTTL:     30 * time.Second,
	}
}

// PaymentReconciler computes amounts due, confirms split payments at most
// once per idempotency key and authorizes check closure.
type PaymentReconciler struct {
	sessions *SessionStore
	ledger   PaymentLedger
	gateway  PaymentGateway
	balances BalanceLookup
	guard    KeyGuard
	cache    ReplayCache
	cfg      ReconcilerConfig
	logger   *zap.Logger
}

// NewPaymentReconciler creates a new payment reconciler
func NewPaymentReconciler(
	sessions *SessionStore,
	ledger PaymentLedger,
	gateway PaymentGateway,
	balances BalanceLookup,
	guard KeyGuard,
	cfg ReconcilerConfig,
) *PaymentReconciler {
	defaults := DefaultReconcilerConfig()
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaults.GatewayTimeout
	}
	if cfg.KeyLockTTL <= 0 {
		cfg.KeyLockTTL = defaults.KeyLockTTL
	}
	return &PaymentReconciler{
		sessions: sessions,
		ledger:   ledger,
		gateway:  gateway,
		balances: balances,
		guard:    guard,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// SetReplayCache puts a cache in front of the ledger for repeated keys
func (r *PaymentReconciler) SetReplayCache(c ReplayCache) {
	r.cache = c
}

// ConfirmRequest is a split payment against a check
type ConfirmRequest struct {
	CheckID        string              `json:"check_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	CustomerID     string              `json:"customer_id,omitempty"`
	Amount         int64               `json:"amount"`
	Allocations    []models.Allocation `json:"allocations"`
}

// QuoteDue returns the committed amount due on a check
func (r *PaymentReconciler) QuoteDue(checkID string) (int64, error) {
	e, err := r.sessions.check(checkID)
	if err != nil {
		return 0, err
	}
	return e.view.Load().Due(), nil
}

// Confirm applies a payment at most once per idempotency key. A repeated key
// returns the stored result without touching the gateway. A gateway timeout
// leaves the attempt pending verification; use Verify to resolve it.
func (r *PaymentReconciler) Confirm(ctx context.Context, req ConfirmRequest) (result *models.PaymentResult, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.Confirm",
		attribute.String("check_id", req.CheckID),
		attribute.String("idempotency_key", req.IdempotencyKey),
		attribute.Int64("amount", req.Amount))
	defer func() { util.EndSpan(span, err) }()

	if req.IdempotencyKey == "" {
		return nil, invalid("idempotency_key", "is required")
	}

	if _, stored, err := r.lookup(ctx, req); err != nil || stored != nil {
		return stored, err
	}

	token, err := r.acquire(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	defer r.release(req.IdempotencyKey, token)

	// another process may have finished the key while we waited
	attempt, result, err := r.lookup(ctx, req)
	if err != nil || result != nil {
		return result, err
	}
	if attempt != nil {
		return r.resolve(ctx, attempt)
	}

	e, err := r.sessions.check(req.CheckID)
	if err != nil {
		return nil, err
	}
	if err := validateAllocations(req); err != nil {
		util.PaymentOutcomesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	return r.charge(ctx, e, req)
}

// Verify resolves an attempt whose outcome is unknown by asking the gateway
// for the key's status. It never issues a second charge for a key the
// gateway has seen.
func (r *PaymentReconciler) Verify(ctx context.Context, key string) (result *models.PaymentResult, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.Verify", attribute.String("idempotency_key", key))
	defer func() { util.EndSpan(span, err) }()

	if key == "" {
		return nil, invalid("idempotency_key", "is required")
	}

	token, err := r.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.release(key, token)

	attempt, err := r.ledger.FindAttempt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment attempt: %w", err)
	}
	if attempt == nil {
		return nil, &NotFoundError{Kind: "payment attempt", ID: key}
	}
	switch attempt.State {
	case models.AttemptSucceeded:
		return attempt.Result, nil
	case models.AttemptRejected:
		return nil, &GatewayRejectedError{IdempotencyKey: key, Reason: attempt.Reason}
	}
	return r.resolve(ctx, attempt)
}

// ResolvePending verifies every attempt left in flight or pending, typically
// at startup before traffic is served.
func (r *PaymentReconciler) ResolvePending(ctx context.Context) (int, error) {
	attempts, err := r.ledger.PendingAttempts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending payment attempts: %w", err)
	}

	resolved := 0
	for i := range attempts {
		key := attempts[i].IdempotencyKey
		_, err := r.Verify(ctx, key)
		switch {
		case err == nil, errors.Is(err, ErrGatewayRejected):
			resolved++
		default:
			r.logger.Warn("Payment attempt still unresolved",
				zap.String("idempotency_key", key),
				zap.String("check_id", attempts[i].CheckID),
				zap.Error(err))
		}
	}
	return resolved, nil
}

// Refund reverses a settled payment, PAID or PARTIAL. REFUNDED is terminal.
func (r *PaymentReconciler) Refund(ctx context.Context, paymentID, reason string) (payment *models.Payment, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.Refund", attribute.String("payment_id", paymentID))
	defer func() { util.EndSpan(span, err) }()

	if reason == "" {
		return nil, invalid("reason", "is required")
	}

	e, err := r.sessions.checkForPayment(paymentID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.check
	p := c.FindPayment(paymentID)
	if e.archived || p == nil {
		return nil, &NotFoundError{Kind: "payment", ID: paymentID}
	}
	if p.Status == models.PaymentRefunded {
		return nil, conflict("payment %s is already refunded", paymentID)
	}
	if !p.Settled() {
		return nil, precondition("payment %s is %s and cannot be refunded", paymentID, p.Status)
	}
	if c.Status == models.CheckClosed {
		return nil, precondition("check %s is closed", c.ID)
	}

	if card := models.AmountFor(p.Allocations, models.InstrumentCard); card > 0 {
		_, err := r.callGateway(ctx, "refund", func(gctx context.Context) (ChargeResult, error) {
			return ChargeResult{}, r.gateway.Refund(gctx, p.GatewayRef, card)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to refund payment %s: %w", paymentID, err)
		}
	}

	if models.UsesBalance(p.Allocations) {
		if err := r.balances.Restore(ctx, c.StoreID, p.CustomerID, p.Allocations); err != nil {
			r.logger.Error("Failed to restore customer balance",
				zap.String("payment_id", paymentID),
				zap.String("customer_id", p.CustomerID),
				zap.Error(err))
		}
	}

	now := time.Now().UTC()
	p.Status = models.PaymentRefunded
	p.RefundReason = reason
	p.RefundedAt = &now
	c.Paid -= p.Amount

	refunded := *p
	events := []pendingEvent{{
		typ: models.EventPaymentRefunded,
		payload: models.EventPayload{
			TableNumber: c.TableNumber,
			Payment:     &refunded,
			Reason:      reason,
		},
	}}
	events = append(events, r.reviewClosure(c)...)
	r.sessions.commit(ctx, e, events...)

	util.PaymentRefundsTotal.Inc()
	r.logger.Info("Payment refunded",
		zap.String("check_id", c.ID),
		zap.String("payment_id", paymentID),
		zap.Int64("amount", refunded.Amount),
		zap.String("reason", reason))

	return &refunded, nil
}

// reviewClosure moves the check between OPEN, CLOSING and CLOSED. Caller holds the check lock.
func (r *PaymentReconciler) reviewClosure(c *models.Check) []pendingEvent {
	if c.Status == models.CheckClosed {
		return nil
	}
	due := c.Due()
	switch {
	case c.Total > 0 && due <= 0 && c.OutstandingItems() == 0 && len(c.PendingPayments) == 0:
		r.logger.Info("Check closed", zap.String("check_id", c.ID), zap.Int64("paid", c.Paid))
		return []pendingEvent{closeCheck(c)}
	case c.Total > 0 && due <= 0:
		c.Status = models.CheckClosing
	case due > 0 && c.Status == models.CheckClosing:
		c.Status = models.CheckOpen
	}
	return nil
}

// lookup returns the stored result for a finished key, or the attempt when
// its outcome is still unknown, or nothing for a new key.
func (r *PaymentReconciler) lookup(ctx context.Context, req ConfirmRequest) (*models.PaymentAttempt, *models.PaymentResult, error) {
	key := req.IdempotencyKey

	if r.cache != nil {
		cached, ok, err := r.cache.GetResult(ctx, key)
		if err != nil {
			r.logger.Warn("Replay cache lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		} else if ok {
			if cached.CheckID != req.CheckID || cached.Amount != req.Amount {
				return nil, nil, conflict("idempotency key %s was used for a different payment", key)
			}
			util.PaymentReplaysTotal.Inc()
			return nil, cached, nil
		}
	}

	attempt, err := r.ledger.FindAttempt(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up payment attempt: %w", err)
	}
	if attempt == nil {
		return nil, nil, nil
	}
	if attempt.CheckID != req.CheckID || attempt.Amount != req.Amount {
		return nil, nil, conflict("idempotency key %s was used for a different payment", key)
	}

	switch attempt.State {
	case models.AttemptSucceeded:
		if attempt.Result == nil {
			return nil, nil, fmt.Errorf("payment attempt %s succeeded without a stored result", key)
		}
		util.PaymentReplaysTotal.Inc()
		return nil, attempt.Result, nil
	case models.AttemptRejected:
		return nil, nil, &GatewayRejectedError{IdempotencyKey: key, Reason: attempt.Reason}
	}
	return attempt, nil, nil
}

// charge records the attempt and calls the gateway once for the card portion.
// The check lock is held across the bounded gateway call.
func (r *PaymentReconciler) charge(ctx context.Context, e *checkEntry, req ConfirmRequest) (*models.PaymentResult, error) {
	// once the attempt is recorded the confirmation runs to completion
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.check
	if e.archived || c.Status == models.CheckClosed {
		return nil, precondition("check %s is closed", c.ID)
	}
	if len(c.PendingPayments) > 0 {
		return nil, precondition("payment %s on check %s awaits verification", c.PendingPayments[0], c.ID)
	}
	due := c.Due()
	if due <= 0 {
		return nil, precondition("check %s has nothing due", c.ID)
	}
	if req.Amount > due {
		return nil, invalid("amount", "%d exceeds amount due %d", req.Amount, due)
	}
	if err := r.checkBalances(ctx, c.StoreID, req); err != nil {
		util.PaymentOutcomesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	attempt := &models.PaymentAttempt{
		IdempotencyKey: req.IdempotencyKey,
		CheckID:        c.ID,
		StoreID:        c.StoreID,
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		CardAmount:     models.AmountFor(req.Allocations, models.InstrumentCard),
		Allocations:    append([]models.Allocation(nil), req.Allocations...),
		State:          models.AttemptInFlight,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.ledger.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, models.ErrDuplicateIdempotencyKey) {
			return nil, conflict("idempotency key %s is already recorded", req.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}
	util.PaymentAttemptsTotal.Inc()

	if attempt.CardAmount == 0 {
		return r.finalizeLocked(ctx, e, attempt, "")
	}

	cr, callErr := r.callGateway(ctx, "charge", func(gctx context.Context) (ChargeResult, error) {
		return r.gateway.Charge(gctx, attempt.IdempotencyKey, attempt.CardAmount)
	})
	return r.applyOutcomeLocked(ctx, e, attempt, cr, callErr)
}

// resolve settles an in-flight or pending attempt. A key the gateway never
// saw is charged again under the same key; a key it has seen is only queried.
func (r *PaymentReconciler) resolve(ctx context.Context, attempt *models.PaymentAttempt) (*models.PaymentResult, error) {
	ctx = context.WithoutCancel(ctx)

	cr := ChargeResult{Status: GatewaySucceeded}
	var callErr error
	if attempt.CardAmount > 0 {
		cr, callErr = r.callGateway(ctx, "query_status", func(gctx context.Context) (ChargeResult, error) {
			return r.gateway.QueryStatus(gctx, attempt.IdempotencyKey)
		})
		if callErr == nil && cr.Status == GatewayUnknown {
			cr, callErr = r.callGateway(ctx, "charge", func(gctx context.Context) (ChargeResult, error) {
				return r.gateway.Charge(gctx, attempt.IdempotencyKey, attempt.CardAmount)
			})
		}
	}

	e, err := r.sessions.check(attempt.CheckID)
	if err != nil {
		return r.applyOutcomeLocked(ctx, nil, attempt, cr, callErr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.archived || e.check.Status == models.CheckClosed {
		return r.applyOutcomeLocked(ctx, nil, attempt, cr, callErr)
	}
	return r.applyOutcomeLocked(ctx, e, attempt, cr, callErr)
}

// applyOutcomeLocked maps a gateway answer onto the attempt and check.
// e is nil when the check is no longer open; the ledger is still updated.
func (r *PaymentReconciler) applyOutcomeLocked(ctx context.Context, e *checkEntry, attempt *models.PaymentAttempt, cr ChargeResult, callErr error) (*models.PaymentResult, error) {
	if callErr == nil {
		switch cr.Status {
		case GatewaySucceeded:
			return r.finalizeLocked(ctx, e, attempt, cr.Reference)
		case GatewayDeclined:
			return nil, r.rejectLocked(ctx, e, attempt, cr.Reason)
		}
	}
	return nil, r.markPendingLocked(ctx, e, attempt, callErr)
}

func (r *PaymentReconciler) finalizeLocked(ctx context.Context, e *checkEntry, attempt *models.PaymentAttempt, reference string) (*models.PaymentResult, error) {
	now := time.Now().UTC()
	payment := models.Payment{
		ID:             uuid.New().String(),
		CheckID:        attempt.CheckID,
		IdempotencyKey: attempt.IdempotencyKey,
		CustomerID:     attempt.CustomerID,
		Amount:         attempt.Amount,
		Allocations:    append([]models.Allocation(nil), attempt.Allocations...),
		Status:         models.PaymentPaid,
		GatewayRef:     reference,
		CreatedAt:      now,
	}

	if e == nil {
		r.redeem(ctx, attempt)
		r.logger.Warn("Payment succeeded after its check was closed",
			zap.String("check_id", attempt.CheckID),
			zap.String("idempotency_key", attempt.IdempotencyKey),
			zap.Int64("amount", attempt.Amount))
	} else if existing := e.check.PaymentForKey(attempt.IdempotencyKey); existing != nil {
		payment = *existing
	} else {
		r.redeem(ctx, attempt)
		c := e.check
		if attempt.Amount < c.Due() {
			payment.Status = models.PaymentPartial
		}
		c.Payments = append(c.Payments, payment)
		c.Paid += payment.Amount
		removePending(c, attempt.IdempotencyKey)
		r.sessions.indexPayment(payment.ID, c.ID)

		confirmed := payment
		events := []pendingEvent{{
			typ:     models.EventPaymentConfirmed,
			payload: models.EventPayload{TableNumber: c.TableNumber, Payment: &confirmed},
		}}
		events = append(events, r.reviewClosure(c)...)
		r.sessions.commit(ctx, e, events...)
	}

	result := &models.PaymentResult{
		PaymentID:      payment.ID,
		CheckID:        payment.CheckID,
		IdempotencyKey: payment.IdempotencyKey,
		Status:         payment.Status,
		Amount:         payment.Amount,
		Allocations:    payment.Allocations,
		GatewayRef:     payment.GatewayRef,
		ConfirmedAt:    payment.CreatedAt,
	}

	attempt.State = models.AttemptSucceeded
	attempt.Reason = ""
	attempt.Result = result
	attempt.UpdatedAt = now
	if err := r.ledger.UpdateAttempt(ctx, attempt); err != nil {
		r.logger.Error("Failed to record payment success",
			zap.String("idempotency_key", attempt.IdempotencyKey),
			zap.Error(err))
	}
	if r.cache != nil {
		if err := r.cache.PutResult(ctx, attempt.IdempotencyKey, result); err != nil {
			r.logger.Warn("Failed to cache payment result",
				zap.String("idempotency_key", attempt.IdempotencyKey),
				zap.Error(err))
		}
	}

	util.PaymentOutcomesTotal.WithLabelValues(strings.ToLower(string(result.Status))).Inc()
	r.logger.Info("Payment confirmed",
		zap.String("check_id", result.CheckID),
		zap.String("payment_id", result.PaymentID),
		zap.String("idempotency_key", result.IdempotencyKey),
		zap.String("status", string(result.Status)),
		zap.Int64("amount", result.Amount))

	return result, nil
}

// redeem debits the points and coupons a settled attempt used. The charge
// already went through, so a failed debit is logged and the payment stands.
func (r *PaymentReconciler) redeem(ctx context.Context, attempt *models.PaymentAttempt) {
	if !models.UsesBalance(attempt.Allocations) {
		return
	}
	if err := r.balances.Redeem(ctx, attempt.StoreID, attempt.CustomerID, attempt.Allocations); err != nil {
		util.BalanceDebitFailuresTotal.Inc()
		r.logger.Error("Failed to redeem customer balance",
			zap.String("check_id", attempt.CheckID),
			zap.String("idempotency_key", attempt.IdempotencyKey),
			zap.String("customer_id", attempt.CustomerID),
			zap.Error(err))
	}
}

func (r *PaymentReconciler) rejectLocked(ctx context.Context, e *checkEntry, attempt *models.PaymentAttempt, reason string) error {
	if reason == "" {
		reason = "declined"
	}
	attempt.State = models.AttemptRejected
	attempt.Reason = reason
	attempt.UpdatedAt = time.Now().UTC()
	if err := r.ledger.UpdateAttempt(ctx, attempt); err != nil {
		r.logger.Error("Failed to record payment rejection",
			zap.String("idempotency_key", attempt.IdempotencyKey),
			zap.Error(err))
	}
	if e != nil && removePending(e.check, attempt.IdempotencyKey) {
		events := r.reviewClosure(e.check)
		r.sessions.commit(ctx, e, events...)
	}

	util.PaymentOutcomesTotal.WithLabelValues("rejected").Inc()
	r.logger.Info("Payment rejected",
		zap.String("check_id", attempt.CheckID),
		zap.String("idempotency_key", attempt.IdempotencyKey),
		zap.String("reason", reason))

	return &GatewayRejectedError{IdempotencyKey: attempt.IdempotencyKey, Reason: reason}
}

func (r *PaymentReconciler) markPendingLocked(ctx context.Context, e *checkEntry, attempt *models.PaymentAttempt, callErr error) error {
	attempt.State = models.AttemptPendingVerification
	if callErr != nil {
		attempt.Reason = callErr.Error()
	}
	attempt.UpdatedAt = time.Now().UTC()
	if err := r.ledger.UpdateAttempt(ctx, attempt); err != nil {
		r.logger.Error("Failed to record pending payment",
			zap.String("idempotency_key", attempt.IdempotencyKey),
			zap.Error(err))
	}
	if e != nil && addPending(e.check, attempt.IdempotencyKey) {
		r.sessions.commit(ctx, e)
	}

	util.PaymentOutcomesTotal.WithLabelValues("pending_verification").Inc()
	r.logger.Warn("Payment outcome unknown, pending verification",
		zap.String("check_id", attempt.CheckID),
		zap.String("idempotency_key", attempt.IdempotencyKey),
		zap.Error(callErr))

	return &GatewayTimeoutError{IdempotencyKey: attempt.IdempotencyKey, Err: callErr}
}

func (r *PaymentReconciler) callGateway(ctx context.Context, op string, call func(context.Context) (ChargeResult, error)) (ChargeResult, error) {
	gctx, cancel := context.WithTimeout(ctx, r.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	res, err := call(gctx)
	util.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return res, err
}

func (r *PaymentReconciler) acquire(ctx context.Context, key string) (string, error) {
	token, ok, err := r.guard.Acquire(ctx, key, r.cfg.KeyLockTTL)
	if err != nil {
		return "", fmt.Errorf("failed to lock idempotency key %s: %w", key, err)
	}
	if !ok {
		return "", conflict("payment with idempotency key %s is already in progress", key)
	}
	return token, nil
}

func (r *PaymentReconciler) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.guard.Release(ctx, key, token); err != nil {
		r.logger.Warn("Failed to release idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func validateAllocations(req ConfirmRequest) error {
	if req.Amount <= 0 {
		return invalid("amount", "must be greater than zero")
	}
	if len(req.Allocations) == 0 {
		return invalid("allocations", "at least one allocation is required")
	}
	for i, a := range req.Allocations {
		field := fmt.Sprintf("allocations[%d]", i)
		if !a.Instrument.Valid() {
			return invalid(field+".instrument", "unknown instrument %q", a.Instrument)
		}
		if a.Amount <= 0 {
			return invalid(field+".amount", "must be greater than zero")
		}
		if a.Instrument == models.InstrumentCoupon && a.Reference == "" {
			return invalid(field+".reference", "coupon code is required")
		}
	}
	if sum := models.SumAllocations(req.Allocations); sum != req.Amount {
		return invalid("allocations", "sum %d does not match amount %d", sum, req.Amount)
	}
	return nil
}

// checkBalances reads the customer's balance for points and coupon
// allocations. Caller holds the check lock, so a debit made by an earlier
// payment on the same check is already visible.
func (r *PaymentReconciler) checkBalances(ctx context.Context, storeID string, req ConfirmRequest) error {
	points := models.AmountFor(req.Allocations, models.InstrumentPoints)
	coupons := make(map[string]int64)
	for _, a := range req.Allocations {
		if a.Instrument == models.InstrumentCoupon {
			coupons[a.Reference] += a.Amount
		}
	}
	if points == 0 && len(coupons) == 0 {
		return nil
	}
	if req.CustomerID == "" {
		return invalid("customer_id", "is required for points or coupon allocations")
	}

	balance, err := r.balances.Balance(ctx, storeID, req.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to look up customer balance: %w", err)
	}
	if points > balance.Points {
		return invalid("allocations", "points allocation %d exceeds available balance %d", points, balance.Points)
	}
	for code, amount := range coupons {
		available, ok := balance.Coupons[code]
		if !ok {
			return invalid("allocations", "coupon %s is not available", code)
		}
		if amount > available {
			return invalid("allocations", "coupon %s allocation %d exceeds available value %d", code, amount, available)
		}
	}
	return nil
}

func addPending(c *models.Check, key string) bool {
	for _, k := range c.PendingPayments {
		if k == key {
			return false
		}
	}
	c.PendingPayments = append(c.PendingPayments, key)
	return true
}

func removePending(c *models.Check, key string) bool {
	for i, k := range c.PendingPayments {
		if k == key {
			c.PendingPayments = append(c.PendingPayments[:i], c.PendingPayments[i+1:]...)
			return true
		}
	}
	return false
}
