package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dining-service/internal/models"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

type attemptRow struct {
	models.PaymentAttempt
	AllocationsJSON []byte `db:"allocations"`
	ResultJSON      []byte `db:"result"`
}

func (r *attemptRow) decode() (*models.PaymentAttempt, error) {
	a := r.PaymentAttempt
	if err := json.Unmarshal(r.AllocationsJSON, &a.Allocations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allocations of %s: %w", a.IdempotencyKey, err)
	}
	if len(r.ResultJSON) > 0 {
		a.Result = &models.PaymentResult{}
		if err := json.Unmarshal(r.ResultJSON, a.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result of %s: %w", a.IdempotencyKey, err)
		}
	}
	return &a, nil
}

func encodeAttempt(a *models.PaymentAttempt) (allocations, result []byte, err error) {
	allocations, err = json.Marshal(a.Allocations)
	if err != nil {
		return nil, nil, err
	}
	if a.Result != nil {
		result, err = json.Marshal(a.Result)
		if err != nil {
			return nil, nil, err
		}
	}
	return allocations, result, nil
}

// FindAttempt retrieves a payment attempt by idempotency key. Returns nil, nil when absent.
func (s *Store) FindAttempt(ctx context.Context, key string) (*models.PaymentAttempt, error) {
	var row attemptRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM payment_attempts WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.decode()
}

// CreateAttempt records an attempt before the gateway is called
func (s *Store) CreateAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	allocations, result, err := encodeAttempt(a)
	if err != nil {
		return fmt.Errorf("failed to marshal payment attempt: %w", err)
	}

	query := `
		INSERT INTO payment_attempts
			(idempotency_key, check_id, store_id, customer_id, amount, card_amount, allocations, state, reason, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		a.IdempotencyKey, a.CheckID, a.StoreID, a.CustomerID, a.Amount, a.CardAmount,
		allocations, a.State, a.Reason, result, a.CreatedAt, a.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
		return models.ErrDuplicateIdempotencyKey
	}
	return err
}

// UpdateAttempt stores the attempt's new state and result
func (s *Store) UpdateAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	_, result, err := encodeAttempt(a)
	if err != nil {
		return fmt.Errorf("failed to marshal payment attempt: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_attempts SET state = $1, reason = $2, result = $3, updated_at = $4 WHERE idempotency_key = $5",
		a.State, a.Reason, result, a.UpdatedAt, a.IdempotencyKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment attempt not found: %s", a.IdempotencyKey)
	}
	return nil
}

// PendingAttempts lists attempts whose outcome is unknown, oldest first
func (s *Store) PendingAttempts(ctx context.Context) ([]models.PaymentAttempt, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM payment_attempts WHERE state IN ($1, $2) ORDER BY created_at",
		models.AttemptInFlight, models.AttemptPendingVerification)
	if err != nil {
		return nil, err
	}

	out := make([]models.PaymentAttempt, 0, len(rows))
	for i := range rows {
		a, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}
