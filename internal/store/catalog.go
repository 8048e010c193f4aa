package store

import (
	"context"
	"fmt"

	"dining-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// LookupMenuItems retrieves menu items of a store by ID. Missing IDs are absent from the result.
func (s *Store) LookupMenuItems(ctx context.Context, storeID string, ids []string) (map[string]models.MenuItem, error) {
	if len(ids) == 0 {
		return map[string]models.MenuItem{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM menu_items WHERE store_id = ? AND id IN (?)", storeID, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.MenuItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	out := make(map[string]models.MenuItem, len(items))
	for _, mi := range items {
		out[mi.ID] = mi
	}
	return out, nil
}

// UpsertMenuItem creates or updates a menu item
func (s *Store) UpsertMenuItem(ctx context.Context, mi *models.MenuItem) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO menu_items (id, store_id, name, price, station, available)
		VALUES (:id, :store_id, :name, :price, :station, :available)
		ON CONFLICT (store_id, id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price,
		    station = EXCLUDED.station, available = EXCLUDED.available`, mi)
	return err
}

type couponRow struct {
	Code  string `db:"code"`
	Value int64  `db:"value"`
}

// Balance retrieves a customer's points and unredeemed coupons. Unknown customers have an empty balance.
func (s *Store) Balance(ctx context.Context, storeID, customerID string) (models.Balance, error) {
	bal := models.Balance{Coupons: map[string]int64{}}

	var points []int64
	err := s.db.SelectContext(ctx, &points,
		"SELECT points FROM customer_balances WHERE store_id = $1 AND customer_id = $2", storeID, customerID)
	if err != nil {
		return bal, fmt.Errorf("failed to load points: %w", err)
	}
	if len(points) > 0 {
		bal.Points = points[0]
	}

	var coupons []couponRow
	err = s.db.SelectContext(ctx, &coupons,
		"SELECT code, value FROM customer_coupons WHERE store_id = $1 AND customer_id = $2 AND NOT redeemed",
		storeID, customerID)
	if err != nil {
		return bal, fmt.Errorf("failed to load coupons: %w", err)
	}
	for _, c := range coupons {
		bal.Coupons[c.Code] = c.Value
	}
	return bal, nil
}

func couponCodes(allocs []models.Allocation) []string {
	var codes []string
	for _, a := range allocs {
		if a.Instrument == models.InstrumentCoupon {
			codes = append(codes, a.Reference)
		}
	}
	return codes
}

// Redeem debits points and marks coupons redeemed in one transaction.
// Nothing is debited when any part is no longer available.
func (s *Store) Redeem(ctx context.Context, storeID, customerID string, allocs []models.Allocation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if points := models.AmountFor(allocs, models.InstrumentPoints); points > 0 {
		res, err := tx.ExecContext(ctx, `
			UPDATE customer_balances SET points = points - $3
			WHERE store_id = $1 AND customer_id = $2 AND points >= $3`,
			storeID, customerID, points)
		if err != nil {
			return fmt.Errorf("failed to debit points: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("points %d for customer %s: %w", points, customerID, models.ErrInsufficientBalance)
		}
	}

	for _, code := range couponCodes(allocs) {
		res, err := tx.ExecContext(ctx, `
			UPDATE customer_coupons SET redeemed = TRUE
			WHERE store_id = $1 AND customer_id = $2 AND code = $3 AND NOT redeemed`,
			storeID, customerID, code)
		if err != nil {
			return fmt.Errorf("failed to redeem coupon %s: %w", code, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("coupon %s for customer %s: %w", code, customerID, models.ErrInsufficientBalance)
		}
	}

	return tx.Commit()
}

// Restore credits points back and reopens coupons of a refunded payment
func (s *Store) Restore(ctx context.Context, storeID, customerID string, allocs []models.Allocation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if points := models.AmountFor(allocs, models.InstrumentPoints); points > 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO customer_balances (store_id, customer_id, points) VALUES ($1, $2, $3)
			ON CONFLICT (store_id, customer_id) DO UPDATE
			SET points = customer_balances.points + EXCLUDED.points`,
			storeID, customerID, points)
		if err != nil {
			return fmt.Errorf("failed to credit points: %w", err)
		}
	}

	for _, code := range couponCodes(allocs) {
		_, err := tx.ExecContext(ctx,
			"UPDATE customer_coupons SET redeemed = FALSE WHERE store_id = $1 AND customer_id = $2 AND code = $3",
			storeID, customerID, code)
		if err != nil {
			return fmt.Errorf("failed to restore coupon %s: %w", code, err)
		}
	}

	return tx.Commit()
}
