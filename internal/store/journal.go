package store

import (
	"context"
	"encoding/json"
	"fmt"

	"dining-service/internal/models"
)

// SaveTable upserts a table's occupancy state
func (s *Store) SaveTable(ctx context.Context, t *models.Table) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO dining_tables (store_id, number, capacity, state, active_check_id, updated_at)
		VALUES (:store_id, :number, :capacity, :state, :active_check_id, :updated_at)
		ON CONFLICT (store_id, number) DO UPDATE
		SET capacity = EXCLUDED.capacity, state = EXCLUDED.state,
		    active_check_id = EXCLUDED.active_check_id, updated_at = EXCLUDED.updated_at`, t)
	return err
}

// ListTables retrieves every table of every store
func (s *Store) ListTables(ctx context.Context) ([]models.Table, error) {
	var tables []models.Table
	err := s.db.SelectContext(ctx, &tables, "SELECT * FROM dining_tables ORDER BY store_id, number")
	return tables, err
}

// SaveCheck writes the check aggregate. An older sequence never overwrites a newer one.
func (s *Store) SaveCheck(ctx context.Context, c *models.Check) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal check %s: %w", c.ID, err)
	}

	query := `
		INSERT INTO checks (id, store_id, table_number, status, sequence, total, paid, data, opened_at, updated_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, sequence = EXCLUDED.sequence, total = EXCLUDED.total,
		    paid = EXCLUDED.paid, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at,
		    closed_at = EXCLUDED.closed_at
		WHERE checks.sequence <= EXCLUDED.sequence`

	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.StoreID, c.TableNumber, c.Status, c.Sequence, c.Total, c.Paid, data,
		c.OpenedAt, c.UpdatedAt, c.ClosedAt)
	return err
}

// LoadOpenChecks retrieves every check that has not been closed
func (s *Store) LoadOpenChecks(ctx context.Context) ([]models.Check, error) {
	var rows [][]byte
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT data FROM checks WHERE status <> $1 ORDER BY opened_at", models.CheckClosed); err != nil {
		return nil, err
	}

	checks := make([]models.Check, 0, len(rows))
	for _, data := range rows {
		var c models.Check
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, nil
}
