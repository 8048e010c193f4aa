package store

import (
	"context"

	"dining-service/internal/models"
)

// AppendActivity stores an activity entry and marks its event processed in one transaction
func (s *Store) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO activity_log (event_id, event_type, store_id, check_id, sequence, payload, occurred_at)
		VALUES (:event_id, :event_type, :store_id, :check_id, :sequence, :payload, :occurred_at)
		ON CONFLICT (event_id) DO NOTHING`, entry)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		entry.EventID, entry.EventType)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ActivityForCheck retrieves a check's activity in sequence order
func (s *Store) ActivityForCheck(ctx context.Context, checkID string) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM activity_log WHERE check_id = $1 ORDER BY sequence", checkID)
	return entries, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}
