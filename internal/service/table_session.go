package service

import (
	"context"
	"fmt"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TableSessionManager owns table occupancy and opens and closes checks
type TableSessionManager struct {
	sessions *SessionStore
	logger   *zap.Logger
}

// NewTableSessionManager creates a new table session manager
func NewTableSessionManager(sessions *SessionStore) *TableSessionManager {
	return &TableSessionManager{
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

func tableID(ref models.TableRef) string {
	return fmt.Sprintf("%s/%d", ref.StoreID, ref.Number)
}

// Provision registers a table. Provisioning an existing table only updates its capacity.
func (m *TableSessionManager) Provision(ctx context.Context, storeID string, number, capacity int) (*models.Table, error) {
	if storeID == "" {
		return nil, invalid("store_id", "is required")
	}
	if number <= 0 {
		return nil, invalid("number", "must be positive")
	}
	if capacity <= 0 {
		return nil, invalid("capacity", "must be positive")
	}

	e, loaded := m.sessions.putTable(models.Table{
		StoreID:   storeID,
		Number:    number,
		Capacity:  capacity,
		State:     models.TableAvailable,
		UpdatedAt: time.Now().UTC(),
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if loaded && e.table.Capacity != capacity {
		e.table.Capacity = capacity
		e.table.UpdatedAt = time.Now().UTC()
		e.publish()
	}
	m.sessions.saveTable(ctx, &e.table)

	t := e.table
	return &t, nil
}

// Occupy opens a new check on an available or reserved table. A second
// occupy on a table with an open check fails with a ConflictError.
func (m *TableSessionManager) Occupy(ctx context.Context, ref models.TableRef, openedBy string, partySize int) (check *models.Check, err error) {
	ctx, span := util.StartSpan(ctx, "TableSessionManager.Occupy",
		attribute.String("store_id", ref.StoreID),
		attribute.Int("table", ref.Number))
	defer func() { util.EndSpan(span, err) }()

	if openedBy == "" {
		return nil, invalid("opened_by", "is required")
	}
	if partySize < 0 {
		return nil, invalid("party_size", "must not be negative")
	}

	te, err := m.sessions.table(ref)
	if err != nil {
		return nil, err
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if te.table.ActiveCheckID != "" || te.table.State == models.TableOccupied {
		util.OccupyConflictsTotal.Inc()
		return nil, conflict("table %d already has open check %s", ref.Number, te.table.ActiveCheckID)
	}
	if partySize > te.table.Capacity {
		return nil, invalid("party_size", "%d exceeds table capacity %d", partySize, te.table.Capacity)
	}

	now := time.Now().UTC()
	e := &checkEntry{check: &models.Check{
		ID:          uuid.New().String(),
		StoreID:     ref.StoreID,
		TableNumber: ref.Number,
		OpenedBy:    openedBy,
		PartySize:   partySize,
		Status:      models.CheckOpen,
		Orders:      []models.Order{},
		Tickets:     []models.Ticket{},
		Payments:    []models.Payment{},
		OpenedAt:    now,
		UpdatedAt:   now,
	}}

	e.mu.Lock()
	defer e.mu.Unlock()

	m.sessions.addCheck(e)
	te.table.State = models.TableOccupied
	te.table.ActiveCheckID = e.check.ID
	te.table.UpdatedAt = now
	te.publish()
	m.sessions.saveTable(ctx, &te.table)

	m.sessions.commit(ctx, e, pendingEvent{
		typ:     models.EventTableOccupied,
		payload: models.EventPayload{TableNumber: ref.Number},
	})

	util.ChecksOpenedTotal.Inc()
	m.logger.Info("Table occupied",
		zap.String("store_id", ref.StoreID),
		zap.Int("table", ref.Number),
		zap.String("check_id", e.check.ID),
		zap.String("opened_by", openedBy))

	return e.view.Load().Clone(), nil
}

// Release closes the active check if it is settled and returns the table to
// AVAILABLE. It fails with a PreconditionError while anything is owed, a
// ticket item is still in the kitchen or a payment awaits verification.
func (m *TableSessionManager) Release(ctx context.Context, ref models.TableRef) (err error) {
	ctx, span := util.StartSpan(ctx, "TableSessionManager.Release",
		attribute.String("store_id", ref.StoreID),
		attribute.Int("table", ref.Number))
	defer func() { util.EndSpan(span, err) }()

	te, err := m.sessions.table(ref)
	if err != nil {
		return err
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if te.table.ActiveCheckID == "" {
		return precondition("table %d has no open check", ref.Number)
	}
	e, err := m.sessions.check(te.table.ActiveCheckID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.check
	var events []pendingEvent
	if c.Status != models.CheckClosed {
		if len(c.PendingPayments) > 0 {
			return precondition("payment %s awaits verification", c.PendingPayments[0])
		}
		if due := c.Due(); due > 0 {
			return precondition("check %s still owes %d", c.ID, due)
		}
		if n := c.OutstandingItems(); n > 0 {
			return precondition("check %s has %d ticket items not served or cancelled", c.ID, n)
		}
		events = append(events, closeCheck(c))
	}
	events = append(events, pendingEvent{
		typ:     models.EventTableReleased,
		payload: models.EventPayload{TableNumber: ref.Number},
	})
	m.sessions.archive(e)
	te.table.State = models.TableAvailable
	te.table.ActiveCheckID = ""
	te.table.UpdatedAt = time.Now().UTC()
	te.publish()
	m.sessions.saveTable(ctx, &te.table)

	m.sessions.commit(ctx, e, events...)

	util.TablesReleasedTotal.Inc()
	m.logger.Info("Table released",
		zap.String("store_id", ref.StoreID),
		zap.Int("table", ref.Number),
		zap.String("check_id", c.ID))

	return nil
}

// GetActiveCheck returns the committed state of the table's open check without blocking
func (m *TableSessionManager) GetActiveCheck(ref models.TableRef) (*models.Check, error) {
	te, err := m.sessions.table(ref)
	if err != nil {
		return nil, err
	}
	id := te.view.Load().ActiveCheckID
	if id == "" {
		return nil, &NotFoundError{Kind: "open check for table", ID: tableID(ref)}
	}
	e, err := m.sessions.check(id)
	if err != nil {
		return nil, err
	}
	return e.view.Load().Clone(), nil
}

// GetCheck returns the committed state of an open check without blocking
func (m *TableSessionManager) GetCheck(checkID string) (*models.Check, error) {
	e, err := m.sessions.check(checkID)
	if err != nil {
		return nil, err
	}
	return e.view.Load().Clone(), nil
}

// MarkReserved moves an available table to RESERVED. Used by the reservation collaborator.
func (m *TableSessionManager) MarkReserved(ctx context.Context, ref models.TableRef) error {
	return m.setReservation(ctx, ref, models.TableAvailable, models.TableReserved)
}

// ClearReservation returns a reserved table to AVAILABLE
func (m *TableSessionManager) ClearReservation(ctx context.Context, ref models.TableRef) error {
	return m.setReservation(ctx, ref, models.TableReserved, models.TableAvailable)
}

func (m *TableSessionManager) setReservation(ctx context.Context, ref models.TableRef, from, to models.TableState) error {
	te, err := m.sessions.table(ref)
	if err != nil {
		return err
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if te.table.State != from {
		return conflict("table %d is %s, expected %s", ref.Number, te.table.State, from)
	}
	te.table.State = to
	te.table.UpdatedAt = time.Now().UTC()
	te.publish()
	m.sessions.saveTable(ctx, &te.table)
	return nil
}

// closeCheck marks the check CLOSED. Caller holds the check lock.
func closeCheck(c *models.Check) pendingEvent {
	now := time.Now().UTC()
	c.Status = models.CheckClosed
	c.ClosedAt = &now
	util.ChecksClosedTotal.Inc()
	return pendingEvent{typ: models.EventCheckClosed}
}
