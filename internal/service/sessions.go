package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"go.uber.org/zap"
)

// tableEntry is the single-writer boundary for one table. Readers use view.
type tableEntry struct {
	mu    sync.Mutex
	table models.Table
	view  atomic.Pointer[models.Table]
}

func (e *tableEntry) publish() {
	t := e.table
	e.view.Store(&t)
}

// checkEntry is the single-writer boundary for one check. Every mutation of
// check happens under mu; view holds an immutable copy for lock-free reads.
type checkEntry struct {
	mu       sync.Mutex
	check    *models.Check
	view     atomic.Pointer[models.Check]
	archived bool
}

// pendingEvent is produced under a check lock and sequenced by commit
type pendingEvent struct {
	typ     models.EventType
	payload models.EventPayload
}

type storeIndex struct {
	tables sync.Map // table number -> *tableEntry
	checks sync.Map // check id -> *checkEntry
}

// SessionStore keeps every table and open check of the process keyed by
// store and check. There is no store-wide lock: tables and checks each carry
// their own mutex and are always locked table first, then check.
type SessionStore struct {
	stores      sync.Map // store id -> *storeIndex
	checks      sync.Map // check id -> *checkEntry
	ticketItems sync.Map // ticket item id -> check id
	payments    sync.Map // payment id -> check id

	journal    Journal
	activity   ActivitySink
	publishers []EventPublisher
	logger     *zap.Logger
}

// SessionOption configures a SessionStore
type SessionOption func(*SessionStore)

// WithJournal persists every committed table and check
func WithJournal(j Journal) SessionOption {
	return func(s *SessionStore) { s.journal = j }
}

// WithActivitySink records every committed event
func WithActivitySink(a ActivitySink) SessionOption {
	return func(s *SessionStore) { s.activity = a }
}

// NewSessionStore creates an empty session store
func NewSessionStore(opts ...SessionOption) *SessionStore {
	s := &SessionStore{logger: util.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddPublisher registers an event consumer. Call before serving traffic.
func (s *SessionStore) AddPublisher(p EventPublisher) {
	s.publishers = append(s.publishers, p)
}

func (s *SessionStore) index(storeID string) *storeIndex {
	if idx, ok := s.stores.Load(storeID); ok {
		return idx.(*storeIndex)
	}
	idx, _ := s.stores.LoadOrStore(storeID, &storeIndex{})
	return idx.(*storeIndex)
}

// putTable inserts a table or returns the existing entry
func (s *SessionStore) putTable(t models.Table) (*tableEntry, bool) {
	e := &tableEntry{table: t}
	e.publish()
	actual, loaded := s.index(t.StoreID).tables.LoadOrStore(t.Number, e)
	return actual.(*tableEntry), loaded
}

func (s *SessionStore) table(ref models.TableRef) (*tableEntry, error) {
	if idx, ok := s.stores.Load(ref.StoreID); ok {
		if e, ok := idx.(*storeIndex).tables.Load(ref.Number); ok {
			return e.(*tableEntry), nil
		}
	}
	return nil, &NotFoundError{Kind: "table", ID: tableID(ref)}
}

func (s *SessionStore) check(id string) (*checkEntry, error) {
	if e, ok := s.checks.Load(id); ok {
		return e.(*checkEntry), nil
	}
	return nil, &NotFoundError{Kind: "check", ID: id}
}

func (s *SessionStore) checkForTicketItem(id string) (*checkEntry, error) {
	if checkID, ok := s.ticketItems.Load(id); ok {
		if e, err := s.check(checkID.(string)); err == nil {
			return e, nil
		}
	}
	return nil, &NotFoundError{Kind: "ticket item", ID: id}
}

func (s *SessionStore) checkForPayment(id string) (*checkEntry, error) {
	if checkID, ok := s.payments.Load(id); ok {
		if e, err := s.check(checkID.(string)); err == nil {
			return e, nil
		}
	}
	return nil, &NotFoundError{Kind: "payment", ID: id}
}

// addCheck indexes a new check entry. Caller holds e.mu.
func (s *SessionStore) addCheck(e *checkEntry) {
	c := e.check
	e.view.Store(c.Clone())
	s.checks.Store(c.ID, e)
	s.index(c.StoreID).checks.Store(c.ID, e)
	s.indexTicketItems(c.ID, c.Tickets)
	for i := range c.Payments {
		s.indexPayment(c.Payments[i].ID, c.ID)
	}
}

func (s *SessionStore) indexTicketItems(checkID string, tickets []models.Ticket) {
	for i := range tickets {
		for j := range tickets[i].Items {
			s.ticketItems.Store(tickets[i].Items[j].ID, checkID)
		}
	}
}

func (s *SessionStore) indexPayment(paymentID, checkID string) {
	s.payments.Store(paymentID, checkID)
}

// archive drops a closed check from every index. Caller holds e.mu.
func (s *SessionStore) archive(e *checkEntry) {
	c := e.check
	e.archived = true
	s.checks.Delete(c.ID)
	s.index(c.StoreID).checks.Delete(c.ID)
	for i := range c.Tickets {
		for j := range c.Tickets[i].Items {
			s.ticketItems.Delete(c.Tickets[i].Items[j].ID)
		}
	}
	for i := range c.Payments {
		s.payments.Delete(c.Payments[i].ID)
	}
}

// commit publishes the check's new state and emits events in sequence.
// Caller holds e.mu. Journal and activity failures are logged; the in-memory
// state stays authoritative for the running process.
func (s *SessionStore) commit(ctx context.Context, e *checkEntry, events ...pendingEvent) {
	c := e.check
	c.UpdatedAt = time.Now().UTC()
	first := c.Sequence + 1
	c.Sequence += uint64(len(events))
	view := c.Clone()
	e.view.Store(view)

	if s.journal != nil {
		if err := s.journal.SaveCheck(ctx, view); err != nil {
			s.logger.Error("Failed to journal check",
				zap.String("check_id", c.ID),
				zap.Uint64("sequence", c.Sequence),
				zap.Error(err))
		}
	}

	for i, ev := range events {
		ev.payload.Check = *view
		env, err := models.NewEnvelope(ev.typ, c.StoreID, c.ID, first+uint64(i), ev.payload)
		if err != nil {
			s.logger.Error("Failed to build event", zap.String("check_id", c.ID), zap.Error(err))
			continue
		}
		for _, p := range s.publishers {
			p.Publish(env)
		}
		if s.activity != nil {
			s.activity.Record(ctx, env)
		}
	}
}

func (s *SessionStore) saveTable(ctx context.Context, t *models.Table) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SaveTable(ctx, t); err != nil {
		s.logger.Error("Failed to journal table",
			zap.String("store_id", t.StoreID),
			zap.Int("table", t.Number),
			zap.Error(err))
	}
}

// Restore loads persisted tables and open checks after a restart. Checks whose
// table is unknown or no longer points at them are skipped.
func (s *SessionStore) Restore(tables []models.Table, checks []models.Check) int {
	for _, t := range tables {
		if e, loaded := s.putTable(t); loaded {
			e.mu.Lock()
			e.table = t
			e.publish()
			e.mu.Unlock()
		}
	}

	restored := 0
	for i := range checks {
		c := checks[i].Clone()
		if c.Status == models.CheckClosed {
			continue
		}
		te, err := s.table(models.TableRef{StoreID: c.StoreID, Number: c.TableNumber})
		if err != nil || te.view.Load().ActiveCheckID != c.ID {
			s.logger.Warn("Skipping orphaned check on restore",
				zap.String("check_id", c.ID),
				zap.String("store_id", c.StoreID),
				zap.Int("table", c.TableNumber))
			continue
		}
		e := &checkEntry{check: c}
		e.mu.Lock()
		s.addCheck(e)
		e.mu.Unlock()
		restored++
	}
	return restored
}

// Snapshot returns the committed state of a store's tables and open checks
func (s *SessionStore) Snapshot(storeID string) models.Snapshot {
	snap := models.Snapshot{
		StoreID: storeID,
		Tables:  []models.Table{},
		Checks:  []models.Check{},
		TakenAt: time.Now().UTC(),
	}
	idx, ok := s.stores.Load(storeID)
	if !ok {
		return snap
	}
	idx.(*storeIndex).tables.Range(func(_, v interface{}) bool {
		snap.Tables = append(snap.Tables, *v.(*tableEntry).view.Load())
		return true
	})
	idx.(*storeIndex).checks.Range(func(_, v interface{}) bool {
		snap.Checks = append(snap.Checks, *v.(*checkEntry).view.Load())
		return true
	})
	sort.Slice(snap.Tables, func(i, j int) bool { return snap.Tables[i].Number < snap.Tables[j].Number })
	sort.Slice(snap.Checks, func(i, j int) bool { return snap.Checks[i].TableNumber < snap.Checks[j].TableNumber })
	return snap
}

// Tables lists a store's tables ordered by number
func (s *SessionStore) Tables(storeID string) []models.Table {
	return s.Snapshot(storeID).Tables
}
