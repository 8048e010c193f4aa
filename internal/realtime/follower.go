package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"go.uber.org/zap"
)

// Source is where a follower reads a store's events and snapshots
type Source interface {
	// Stream calls handle for every event until ctx ends, the connection
	// fails or handle returns an error. The first event is a snapshot.
	Stream(ctx context.Context, storeID string, handle func(models.Envelope) error) error
	Snapshot(ctx context.Context, storeID string) (*models.Snapshot, error)
}

// FollowerConfig tunes the polling fallback and reconnect backoff
type FollowerConfig struct {
	PollInterval time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

// DefaultFollowerConfig returns the defaults used by kitchen displays
func DefaultFollowerConfig() FollowerConfig {
	return FollowerConfig{
		PollInterval: 30 * time.Second,
		BackoffMin:   500 * time.Millisecond,
		BackoffMax:   30 * time.Second,
	}
}

// ApplyResult reports what Apply did with an event
type ApplyResult int

const (
	Applied ApplyResult = iota
	Duplicate
	Gap
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	}
	return "unknown"
}

// Follower keeps a local copy of a store's open checks from a push stream,
// discarding duplicates and resynchronising from a snapshot on any gap. A
// periodic poll runs independently of the stream to cap staleness.
type Follower struct {
	storeID string
	source  Source
	cfg     FollowerConfig
	logger  *zap.Logger
	onApply func(models.Envelope)

	mu       sync.RWMutex
	checks   map[string]models.Check
	tables   map[int]models.Table
	seqs     map[string]uint64
	lastSync time.Time
}

// NewFollower creates a follower for one store
func NewFollower(storeID string, source Source, cfg FollowerConfig) *Follower {
	defaults := DefaultFollowerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaults.BackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	return &Follower{
		storeID: storeID,
		source:  source,
		cfg:     cfg,
		logger:  util.GetLogger(),
		checks:  make(map[string]models.Check),
		tables:  make(map[int]models.Table),
		seqs:    make(map[string]uint64),
	}
}

// OnApply registers a callback run after every applied event. Set before Run.
func (f *Follower) OnApply(fn func(models.Envelope)) {
	f.onApply = fn
}

// Run streams events with reconnect backoff and polls snapshots until ctx ends
func (f *Follower) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.pollLoop(ctx)
	}()
	defer wg.Wait()

	backoff := f.cfg.BackoffMin
	for {
		received, err := f.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			backoff = f.cfg.BackoffMin
		}

		f.logger.Warn("Event stream disconnected",
			zap.String("store_id", f.storeID),
			zap.Duration("retry_in", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, f.cfg.BackoffMax)
	}
}

func (f *Follower) stream(ctx context.Context) (bool, error) {
	received := false
	err := f.source.Stream(ctx, f.storeID, func(env models.Envelope) error {
		received = true
		if f.Apply(env) == Gap {
			f.logger.Info("Sequence gap, requesting snapshot",
				zap.String("store_id", f.storeID),
				zap.String("check_id", env.CheckID),
				zap.Uint64("sequence", env.Sequence))
			return f.Refresh(ctx)
		}
		return nil
	})
	return received, err
}

func (f *Follower) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
				f.logger.Warn("Snapshot poll failed", zap.String("store_id", f.storeID), zap.Error(err))
			}
		}
	}
}

// Refresh fetches a snapshot and merges it into local state
func (f *Follower) Refresh(ctx context.Context) error {
	snap, err := f.source.Snapshot(ctx, f.storeID)
	if err != nil {
		return err
	}
	f.Reset(snap)
	return nil
}

// Apply applies one event. Snapshots reset state; a duplicate or older
// sequence is discarded; a skipped sequence is reported as a Gap and leaves
// state unchanged.
func (f *Follower) Apply(env models.Envelope) ApplyResult {
	if env.Type == models.EventSnapshot {
		snap, err := env.DecodeSnapshot()
		if err != nil {
			f.logger.Error("Failed to decode snapshot", zap.Error(err))
			return Gap
		}
		f.Reset(snap)
		f.notify(env)
		return Applied
	}

	payload, err := env.DecodePayload()
	if err != nil {
		f.logger.Error("Failed to decode event", zap.String("event_type", string(env.Type)), zap.Error(err))
		return Gap
	}

	f.mu.Lock()
	last, known := f.seqs[env.CheckID]
	switch {
	case known && env.Sequence <= last:
		f.mu.Unlock()
		return Duplicate
	case known && env.Sequence != last+1, !known && env.Sequence != 1:
		f.mu.Unlock()
		return Gap
	}

	f.seqs[env.CheckID] = env.Sequence
	switch env.Type {
	case models.EventTableReleased:
		delete(f.checks, env.CheckID)
		if t, ok := f.tables[payload.TableNumber]; ok {
			t.State = models.TableAvailable
			t.ActiveCheckID = ""
			f.tables[payload.TableNumber] = t
		}
	case models.EventTableOccupied:
		f.checks[env.CheckID] = payload.Check
		t := f.tables[payload.TableNumber]
		t.StoreID = env.StoreID
		t.Number = payload.TableNumber
		t.State = models.TableOccupied
		t.ActiveCheckID = env.CheckID
		f.tables[payload.TableNumber] = t
	default:
		f.checks[env.CheckID] = payload.Check
	}
	f.mu.Unlock()

	f.notify(env)
	return Applied
}

// Reset merges a snapshot. Checks are never regressed to an older sequence;
// local checks missing from the snapshot are dropped unless they were opened
// after it was taken.
func (f *Follower) Reset(snap *models.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	present := make(map[string]bool, len(snap.Checks))
	for _, c := range snap.Checks {
		present[c.ID] = true
		if last, ok := f.seqs[c.ID]; ok && last > c.Sequence {
			continue
		}
		f.checks[c.ID] = c
		f.seqs[c.ID] = c.Sequence
	}
	for id, c := range f.checks {
		if !present[id] && c.OpenedAt.Before(snap.TakenAt) {
			delete(f.checks, id)
		}
	}
	for id := range f.seqs {
		if _, ok := f.checks[id]; !ok && !present[id] {
			delete(f.seqs, id)
		}
	}

	f.tables = make(map[int]models.Table, len(snap.Tables))
	for _, t := range snap.Tables {
		f.tables[t.Number] = t
	}
	f.lastSync = time.Now()
}

func (f *Follower) notify(env models.Envelope) {
	if f.onApply != nil {
		f.onApply(env)
	}
}

// Checks returns the local open checks ordered by table number
func (f *Follower) Checks() []models.Check {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.Check, 0, len(f.checks))
	for _, c := range f.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out
}

// Check returns the local copy of one check
func (f *Follower) Check(id string) (models.Check, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.checks[id]
	return c, ok
}

// Tables returns the local table states ordered by number
func (f *Follower) Tables() []models.Table {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.Table, 0, len(f.tables))
	for _, t := range f.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// LastSync returns when the last snapshot was merged
func (f *Follower) LastSync() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastSync
}

// nextBackoff doubles the delay up to max
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
