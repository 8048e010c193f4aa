package realtime

import (
	"errors"
	"sync"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned by Subscribe after Close
var ErrClosed = errors.New("broadcaster closed")

// SnapshotSource supplies the committed state of a store
type SnapshotSource interface {
	Snapshot(storeID string) models.Snapshot
}

// Subscription is one live kitchen display or terminal connection.
// Events arrive in per-check order; the first event is always a snapshot.
type Subscription struct {
	ID      string
	StoreID string
	Client  string

	ch      chan models.Envelope
	lastSeq map[string]uint64
	stale   bool
	closed  bool
}

// Events returns the delivery channel. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan models.Envelope {
	return s.ch
}

type storeHub struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// Broadcaster fans committed events out to per-store subscriptions.
// Publish never blocks: a subscriber whose buffer is full misses events and
// is sent a fresh snapshot as soon as it has room again.
type Broadcaster struct {
	source SnapshotSource
	buffer int
	logger *zap.Logger

	mu     sync.RWMutex
	hubs   map[string]*storeHub
	closed bool
}

// NewBroadcaster creates a broadcaster. buffer is the per-subscription channel size.
func NewBroadcaster(source SnapshotSource, buffer int) *Broadcaster {
	if buffer < 2 {
		buffer = 2
	}
	return &Broadcaster{
		source: source,
		buffer: buffer,
		logger: util.GetLogger(),
		hubs:   make(map[string]*storeHub),
	}
}

func (b *Broadcaster) hub(storeID string, create bool) *storeHub {
	b.mu.RLock()
	h, ok := b.hubs[storeID]
	b.mu.RUnlock()
	if ok || !create {
		return h
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok = b.hubs[storeID]; !ok {
		h = &storeHub{subs: make(map[string]*Subscription)}
		b.hubs[storeID] = h
	}
	return h
}

// Subscribe registers a subscription for a store and queues a snapshot of
// its open checks before any incremental event.
func (b *Broadcaster) Subscribe(storeID, client string) (*Subscription, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	h := b.hub(storeID, true)
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.New().String(),
		StoreID: storeID,
		Client:  client,
		ch:      make(chan models.Envelope, b.buffer),
	}
	env, err := b.snapshotFor(sub)
	if err != nil {
		return nil, err
	}
	sub.ch <- env
	h.subs[sub.ID] = sub

	util.RealtimeSubscribers.WithLabelValues(storeID).Inc()
	b.logger.Info("Realtime subscriber connected",
		zap.String("subscriber_id", sub.ID),
		zap.String("store_id", storeID),
		zap.String("client", client),
		zap.Int("subscribers", len(h.subs)))

	return sub, nil
}

// Unsubscribe removes the subscription and closes its channel
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	h := b.hub(sub.StoreID, false)
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	b.removeLocked(h, sub)
}

func (b *Broadcaster) removeLocked(h *storeHub, sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub.ID)
	close(sub.ch)

	util.RealtimeSubscribers.WithLabelValues(sub.StoreID).Dec()
	b.logger.Info("Realtime subscriber disconnected",
		zap.String("subscriber_id", sub.ID),
		zap.String("store_id", sub.StoreID))
}

// Publish delivers an event to every subscription of its store
func (b *Broadcaster) Publish(env models.Envelope) {
	h := b.hub(env.StoreID, false)
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		b.deliver(sub, env)
	}
}

// deliver is called with the hub lock held
func (b *Broadcaster) deliver(sub *Subscription, env models.Envelope) {
	if sub.stale {
		if len(sub.ch) == cap(sub.ch) {
			util.RealtimeDroppedTotal.Inc()
			return
		}
		snap, err := b.snapshotFor(sub)
		if err != nil {
			b.logger.Error("Failed to build resync snapshot", zap.String("subscriber_id", sub.ID), zap.Error(err))
			return
		}
		sub.ch <- snap
		sub.stale = false
		util.RealtimeResyncsTotal.Inc()
	}

	if env.CheckID != "" && env.Sequence <= sub.lastSeq[env.CheckID] {
		return
	}

	select {
	case sub.ch <- env:
		if env.Type == models.EventTableReleased {
			delete(sub.lastSeq, env.CheckID)
		} else if env.CheckID != "" {
			sub.lastSeq[env.CheckID] = env.Sequence
		}
	default:
		sub.stale = true
		util.RealtimeDroppedTotal.Inc()
		b.logger.Warn("Subscriber channel full, dropping event",
			zap.String("subscriber_id", sub.ID),
			zap.String("event_type", string(env.Type)),
			zap.String("check_id", env.CheckID))
	}
}

// snapshotFor builds a snapshot envelope and resets the subscription's
// sequence marks to it. Caller holds the hub lock.
func (b *Broadcaster) snapshotFor(sub *Subscription) (models.Envelope, error) {
	snap := b.source.Snapshot(sub.StoreID)
	env, err := models.NewEnvelope(models.EventSnapshot, sub.StoreID, "", 0, snap)
	if err != nil {
		return models.Envelope{}, err
	}
	sub.lastSeq = make(map[string]uint64, len(snap.Checks))
	for _, c := range snap.Checks {
		sub.lastSeq[c.ID] = c.Sequence
	}
	return env, nil
}

// Subscribers returns the number of live subscriptions for a store
func (b *Broadcaster) Subscribers(storeID string) int {
	h := b.hub(storeID, false)
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscription and rejects new ones
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	hubs := make([]*storeHub, 0, len(b.hubs))
	for _, h := range b.hubs {
		hubs = append(hubs, h)
	}
	b.mu.Unlock()

	for _, h := range hubs {
		h.mu.Lock()
		for _, sub := range h.subs {
			b.removeLocked(h, sub)
		}
		h.mu.Unlock()
	}
}
