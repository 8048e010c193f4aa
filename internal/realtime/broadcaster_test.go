package realtime

import (
	"context"
	"testing"

	"dining-service/internal/models"
	"dining-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStore = "store-1"

type menu map[string]models.MenuItem

func (m menu) LookupMenuItems(ctx context.Context, storeID string, ids []string) (map[string]models.MenuItem, error) {
	out := make(map[string]models.MenuItem, len(ids))
	for _, id := range ids {
		if mi, ok := m[id]; ok {
			out[id] = mi
		}
	}
	return out, nil
}

type floor struct {
	sessions    *service.SessionStore
	tables      *service.TableSessionManager
	orders      *service.OrderAggregator
	tickets     *service.TicketDispatcher
	broadcaster *Broadcaster
}

func newFloor(t *testing.T, buffer int) *floor {
	t.Helper()

	f := &floor{sessions: service.NewSessionStore()}
	f.broadcaster = NewBroadcaster(f.sessions, buffer)
	f.sessions.AddPublisher(f.broadcaster)
	f.tables = service.NewTableSessionManager(f.sessions)
	f.tickets = service.NewTicketDispatcher(f.sessions)
	f.orders = service.NewOrderAggregator(f.sessions, menu{
		"burger": {ID: "burger", StoreID: testStore, Price: 1200, Station: "grill", Available: true},
		"cola":   {ID: "cola", StoreID: testStore, Price: 300, Station: "bar", Available: true},
	}, f.tickets)

	for n := 1; n <= 3; n++ {
		_, err := f.tables.Provision(context.Background(), testStore, n, 4)
		require.NoError(t, err)
	}
	return f
}

func (f *floor) occupy(t *testing.T, table int) *models.Check {
	t.Helper()
	c, err := f.tables.Occupy(context.Background(), models.TableRef{StoreID: testStore, Number: table}, "server-1", 2)
	require.NoError(t, err)
	return c
}

func (f *floor) order(t *testing.T, checkID string, menuItemID string) {
	t.Helper()
	_, err := f.orders.SubmitOrder(context.Background(), checkID, models.SourceTerminal,
		[]service.OrderItemInput{{MenuItemID: menuItemID, Quantity: 1}})
	require.NoError(t, err)
}

func drain(sub *Subscription) []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case env, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestSubscribe_SnapshotFirst(t *testing.T) {
	f := newFloor(t, 16)
	c := f.occupy(t, 1)

	sub, err := f.broadcaster.Subscribe(testStore, "kds-grill")
	require.NoError(t, err)
	assert.Equal(t, 1, f.broadcaster.Subscribers(testStore))

	f.order(t, c.ID, "burger")

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventSnapshot, events[0].Type)
	snap, err := events[0].DecodeSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.Checks, 1)
	assert.Equal(t, uint64(1), snap.Checks[0].Sequence)
	assert.Len(t, snap.Tables, 3)

	assert.Equal(t, models.EventNewOrder, events[1].Type)
	assert.Equal(t, uint64(2), events[1].Sequence)
}

func TestPublish_DiscardsAlreadyDeliveredSequences(t *testing.T) {
	f := newFloor(t, 16)
	sub, err := f.broadcaster.Subscribe(testStore, "terminal")
	require.NoError(t, err)

	c := f.occupy(t, 1)
	f.order(t, c.ID, "cola")
	events := drain(sub)
	require.Len(t, events, 3)

	f.broadcaster.Publish(events[2])
	f.broadcaster.Publish(events[1])
	assert.Empty(t, drain(sub))
}

func TestPublish_OtherStoresNotDelivered(t *testing.T) {
	f := newFloor(t, 16)
	sub, err := f.broadcaster.Subscribe("store-2", "terminal")
	require.NoError(t, err)
	drain(sub)

	f.occupy(t, 1)
	assert.Empty(t, drain(sub))
}

func TestPublish_SlowSubscriberResyncsWithSnapshot(t *testing.T) {
	f := newFloor(t, 2)
	sub, err := f.broadcaster.Subscribe(testStore, "kds-bar")
	require.NoError(t, err)

	c := f.occupy(t, 1)
	f.order(t, c.ID, "cola")

	missed := drain(sub)
	require.Len(t, missed, 2, "snapshot plus the event that fit")
	assert.Equal(t, models.EventTableOccupied, missed[1].Type)

	f.order(t, c.ID, "burger")

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSnapshot, events[0].Type)
	snap, err := events[0].DecodeSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.Checks, 1)
	assert.Equal(t, uint64(3), snap.Checks[0].Sequence)
	assert.Len(t, snap.Checks[0].Orders, 2)

	f.order(t, c.ID, "cola")
	events = drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(4), events[0].Sequence)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	f := newFloor(t, 4)
	sub, err := f.broadcaster.Subscribe(testStore, "terminal")
	require.NoError(t, err)

	f.broadcaster.Unsubscribe(sub)
	f.broadcaster.Unsubscribe(sub)
	assert.Equal(t, 0, f.broadcaster.Subscribers(testStore))

	<-sub.Events()
	_, ok := <-sub.Events()
	assert.False(t, ok)

	f.occupy(t, 2)
}

func TestClose_RejectsNewSubscribers(t *testing.T) {
	f := newFloor(t, 4)
	sub, err := f.broadcaster.Subscribe(testStore, "terminal")
	require.NoError(t, err)

	f.broadcaster.Close()
	drain(sub)
	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err = f.broadcaster.Subscribe(testStore, "terminal")
	assert.ErrorIs(t, err, ErrClosed)
}
