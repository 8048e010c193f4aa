package service

import (
	"context"
	"sync"
	"testing"

	"dining-service/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testStore = "store-1"

type staticCatalog map[string]models.MenuItem

func (c staticCatalog) LookupMenuItems(ctx context.Context, storeID string, ids []string) (map[string]models.MenuItem, error) {
	out := make(map[string]models.MenuItem, len(ids))
	for _, id := range ids {
		if mi, ok := c[id]; ok && mi.StoreID == storeID {
			out[id] = mi
		}
	}
	return out, nil
}

func testCatalog() staticCatalog {
	return staticCatalog{
		"burger":  {ID: "burger", StoreID: testStore, Name: "Burger", Price: 1200, Station: "grill", Available: true},
		"fries":   {ID: "fries", StoreID: testStore, Name: "Fries", Price: 400, Station: "fryer", Available: true},
		"cola":    {ID: "cola", StoreID: testStore, Name: "Cola", Price: 300, Station: "bar", Available: true},
		"soup":    {ID: "soup", StoreID: testStore, Name: "Soup", Price: 700, Station: "", Available: true},
		"special": {ID: "special", StoreID: testStore, Name: "Special", Price: 2500, Station: "grill", Available: false},
	}
}

// memoryBalances redeems coupons whole, like the postgres store
type memoryBalances struct {
	mu       sync.Mutex
	points   map[string]int64
	coupons  map[string]map[string]int64
	redeemed int
}

func newMemoryBalances() *memoryBalances {
	return &memoryBalances{
		points:  map[string]int64{"cust-1": 500},
		coupons: map[string]map[string]int64{"cust-1": {"WELCOME": 300}},
	}
}

func (b *memoryBalances) Balance(ctx context.Context, storeID, customerID string) (models.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := models.Balance{Points: b.points[customerID], Coupons: map[string]int64{}}
	for code, v := range b.coupons[customerID] {
		bal.Coupons[code] = v
	}
	return bal, nil
}

func (b *memoryBalances) Redeem(ctx context.Context, storeID, customerID string, allocs []models.Allocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	points := models.AmountFor(allocs, models.InstrumentPoints)
	if points > b.points[customerID] {
		return models.ErrInsufficientBalance
	}
	for _, a := range allocs {
		if a.Instrument == models.InstrumentCoupon {
			if _, ok := b.coupons[customerID][a.Reference]; !ok {
				return models.ErrInsufficientBalance
			}
		}
	}
	b.points[customerID] -= points
	for _, a := range allocs {
		if a.Instrument == models.InstrumentCoupon {
			delete(b.coupons[customerID], a.Reference)
		}
	}
	b.redeemed++
	return nil
}

func (b *memoryBalances) Restore(ctx context.Context, storeID, customerID string, allocs []models.Allocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points[customerID] += models.AmountFor(allocs, models.InstrumentPoints)
	for _, a := range allocs {
		if a.Instrument == models.InstrumentCoupon {
			if b.coupons[customerID] == nil {
				b.coupons[customerID] = map[string]int64{}
			}
			b.coupons[customerID][a.Reference] = a.Amount
		}
	}
	return nil
}

func (b *memoryBalances) Redemptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.redeemed
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Envelope
}

func (p *recordingPublisher) Publish(env models.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
}

func (p *recordingPublisher) Types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) ForCheck(checkID string) []models.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Envelope
	for _, e := range p.events {
		if e.CheckID == checkID {
			out = append(out, e)
		}
	}
	return out
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Charge(ctx context.Context, key string, amount int64) (ChargeResult, error) {
	args := m.Called(ctx, key, amount)
	return args.Get(0).(ChargeResult), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, key string) (ChargeResult, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ChargeResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, reference string, amount int64) error {
	args := m.Called(ctx, reference, amount)
	return args.Error(0)
}

type harness struct {
	sessions  *SessionStore
	tables    *TableSessionManager
	orders    *OrderAggregator
	tickets   *TicketDispatcher
	payments  *PaymentReconciler
	gateway   *MockGateway
	ledger    *MemoryLedger
	guard     *MemoryGuard
	balances  *memoryBalances
	publisher *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		sessions:  NewSessionStore(),
		gateway:   new(MockGateway),
		ledger:    NewMemoryLedger(),
		guard:     NewMemoryGuard(),
		balances:  newMemoryBalances(),
		publisher: &recordingPublisher{},
	}
	h.sessions.AddPublisher(h.publisher)
	h.tables = NewTableSessionManager(h.sessions)
	h.tickets = NewTicketDispatcher(h.sessions)
	h.orders = NewOrderAggregator(h.sessions, testCatalog(), h.tickets)
	h.payments = NewPaymentReconciler(h.sessions, h.ledger, h.gateway, h.balances, h.guard, DefaultReconcilerConfig())
	h.tickets.SetClosureReviewer(h.payments)

	for n := 1; n <= 6; n++ {
		_, err := h.tables.Provision(context.Background(), testStore, n, 4)
		require.NoError(t, err)
	}
	return h
}

func (h *harness) occupy(t *testing.T, table int) *models.Check {
	t.Helper()
	c, err := h.tables.Occupy(context.Background(), models.TableRef{StoreID: testStore, Number: table}, "server-1", 2)
	require.NoError(t, err)
	return c
}

func (h *harness) order(t *testing.T, checkID string, items ...OrderItemInput) *SubmitOrderResult {
	t.Helper()
	res, err := h.orders.SubmitOrder(context.Background(), checkID, models.SourceTerminal, items)
	require.NoError(t, err)
	return res
}

func (h *harness) check(t *testing.T, checkID string) *models.Check {
	t.Helper()
	c, err := h.tables.GetCheck(checkID)
	require.NoError(t, err)
	return c
}

// serveAll walks every ticket item of the check to SERVED
func (h *harness) serveAll(t *testing.T, checkID string) {
	t.Helper()
	for _, ticket := range h.check(t, checkID).Tickets {
		for _, item := range ticket.Items {
			if item.Status.IsTerminal() {
				continue
			}
			if item.Status == models.TicketItemPending {
				_, err := h.tickets.Advance(context.Background(), item.ID, models.TicketItemCooking)
				require.NoError(t, err)
			}
			_, err := h.tickets.Advance(context.Background(), item.ID, models.TicketItemServed)
			require.NoError(t, err)
		}
	}
}

func cash(amount int64) []models.Allocation {
	return []models.Allocation{{Instrument: models.InstrumentCash, Amount: amount}}
}

func card(amount int64) []models.Allocation {
	return []models.Allocation{{Instrument: models.InstrumentCard, Amount: amount}}
}
