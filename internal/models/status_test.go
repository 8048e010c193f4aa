package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketItemTransitions(t *testing.T) {
	all := []TicketItemStatus{TicketItemPending, TicketItemCooking, TicketItemReady, TicketItemServed, TicketItemCancelled}
	allowed := map[TicketItemStatus]map[TicketItemStatus]bool{
		TicketItemPending: {TicketItemCooking: true, TicketItemCancelled: true},
		TicketItemCooking: {TicketItemReady: true, TicketItemServed: true, TicketItemCancelled: true},
		TicketItemReady:   {TicketItemServed: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, TicketItemServed.IsTerminal())
	assert.True(t, TicketItemCancelled.IsTerminal())
	assert.False(t, TicketItemReady.IsTerminal())
	assert.False(t, TicketItemReady.Cancellable())
	assert.True(t, TicketItemCooking.Cancellable())
}

func TestParseTicketItemStatus(t *testing.T) {
	s, err := ParseTicketItemStatus("READY")
	require.NoError(t, err)
	assert.Equal(t, TicketItemReady, s)

	_, err = ParseTicketItemStatus("completed")
	assert.Error(t, err)
}

func TestCheckTotals(t *testing.T) {
	c := &Check{
		Orders: []Order{{Items: []OrderItem{
			{UnitPrice: 500, Quantity: 2},
			{UnitPrice: 300, Quantity: 1, Cancelled: true},
			{UnitPrice: 250, Quantity: 4},
		}}},
		Paid: 600,
	}

	assert.Equal(t, int64(2000), c.RecomputeTotal())
	assert.Equal(t, int64(1400), c.Due())
	assert.Equal(t, PaymentPartial, c.PaymentStatus())
	assert.False(t, c.TicketsComplete())
}

func TestCheckCloneIsDeep(t *testing.T) {
	c := &Check{
		Orders:   []Order{{Items: []OrderItem{{ID: "a", Options: []OptionSelection{{Group: "size", Choice: "L"}}}}}},
		Tickets:  []Ticket{{Items: []TicketItem{{ID: "t", Status: TicketItemPending}}}},
		Payments: []Payment{{ID: "p", Allocations: []Allocation{{Instrument: InstrumentCash, Amount: 1}}}},
	}

	clone := c.Clone()
	clone.Orders[0].Items[0].Options[0].Choice = "S"
	clone.Tickets[0].Items[0].Status = TicketItemCooking
	clone.Payments[0].Allocations[0].Amount = 99

	assert.Equal(t, "L", c.Orders[0].Items[0].Options[0].Choice)
	assert.Equal(t, TicketItemPending, c.Tickets[0].Items[0].Status)
	assert.Equal(t, int64(1), c.Payments[0].Allocations[0].Amount)
}
