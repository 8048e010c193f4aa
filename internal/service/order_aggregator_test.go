package service

import (
	"context"
	"sync"
	"testing"

	"dining-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitOrder_Validation(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)

	tests := []struct {
		name   string
		source models.OrderSource
		items  []OrderItemInput
		field  string
	}{
		{name: "unknown source", source: "FAX", items: []OrderItemInput{{MenuItemID: "cola", Quantity: 1}}, field: "source"},
		{name: "no items", source: models.SourceQR, field: "items"},
		{name: "zero quantity", source: models.SourceQR, items: []OrderItemInput{{MenuItemID: "cola", Quantity: 0}}, field: "items[0].quantity"},
		{name: "negative quantity", source: models.SourceQR, items: []OrderItemInput{{MenuItemID: "cola", Quantity: 1}, {MenuItemID: "fries", Quantity: -1}}, field: "items[1].quantity"},
		{name: "missing menu item", source: models.SourcePhone, items: []OrderItemInput{{Quantity: 1}}, field: "items[0].menu_item_id"},
		{name: "unknown menu item", source: models.SourceTerminal, items: []OrderItemInput{{MenuItemID: "pizza", Quantity: 1}}, field: "items[0].menu_item_id"},
		{name: "unavailable menu item", source: models.SourceWalkIn, items: []OrderItemInput{{MenuItemID: "special", Quantity: 1}}, field: "items[0].menu_item_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orders.SubmitOrder(context.Background(), c.ID, tt.source, tt.items)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Equal(t, int64(0), h.check(t, c.ID).Total)
	assert.Empty(t, h.check(t, c.ID).Orders)
}

func TestSubmitOrder_UnknownCheck(t *testing.T) {
	h := newHarness(t)

	_, err := h.orders.SubmitOrder(context.Background(), "missing", models.SourceQR, []OrderItemInput{{MenuItemID: "cola", Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitOrder_MergesAndDispatches(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 2)

	res := h.order(t, c.ID,
		OrderItemInput{MenuItemID: "burger", Quantity: 2, Options: []models.OptionSelection{{Group: "doneness", Choice: "medium"}}},
		OrderItemInput{MenuItemID: "fries", Quantity: 1},
		OrderItemInput{MenuItemID: "burger", Quantity: 1, Notes: "no onion"},
		OrderItemInput{MenuItemID: "soup", Quantity: 1},
	)

	assert.Equal(t, int64(3*1200+400+700), res.NewTotal)
	assert.Equal(t, res.NewTotal, res.Due)

	check := h.check(t, c.ID)
	require.Len(t, check.Orders, 1)
	require.Len(t, check.Tickets, 3)

	assert.Equal(t, "grill", check.Tickets[0].Station)
	assert.Len(t, check.Tickets[0].Items, 2)
	assert.Equal(t, "fryer", check.Tickets[1].Station)
	assert.Equal(t, models.DefaultStation, check.Tickets[2].Station)

	for _, item := range check.Orders[0].Items {
		assert.NotEmpty(t, item.TicketItemID)
		ticket, ti := check.FindTicketItem(item.TicketItemID)
		require.NotNil(t, ti)
		assert.Equal(t, item.ID, ti.OrderItemID)
		assert.Equal(t, models.TicketItemPending, ti.Status)
		assert.Equal(t, check.ID, ticket.CheckID)
	}

	envs := h.publisher.ForCheck(c.ID)
	require.Len(t, envs, 2)
	assert.Equal(t, models.EventNewOrder, envs[1].Type)
	payload, err := envs[1].DecodePayload()
	require.NoError(t, err)
	require.NotNil(t, payload.Order)
	assert.Equal(t, res.OrderID, payload.Order.ID)
	assert.Equal(t, res.NewTotal, payload.Check.Total)
}

func TestSubmitOrder_ConcurrentSourcesMerge(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 3)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		source := models.SourceTerminal
		if i%2 == 0 {
			source = models.SourceQR
		}
		go func(source models.OrderSource) {
			defer wg.Done()
			_, err := h.orders.SubmitOrder(context.Background(), c.ID, source, []OrderItemInput{
				{MenuItemID: "cola", Quantity: 1},
				{MenuItemID: "fries", Quantity: 2},
			})
			assert.NoError(t, err)
		}(source)
	}
	wg.Wait()

	check := h.check(t, c.ID)
	assert.Len(t, check.Orders, writers)
	assert.Equal(t, int64(writers*(300+2*400)), check.Total)
	assert.Equal(t, uint64(writers+1), check.Sequence)

	seen := make(map[uint64]bool)
	for _, env := range h.publisher.ForCheck(c.ID) {
		assert.False(t, seen[env.Sequence], "duplicate sequence %d", env.Sequence)
		seen[env.Sequence] = true
	}
}

func TestSubmitOrder_RejectedWhenNotOpen(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID, OrderItemInput{MenuItemID: "cola", Quantity: 1})

	_, err := h.payments.Confirm(context.Background(), ConfirmRequest{
		CheckID: c.ID, IdempotencyKey: "k-closing", Amount: 300, Allocations: cash(300),
	})
	require.NoError(t, err)
	require.Equal(t, models.CheckClosing, h.check(t, c.ID).Status)

	_, err = h.orders.SubmitOrder(context.Background(), c.ID, models.SourceQR, []OrderItemInput{{MenuItemID: "cola", Quantity: 1}})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestCancelOrderItem(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID,
		OrderItemInput{MenuItemID: "burger", Quantity: 1},
		OrderItemInput{MenuItemID: "cola", Quantity: 2},
	)
	check := h.check(t, c.ID)
	burger := check.Orders[0].Items[0]
	cola := check.Orders[0].Items[1]

	res, err := h.orders.CancelOrderItem(context.Background(), c.ID, cola.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), res.NewTotal)
	assert.Equal(t, cola.TicketItemID, res.TicketItemID)

	check = h.check(t, c.ID)
	_, ti := check.FindTicketItem(cola.TicketItemID)
	assert.Equal(t, models.TicketItemCancelled, ti.Status)
	assert.Equal(t, "changed mind", ti.CancelReason)
	assert.True(t, check.FindOrderItem(cola.ID).Cancelled)

	_, err = h.orders.CancelOrderItem(context.Background(), c.ID, cola.ID, "again")
	assert.ErrorIs(t, err, ErrConflict, "cancelled is terminal")

	_, err = h.tickets.Advance(context.Background(), burger.TicketItemID, models.TicketItemCooking)
	require.NoError(t, err)
	_, err = h.tickets.Advance(context.Background(), burger.TicketItemID, models.TicketItemReady)
	require.NoError(t, err)

	_, err = h.orders.CancelOrderItem(context.Background(), c.ID, burger.ID, "too late")
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, models.TicketItemReady, ite.From)
	assert.Equal(t, int64(1200), h.check(t, c.ID).Total)

	_, err = h.orders.CancelOrderItem(context.Background(), c.ID, "nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.orders.CancelOrderItem(context.Background(), c.ID, burger.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCancelOrderItem_RefusesOverpayment(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID,
		OrderItemInput{MenuItemID: "burger", Quantity: 1},
		OrderItemInput{MenuItemID: "cola", Quantity: 1},
	)
	_, err := h.payments.Confirm(context.Background(), ConfirmRequest{
		CheckID: c.ID, IdempotencyKey: "k-partial", Amount: 1300, Allocations: cash(1300),
	})
	require.NoError(t, err)

	burger := h.check(t, c.ID).Orders[0].Items[0]
	_, err = h.orders.CancelOrderItem(context.Background(), c.ID, burger.ID, "wrong table")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, int64(1500), h.check(t, c.ID).Total)
}

func TestCancelOrderItem_ClosingCheckNeedsRefund(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID,
		OrderItemInput{MenuItemID: "burger", Quantity: 1},
		OrderItemInput{MenuItemID: "cola", Quantity: 1},
	)
	paid, err := h.payments.Confirm(context.Background(), ConfirmRequest{
		CheckID: c.ID, IdempotencyKey: "k-full", Amount: 1500, Allocations: cash(1500),
	})
	require.NoError(t, err)
	require.Equal(t, models.CheckClosing, h.check(t, c.ID).Status)

	cola := h.check(t, c.ID).Orders[0].Items[1]
	_, err = h.orders.CancelOrderItem(context.Background(), c.ID, cola.ID, "not wanted")
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = h.payments.Refund(context.Background(), paid.PaymentID, "reorder")
	require.NoError(t, err)
	require.Equal(t, models.CheckOpen, h.check(t, c.ID).Status)

	res, err := h.orders.CancelOrderItem(context.Background(), c.ID, cola.ID, "not wanted")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), res.NewTotal)
}
