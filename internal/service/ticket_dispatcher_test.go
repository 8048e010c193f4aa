package service

import (
	"context"
	"testing"

	"dining-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_OneTicketPerStation(t *testing.T) {
	d := NewTicketDispatcher(NewSessionStore())
	check := &models.Check{ID: "check-1"}
	order := &models.Order{
		ID: "order-1",
		Items: []models.OrderItem{
			{ID: "a", Name: "Cola", Station: "bar", Quantity: 1},
			{ID: "b", Name: "Steak", Station: "grill", Quantity: 1},
			{ID: "c", Name: "Beer", Station: "bar", Quantity: 2},
			{ID: "d", Name: "Bread", Quantity: 1},
		},
	}

	tickets := d.Dispatch(check, order)

	require.Len(t, tickets, 3)
	assert.Equal(t, []string{"bar", "grill", models.DefaultStation}, []string{tickets[0].Station, tickets[1].Station, tickets[2].Station})
	require.Len(t, tickets[0].Items, 2)
	assert.Equal(t, "a", tickets[0].Items[0].OrderItemID)
	assert.Equal(t, "c", tickets[0].Items[1].OrderItemID)
	assert.Equal(t, 2, tickets[0].Items[1].Quantity)

	for _, ticket := range tickets {
		assert.Equal(t, "check-1", ticket.CheckID)
		assert.Equal(t, "order-1", ticket.OrderID)
		assert.Nil(t, ticket.CompletedAt)
		for _, item := range ticket.Items {
			assert.Equal(t, models.TicketItemPending, item.Status)
			assert.Equal(t, ticket.ID, item.TicketID)
		}
	}
	for _, item := range order.Items {
		assert.NotEmpty(t, item.TicketItemID)
	}
}

func TestAdvance_TransitionTable(t *testing.T) {
	tests := []struct {
		name string
		path []models.TicketItemStatus
		ok   bool
	}{
		{name: "full path", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemReady, models.TicketItemServed}, ok: true},
		{name: "skip ready", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemServed}, ok: true},
		{name: "cancel pending", path: []models.TicketItemStatus{models.TicketItemCancelled}, ok: true},
		{name: "cancel cooking", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemCancelled}, ok: true},
		{name: "skip cooking", path: []models.TicketItemStatus{models.TicketItemReady}},
		{name: "pending to served", path: []models.TicketItemStatus{models.TicketItemServed}},
		{name: "cancel ready", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemReady, models.TicketItemCancelled}},
		{name: "back to cooking", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemReady, models.TicketItemCooking}},
		{name: "served is terminal", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemServed, models.TicketItemServed}},
		{name: "repeat cooking", path: []models.TicketItemStatus{models.TicketItemCooking, models.TicketItemCooking}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.occupy(t, 1)
			h.order(t, c.ID, OrderItemInput{MenuItemID: "burger", Quantity: 1}, OrderItemInput{MenuItemID: "cola", Quantity: 1})
			id := h.check(t, c.ID).Tickets[0].Items[0].ID

			var err error
			for i, target := range tt.path {
				before := h.check(t, c.ID)
				_, err = h.tickets.Advance(context.Background(), id, target)
				if i < len(tt.path)-1 {
					require.NoError(t, err)
					continue
				}
				if tt.ok {
					require.NoError(t, err)
					_, ti := h.check(t, c.ID).FindTicketItem(id)
					assert.Equal(t, target, ti.Status)
					return
				}
				var ite *InvalidTransitionError
				require.ErrorAs(t, err, &ite)
				assert.ErrorIs(t, err, ErrConflict)
				assert.Equal(t, target, ite.To)

				after := h.check(t, c.ID)
				assert.Equal(t, before.Sequence, after.Sequence, "state must be unchanged")
				_, b := before.FindTicketItem(id)
				_, a := after.FindTicketItem(id)
				assert.Equal(t, b.Status, a.Status)
			}
		})
	}
}

func TestAdvance_Timestamps(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID, OrderItemInput{MenuItemID: "burger", Quantity: 1})
	id := h.check(t, c.ID).Tickets[0].Items[0].ID

	ti, err := h.tickets.Advance(context.Background(), id, models.TicketItemCooking)
	require.NoError(t, err)
	require.NotNil(t, ti.StartedAt)
	assert.Nil(t, ti.ReadyAt)

	ti, err = h.tickets.Advance(context.Background(), id, models.TicketItemReady)
	require.NoError(t, err)
	require.NotNil(t, ti.ReadyAt)

	ti, err = h.tickets.Advance(context.Background(), id, models.TicketItemServed)
	require.NoError(t, err)
	require.NotNil(t, ti.ServedAt)
	assert.False(t, ti.ServedAt.Before(*ti.StartedAt))
}

func TestAdvance_UnknownItem(t *testing.T) {
	h := newHarness(t)

	_, err := h.tickets.Advance(context.Background(), "missing", models.TicketItemCooking)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvance_TicketCompletion(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID,
		OrderItemInput{MenuItemID: "burger", Quantity: 1},
		OrderItemInput{MenuItemID: "burger", Quantity: 1},
		OrderItemInput{MenuItemID: "cola", Quantity: 1},
	)
	check := h.check(t, c.ID)
	grill := check.Tickets[0]
	require.Len(t, grill.Items, 2)

	_, err := h.tickets.Advance(context.Background(), grill.Items[0].ID, models.TicketItemCooking)
	require.NoError(t, err)
	_, err = h.tickets.Advance(context.Background(), grill.Items[0].ID, models.TicketItemServed)
	require.NoError(t, err)
	assert.Nil(t, h.check(t, c.ID).Tickets[0].CompletedAt)

	_, err = h.tickets.Advance(context.Background(), grill.Items[1].ID, models.TicketItemCancelled)
	require.NoError(t, err)

	check = h.check(t, c.ID)
	assert.NotNil(t, check.Tickets[0].CompletedAt)
	assert.Nil(t, check.Tickets[1].CompletedAt)
	assert.False(t, check.TicketsComplete())

	envs := h.publisher.ForCheck(c.ID)
	last := envs[len(envs)-1]
	assert.Equal(t, models.EventItemStatusChange, last.Type)
	payload, err := last.DecodePayload()
	require.NoError(t, err)
	assert.True(t, payload.TicketComplete)
	assert.Equal(t, models.TicketItemPending, payload.PreviousStatus)
	assert.Equal(t, models.TicketItemCancelled, payload.TicketItem.Status)
	assert.Equal(t, int64(1200+300), payload.Check.Total)
}

func TestAdvance_AllTicketsCompleteClosesPaidCheck(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 1)
	h.order(t, c.ID, OrderItemInput{MenuItemID: "fries", Quantity: 1})

	_, err := h.payments.Confirm(context.Background(), ConfirmRequest{
		CheckID: c.ID, IdempotencyKey: "k-early", Amount: 400, Allocations: cash(400),
	})
	require.NoError(t, err)
	assert.Equal(t, models.CheckClosing, h.check(t, c.ID).Status)

	h.serveAll(t, c.ID)

	check := h.check(t, c.ID)
	assert.Equal(t, models.CheckClosed, check.Status)
	assert.NotNil(t, check.ClosedAt)

	types := h.publisher.Types()
	assert.Equal(t, models.EventCheckClosed, types[len(types)-1])
}
