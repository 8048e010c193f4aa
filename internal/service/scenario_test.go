package service

import (
	"context"
	"sync"
	"testing"

	"dining-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScenario_TableFiveFullLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := models.TableRef{StoreID: testStore, Number: 5}

	check, err := h.tables.Occupy(ctx, ref, "server-7", 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.orders.SubmitOrder(ctx, check.ID, models.SourceTerminal, []OrderItemInput{{MenuItemID: "burger", Quantity: 2}})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := h.orders.SubmitOrder(ctx, check.ID, models.SourceQR, []OrderItemInput{{MenuItemID: "cola", Quantity: 1}})
		assert.NoError(t, err)
	}()
	wg.Wait()

	merged := h.check(t, check.ID)
	assert.Len(t, merged.Orders, 2)
	assert.Equal(t, int64(2*1200+300), merged.Total)
	require.Len(t, merged.Tickets, 2)
	stations := map[string]bool{merged.Tickets[0].Station: true, merged.Tickets[1].Station: true}
	assert.Equal(t, map[string]bool{"grill": true, "bar": true}, stations)

	h.serveAll(t, check.ID)
	served := h.check(t, check.ID)
	assert.True(t, served.TicketsComplete())
	assert.Equal(t, models.CheckOpen, served.Status, "nothing paid yet")

	h.gateway.On("Charge", mock.Anything, "table5-pay", int64(2700)).
		Return(ChargeResult{Status: GatewaySucceeded, Reference: "ch_t5"}, nil).
		Once()

	req := ConfirmRequest{CheckID: check.ID, IdempotencyKey: "table5-pay", Amount: 2700, Allocations: card(2700)}
	payment, err := h.payments.Confirm(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, payment.Status)
	assert.Equal(t, models.CheckClosed, h.check(t, check.ID).Status)

	require.NoError(t, h.tables.Release(ctx, ref))
	assert.Equal(t, models.TableAvailable, h.sessions.Tables(testStore)[4].State)

	replayed, err := h.payments.Confirm(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, payment.PaymentID, replayed.PaymentID)
	h.gateway.AssertNumberOfCalls(t, "Charge", 1)

	envs := h.publisher.ForCheck(check.ID)
	for i, env := range envs {
		assert.Equal(t, uint64(i+1), env.Sequence, "events are gap-free and ordered per check")
	}
	assert.Equal(t, models.EventTableOccupied, envs[0].Type)
	assert.Equal(t, models.EventTableReleased, envs[len(envs)-1].Type)
}

func TestScenario_RestoreResumesSequences(t *testing.T) {
	h := newHarness(t)
	c := h.occupy(t, 2)
	h.order(t, c.ID, OrderItemInput{MenuItemID: "fries", Quantity: 1})

	snap := h.sessions.Snapshot(testStore)

	restored := NewSessionStore()
	n := restored.Restore(snap.Tables, snap.Checks)
	assert.Equal(t, 1, n)

	pub := &recordingPublisher{}
	restored.AddPublisher(pub)
	tickets := NewTicketDispatcher(restored)

	item := snap.Checks[0].Tickets[0].Items[0]
	_, err := tickets.Advance(context.Background(), item.ID, models.TicketItemCooking)
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, uint64(3), pub.events[0].Sequence)
}
