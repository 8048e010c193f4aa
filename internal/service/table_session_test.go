package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"dining-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupy_OpensCheck(t *testing.T) {
	h := newHarness(t)

	c := h.occupy(t, 3)

	assert.Equal(t, models.CheckOpen, c.Status)
	assert.Equal(t, 3, c.TableNumber)
	assert.Equal(t, uint64(1), c.Sequence)

	active, err := h.tables.GetActiveCheck(models.TableRef{StoreID: testStore, Number: 3})
	require.NoError(t, err)
	assert.Equal(t, c.ID, active.ID)

	assert.Equal(t, []models.EventType{models.EventTableOccupied}, h.publisher.Types())
}

func TestOccupy_ConcurrentExactlyOneSucceeds(t *testing.T) {
	h := newHarness(t)
	ref := models.TableRef{StoreID: testStore, Number: 1}

	const attempts = 32
	var wg sync.WaitGroup
	var succeeded, conflicts int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.tables.Occupy(context.Background(), ref, fmt.Sprintf("server-%d", i), 2)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(attempts-1), conflicts)

	snap := h.sessions.Snapshot(testStore)
	assert.Len(t, snap.Checks, 1)
}

func TestOccupy_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		ref     models.TableRef
		by      string
		party   int
		wantErr error
	}{
		{name: "missing opener", ref: models.TableRef{StoreID: testStore, Number: 1}, party: 2, wantErr: ErrValidation},
		{name: "party over capacity", ref: models.TableRef{StoreID: testStore, Number: 1}, by: "s", party: 9, wantErr: ErrValidation},
		{name: "unknown table", ref: models.TableRef{StoreID: testStore, Number: 99}, by: "s", party: 2, wantErr: ErrNotFound},
		{name: "unknown store", ref: models.TableRef{StoreID: "other", Number: 1}, by: "s", party: 2, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.tables.Occupy(context.Background(), tt.ref, tt.by, tt.party)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOccupy_ReservedTable(t *testing.T) {
	h := newHarness(t)
	ref := models.TableRef{StoreID: testStore, Number: 2}

	require.NoError(t, h.tables.MarkReserved(context.Background(), ref))
	assert.ErrorIs(t, h.tables.MarkReserved(context.Background(), ref), ErrConflict)

	c, err := h.tables.Occupy(context.Background(), ref, "host", 4)
	require.NoError(t, err)
	assert.Equal(t, models.CheckOpen, c.Status)

	assert.ErrorIs(t, h.tables.ClearReservation(context.Background(), ref), ErrConflict)
}

func TestRelease_Preconditions(t *testing.T) {
	h := newHarness(t)
	ref := models.TableRef{StoreID: testStore, Number: 4}

	err := h.tables.Release(context.Background(), ref)
	assert.ErrorIs(t, err, ErrPrecondition, "no open check")

	c := h.occupy(t, 4)
	h.order(t, c.ID, OrderItemInput{MenuItemID: "cola", Quantity: 2})

	err = h.tables.Release(context.Background(), ref)
	assert.ErrorIs(t, err, ErrPrecondition, "amount due")

	_, err = h.payments.Confirm(context.Background(), ConfirmRequest{
		CheckID: c.ID, IdempotencyKey: "k-release", Amount: 600, Allocations: cash(600),
	})
	require.NoError(t, err)
	assert.Equal(t, models.CheckClosing, h.check(t, c.ID).Status)

	err = h.tables.Release(context.Background(), ref)
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre, "items still in the kitchen")

	h.serveAll(t, c.ID)
	assert.Equal(t, models.CheckClosed, h.check(t, c.ID).Status)

	require.NoError(t, h.tables.Release(context.Background(), ref))

	_, err = h.tables.GetActiveCheck(ref)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.tables.GetCheck(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	tables := h.sessions.Tables(testStore)
	assert.Equal(t, models.TableAvailable, tables[3].State)

	types := h.publisher.Types()
	assert.Equal(t, models.EventTableReleased, types[len(types)-1])
}

func TestRelease_EmptyCheckClosesOnRelease(t *testing.T) {
	h := newHarness(t)
	ref := models.TableRef{StoreID: testStore, Number: 5}
	c := h.occupy(t, 5)

	require.NoError(t, h.tables.Release(context.Background(), ref))

	envs := h.publisher.ForCheck(c.ID)
	require.Len(t, envs, 3)
	assert.Equal(t, models.EventCheckClosed, envs[1].Type)
	assert.Equal(t, models.EventTableReleased, envs[2].Type)
	for i, env := range envs {
		assert.Equal(t, uint64(i+1), env.Sequence)
	}

	again := h.occupy(t, 5)
	assert.NotEqual(t, c.ID, again.ID)
}

func TestProvision_UpdatesCapacity(t *testing.T) {
	h := newHarness(t)

	table, err := h.tables.Provision(context.Background(), testStore, 1, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, table.Capacity)

	_, err = h.tables.Provision(context.Background(), testStore, 0, 2)
	assert.ErrorIs(t, err, ErrValidation)
}
