package main

import (
	"testing"
	"time"

	"dining-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	started := base.Add(2 * time.Minute)

	checks := []models.Check{
		{
			TableNumber: 3,
			Tickets: []models.Ticket{
				{
					Station:   "grill",
					CreatedAt: base.Add(time.Minute),
					Items: []models.TicketItem{
						{Name: "Burger", Quantity: 2, Status: models.TicketItemCooking, StartedAt: &started},
						{Name: "Steak", Quantity: 1, Status: models.TicketItemServed},
					},
				},
				{
					Station:   "bar",
					CreatedAt: base,
					Items: []models.TicketItem{
						{Name: "Lemonade", Quantity: 1, Status: models.TicketItemPending},
						{Name: "Beer", Quantity: 1, Status: models.TicketItemCancelled},
					},
				},
			},
		},
		{TableNumber: 7},
	}

	board := Summarize(checks, "")
	assert.Equal(t, 2, board.OpenChecks)
	assert.Equal(t, 1, board.Pending)
	assert.Equal(t, 1, board.Cooking)
	assert.Zero(t, board.Ready)
	require.Len(t, board.Lines, 2)
	assert.Equal(t, "Lemonade", board.Lines[0].Name, "oldest first")
	assert.Equal(t, started, board.Lines[1].Since)

	grill := Summarize(checks, "grill")
	require.Len(t, grill.Lines, 1)
	assert.Equal(t, "Burger", grill.Lines[0].Name)
	assert.Zero(t, grill.Pending)
}
