package main

import (
	"sort"
	"time"

	"dining-service/internal/models"
)

// Board is what a kitchen screen shows: every ticket item still in progress
type Board struct {
	OpenChecks int
	Pending    int
	Cooking    int
	Ready      int
	Lines      []BoardLine
}

type BoardLine struct {
	Table    int
	Station  string
	Name     string
	Quantity int
	Status   models.TicketItemStatus
	Since    time.Time
}

// Summarize collects non-terminal ticket items, oldest first. An empty
// station matches all stations.
func Summarize(checks []models.Check, station string) Board {
	b := Board{OpenChecks: len(checks)}
	for _, c := range checks {
		for _, t := range c.Tickets {
			if station != "" && t.Station != station {
				continue
			}
			for _, it := range t.Items {
				switch it.Status {
				case models.TicketItemPending:
					b.Pending++
				case models.TicketItemCooking:
					b.Cooking++
				case models.TicketItemReady:
					b.Ready++
				default:
					continue
				}
				since := t.CreatedAt
				if it.StartedAt != nil {
					since = *it.StartedAt
				}
				if it.ReadyAt != nil {
					since = *it.ReadyAt
				}
				b.Lines = append(b.Lines, BoardLine{
					Table:    c.TableNumber,
					Station:  t.Station,
					Name:     it.Name,
					Quantity: it.Quantity,
					Status:   it.Status,
					Since:    since,
				})
			}
		}
	}
	sort.SliceStable(b.Lines, func(i, j int) bool {
		return b.Lines[i].Since.Before(b.Lines[j].Since)
	})
	return b
}
