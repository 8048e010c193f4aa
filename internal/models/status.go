package models

import "fmt"

// TicketItemStatus is the kitchen preparation state of a ticket item
type TicketItemStatus string

const (
	TicketItemPending   TicketItemStatus = "PENDING"
	TicketItemCooking   TicketItemStatus = "COOKING"
	TicketItemReady     TicketItemStatus = "READY"
	TicketItemServed    TicketItemStatus = "SERVED"
	TicketItemCancelled TicketItemStatus = "CANCELLED"
)

// ticketItemTransitions is the only place the kitchen transition table lives.
// COOKING may skip READY; PENDING may not skip COOKING.
var ticketItemTransitions = map[TicketItemStatus][]TicketItemStatus{
	TicketItemPending:   {TicketItemCooking, TicketItemCancelled},
	TicketItemCooking:   {TicketItemReady, TicketItemServed, TicketItemCancelled},
	TicketItemReady:     {TicketItemServed},
	TicketItemServed:    nil,
	TicketItemCancelled: nil,
}

// ParseTicketItemStatus converts a wire value into a status
func ParseTicketItemStatus(s string) (TicketItemStatus, error) {
	status := TicketItemStatus(s)
	if _, ok := ticketItemTransitions[status]; !ok {
		return "", fmt.Errorf("unknown ticket item status %q", s)
	}
	return status, nil
}

// CanTransitionTo reports whether moving to next is allowed
func (s TicketItemStatus) CanTransitionTo(next TicketItemStatus) bool {
	for _, allowed := range ticketItemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s TicketItemStatus) IsTerminal() bool {
	return s == TicketItemServed || s == TicketItemCancelled
}

// Cancellable reports whether the item may still be cancelled
func (s TicketItemStatus) Cancellable() bool {
	return s.CanTransitionTo(TicketItemCancelled)
}
