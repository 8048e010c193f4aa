package service

import (
	"context"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// closureReviewer decides whether a check can move to CLOSING or CLOSED.
// Called with the check lock held.
type closureReviewer interface {
	reviewClosure(c *models.Check) []pendingEvent
}

// TicketDispatcher splits orders into station tickets and drives ticket item status
type TicketDispatcher struct {
	sessions *SessionStore
	reviewer closureReviewer
	logger   *zap.Logger
}

// NewTicketDispatcher creates a new ticket dispatcher
func NewTicketDispatcher(sessions *SessionStore) *TicketDispatcher {
	return &TicketDispatcher{
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

// SetClosureReviewer wires the payment reconciler after construction
func (d *TicketDispatcher) SetClosureReviewer(r *PaymentReconciler) {
	d.reviewer = r
}

// Dispatch groups the order's items by station and returns one ticket per
// station, in order of first appearance, with every item PENDING. It sets
// TicketItemID on each order item.
func (d *TicketDispatcher) Dispatch(c *models.Check, order *models.Order) []models.Ticket {
	now := time.Now().UTC()
	byStation := make(map[string]int)
	var tickets []models.Ticket

	for i := range order.Items {
		item := &order.Items[i]
		if item.Station == "" {
			item.Station = models.DefaultStation
		}
		idx, ok := byStation[item.Station]
		if !ok {
			tickets = append(tickets, models.Ticket{
				ID:        uuid.New().String(),
				CheckID:   c.ID,
				OrderID:   order.ID,
				Station:   item.Station,
				Items:     []models.TicketItem{},
				CreatedAt: now,
			})
			idx = len(tickets) - 1
			byStation[item.Station] = idx
		}

		ti := models.TicketItem{
			ID:          uuid.New().String(),
			TicketID:    tickets[idx].ID,
			OrderItemID: item.ID,
			MenuItemID:  item.MenuItemID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			Status:      models.TicketItemPending,
			UpdatedAt:   now,
		}
		item.TicketItemID = ti.ID
		tickets[idx].Items = append(tickets[idx].Items, ti)
	}

	for _, t := range tickets {
		util.TicketsCreatedTotal.WithLabelValues(t.Station).Inc()
	}
	return tickets
}

// Advance moves a ticket item to target. Transitions outside the kitchen
// transition table fail with an InvalidTransitionError and change nothing.
func (d *TicketDispatcher) Advance(ctx context.Context, ticketItemID string, target models.TicketItemStatus) (item *models.TicketItem, err error) {
	ctx, span := util.StartSpan(ctx, "TicketDispatcher.Advance",
		attribute.String("ticket_item_id", ticketItemID),
		attribute.String("target", string(target)))
	defer func() { util.EndSpan(span, err) }()

	e, err := d.sessions.checkForTicketItem(ticketItemID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.archived {
		return nil, &NotFoundError{Kind: "ticket item", ID: ticketItemID}
	}

	events, ti, err := d.transitionLocked(e.check, ticketItemID, target, "")
	if err != nil {
		return nil, err
	}
	d.sessions.commit(ctx, e, events...)
	return ti, nil
}

// transitionLocked applies one ticket item transition. Caller holds the check lock.
func (d *TicketDispatcher) transitionLocked(c *models.Check, ticketItemID string, target models.TicketItemStatus, reason string) ([]pendingEvent, *models.TicketItem, error) {
	ticket, ti := c.FindTicketItem(ticketItemID)
	if ti == nil {
		return nil, nil, &NotFoundError{Kind: "ticket item", ID: ticketItemID}
	}

	from := ti.Status
	if !from.CanTransitionTo(target) {
		util.InvalidTransitionsTotal.WithLabelValues(string(from), string(target)).Inc()
		return nil, nil, &InvalidTransitionError{TicketItemID: ticketItemID, From: from, To: target}
	}

	if target == models.TicketItemCancelled {
		if c.Status != models.CheckOpen {
			return nil, nil, precondition("check %s is %s, items can no longer be cancelled", c.ID, c.Status)
		}
		orderItem := c.FindOrderItem(ti.OrderItemID)
		if orderItem == nil {
			return nil, nil, &NotFoundError{Kind: "order item", ID: ti.OrderItemID}
		}
		if remaining := c.Total - orderItem.LineTotal(); c.Paid > remaining {
			return nil, nil, precondition("cancelling leaves check %s overpaid by %d, refund first", c.ID, c.Paid-remaining)
		}
		orderItem.Cancelled = true
		c.RecomputeTotal()
		ti.CancelReason = reason
		util.OrderItemsCancelledTotal.Inc()
	}

	now := time.Now().UTC()
	ti.Status = target
	ti.UpdatedAt = now
	switch target {
	case models.TicketItemCooking:
		ti.StartedAt = &now
	case models.TicketItemReady:
		ti.ReadyAt = &now
	case models.TicketItemServed:
		ti.ServedAt = &now
	case models.TicketItemCancelled:
		ti.CancelledAt = &now
	}
	if from == models.TicketItemCooking && ti.StartedAt != nil &&
		(target == models.TicketItemReady || target == models.TicketItemServed) {
		util.TicketItemCookSeconds.Observe(now.Sub(*ti.StartedAt).Seconds())
	}
	util.TicketTransitionsTotal.WithLabelValues(string(target)).Inc()

	ticketComplete := false
	if ticket.CompletedAt == nil && ticket.AllTerminal() {
		ticket.CompletedAt = &now
		ticketComplete = true
	}

	updated := *ti
	events := []pendingEvent{{
		typ: models.EventItemStatusChange,
		payload: models.EventPayload{
			TableNumber:    c.TableNumber,
			TicketItem:     &updated,
			PreviousStatus: from,
			TicketComplete: ticketComplete,
			Reason:         reason,
		},
	}}

	if d.reviewer != nil && (target == models.TicketItemCancelled || c.TicketsComplete()) {
		events = append(events, d.reviewer.reviewClosure(c)...)
	}

	d.logger.Debug("Ticket item advanced",
		zap.String("check_id", c.ID),
		zap.String("ticket_item_id", ticketItemID),
		zap.String("from", string(from)),
		zap.String("to", string(target)))

	return events, &updated, nil
}
