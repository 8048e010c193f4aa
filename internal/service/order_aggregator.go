package service

import (
	"context"
	"fmt"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderAggregator merges orders from every source into a table's single open check
type OrderAggregator struct {
	sessions   *SessionStore
	catalog    MenuCatalog
	dispatcher *TicketDispatcher
	logger     *zap.Logger
}

// NewOrderAggregator creates a new order aggregator
func NewOrderAggregator(sessions *SessionStore, catalog MenuCatalog, dispatcher *TicketDispatcher) *OrderAggregator {
	return &OrderAggregator{
		sessions:   sessions,
		catalog:    catalog,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// OrderItemInput is one requested line of an order
type OrderItemInput struct {
	MenuItemID string                   `json:"menu_item_id"`
	Quantity   int                      `json:"quantity"`
	Options    []models.OptionSelection `json:"options,omitempty"`
	Notes      string                   `json:"notes,omitempty"`
}

// SubmitOrderResult is returned after an order is merged
type SubmitOrderResult struct {
	CheckID  string `json:"check_id"`
	OrderID  string `json:"order_id"`
	NewTotal int64  `json:"new_total"`
	Due      int64  `json:"due"`
}

// CancelItemResult is returned after an order item is cancelled
type CancelItemResult struct {
	CheckID      string `json:"check_id"`
	OrderItemID  string `json:"order_item_id"`
	TicketItemID string `json:"ticket_item_id"`
	NewTotal     int64  `json:"new_total"`
	Due          int64  `json:"due"`
}

// SubmitOrder validates items against the catalog, appends the order to the
// check, dispatches its tickets and returns the new total.
func (a *OrderAggregator) SubmitOrder(ctx context.Context, checkID string, source models.OrderSource, items []OrderItemInput) (result *SubmitOrderResult, err error) {
	ctx, span := util.StartSpan(ctx, "OrderAggregator.SubmitOrder",
		attribute.String("check_id", checkID),
		attribute.String("source", string(source)),
		attribute.Int("items", len(items)))
	defer func() { util.EndSpan(span, err) }()

	if err := validateOrderItems(source, items); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	e, err := a.sessions.check(checkID)
	if err != nil {
		return nil, err
	}
	storeID := e.view.Load().StoreID

	menu, err := a.lookupMenu(ctx, storeID, items)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.check
	if e.archived || c.Status != models.CheckOpen {
		util.OrdersRejectedTotal.WithLabelValues("check_not_open").Inc()
		return nil, precondition("check %s is %s, orders are no longer accepted", c.ID, c.Status)
	}

	order := models.Order{
		ID:          uuid.New().String(),
		CheckID:     c.ID,
		Source:      source,
		Items:       make([]models.OrderItem, 0, len(items)),
		SubmittedAt: time.Now().UTC(),
	}
	for _, in := range items {
		mi := menu[in.MenuItemID]
		order.Items = append(order.Items, models.OrderItem{
			ID:         uuid.New().String(),
			OrderID:    order.ID,
			MenuItemID: in.MenuItemID,
			Name:       mi.Name,
			Station:    mi.Station,
			Quantity:   in.Quantity,
			UnitPrice:  mi.Price,
			Options:    in.Options,
			Notes:      in.Notes,
		})
	}

	tickets := a.dispatcher.Dispatch(c, &order)
	c.Orders = append(c.Orders, order)
	c.Tickets = append(c.Tickets, tickets...)
	a.sessions.indexTicketItems(c.ID, tickets)
	c.RecomputeTotal()

	a.sessions.commit(ctx, e, pendingEvent{
		typ:     models.EventNewOrder,
		payload: models.EventPayload{TableNumber: c.TableNumber, Order: &order},
	})

	util.OrdersSubmittedTotal.WithLabelValues(string(source)).Inc()
	a.logger.Info("Order merged into check",
		zap.String("check_id", c.ID),
		zap.String("order_id", order.ID),
		zap.String("source", string(source)),
		zap.Int("items", len(order.Items)),
		zap.Int("tickets", len(tickets)),
		zap.Int64("total", c.Total))

	return &SubmitOrderResult{
		CheckID:  c.ID,
		OrderID:  order.ID,
		NewTotal: c.Total,
		Due:      c.Due(),
	}, nil
}

// CancelOrderItem cancels an order item whose ticket item is still PENDING or
// COOKING and recomputes the check total.
func (a *OrderAggregator) CancelOrderItem(ctx context.Context, checkID, orderItemID, reason string) (result *CancelItemResult, err error) {
	ctx, span := util.StartSpan(ctx, "OrderAggregator.CancelOrderItem",
		attribute.String("check_id", checkID),
		attribute.String("order_item_id", orderItemID))
	defer func() { util.EndSpan(span, err) }()

	if reason == "" {
		return nil, invalid("reason", "is required")
	}

	e, err := a.sessions.check(checkID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.check
	if e.archived {
		return nil, &NotFoundError{Kind: "check", ID: checkID}
	}
	item := c.FindOrderItem(orderItemID)
	if item == nil {
		return nil, &NotFoundError{Kind: "order item", ID: orderItemID}
	}

	events, ti, err := a.dispatcher.transitionLocked(c, item.TicketItemID, models.TicketItemCancelled, reason)
	if err != nil {
		return nil, err
	}
	a.sessions.commit(ctx, e, events...)

	a.logger.Info("Order item cancelled",
		zap.String("check_id", c.ID),
		zap.String("order_item_id", orderItemID),
		zap.String("reason", reason),
		zap.Int64("total", c.Total))

	return &CancelItemResult{
		CheckID:      c.ID,
		OrderItemID:  orderItemID,
		TicketItemID: ti.ID,
		NewTotal:     c.Total,
		Due:          c.Due(),
	}, nil
}

func validateOrderItems(source models.OrderSource, items []OrderItemInput) error {
	if !source.Valid() {
		return invalid("source", "unknown order source %q", source)
	}
	if len(items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for i, in := range items {
		if in.MenuItemID == "" {
			return invalid(fmt.Sprintf("items[%d].menu_item_id", i), "is required")
		}
		if in.Quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
	}
	return nil
}

// lookupMenu runs outside the check lock
func (a *OrderAggregator) lookupMenu(ctx context.Context, storeID string, items []OrderItemInput) (map[string]models.MenuItem, error) {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, in := range items {
		if !seen[in.MenuItemID] {
			seen[in.MenuItemID] = true
			ids = append(ids, in.MenuItemID)
		}
	}

	menu, err := a.catalog.LookupMenuItems(ctx, storeID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up menu items: %w", err)
	}
	for i, in := range items {
		mi, ok := menu[in.MenuItemID]
		if !ok || !mi.Available {
			util.OrdersRejectedTotal.WithLabelValues("unavailable_item").Inc()
			return nil, invalid(fmt.Sprintf("items[%d].menu_item_id", i), "menu item %s is not available", in.MenuItemID)
		}
		if mi.Price < 0 {
			return nil, invalid(fmt.Sprintf("items[%d].menu_item_id", i), "menu item %s has a negative price", in.MenuItemID)
		}
	}
	return menu, nil
}
