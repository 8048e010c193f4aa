package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateIdempotencyKey is returned by ledgers when an attempt for the key already exists.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")

// ErrInsufficientBalance is returned when points or a coupon are no longer there to redeem.
var ErrInsufficientBalance = errors.New("insufficient customer balance")

// TableState is the occupancy state of a table
type TableState string

const (
	TableAvailable TableState = "AVAILABLE"
	TableOccupied  TableState = "OCCUPIED"
	TableReserved  TableState = "RESERVED"
)

// TableRef identifies a table within a store
type TableRef struct {
	StoreID string `json:"store_id"`
	Number  int    `json:"number"`
}

// Table represents a physical table in a store
type Table struct {
	StoreID       string     `db:"store_id" json:"store_id"`
	Number        int        `db:"number" json:"number"`
	Capacity      int        `db:"capacity" json:"capacity"`
	State         TableState `db:"state" json:"state"`
	ActiveCheckID string     `db:"active_check_id" json:"active_check_id,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Ref returns the table reference
func (t Table) Ref() TableRef {
	return TableRef{StoreID: t.StoreID, Number: t.Number}
}

// CheckStatus is the lifecycle state of a check
type CheckStatus string

const (
	CheckOpen    CheckStatus = "OPEN"
	CheckClosing CheckStatus = "CLOSING"
	CheckClosed  CheckStatus = "CLOSED"
)

// Check binds a table occupancy to its orders, tickets and payments
type Check struct {
	ID          string      `json:"id"`
	StoreID     string      `json:"store_id"`
	TableNumber int         `json:"table_number"`
	OpenedBy    string      `json:"opened_by"`
	PartySize   int         `json:"party_size"`
	Status      CheckStatus `json:"status"`
	Sequence    uint64      `json:"sequence"`
	Total       int64       `json:"total"`
	Paid        int64       `json:"paid"`
	Orders      []Order     `json:"orders"`
	Tickets     []Ticket    `json:"tickets"`
	Payments    []Payment   `json:"payments"`
	// PendingPayments lists idempotency keys whose charge outcome is unknown
	PendingPayments []string   `json:"pending_payments,omitempty"`
	OpenedAt        time.Time  `json:"opened_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Due returns the amount still owed on the check
func (c *Check) Due() int64 {
	return c.Total - c.Paid
}

// PaymentStatus reports the check-level settlement state
func (c *Check) PaymentStatus() PaymentStatus {
	switch {
	case c.Paid <= 0:
		return PaymentUnpaid
	case c.Paid < c.Total:
		return PaymentPartial
	default:
		return PaymentPaid
	}
}

// OutstandingItems counts ticket items that have not reached a terminal status
func (c *Check) OutstandingItems() int {
	n := 0
	for i := range c.Tickets {
		for j := range c.Tickets[i].Items {
			if !c.Tickets[i].Items[j].Status.IsTerminal() {
				n++
			}
		}
	}
	return n
}

// TicketsComplete reports whether every ticket on the check is complete.
// A check without tickets is not considered complete.
func (c *Check) TicketsComplete() bool {
	if len(c.Tickets) == 0 {
		return false
	}
	for i := range c.Tickets {
		if c.Tickets[i].CompletedAt == nil {
			return false
		}
	}
	return true
}

// RecomputeTotal sums every non-cancelled order item
func (c *Check) RecomputeTotal() int64 {
	var total int64
	for i := range c.Orders {
		for j := range c.Orders[i].Items {
			item := c.Orders[i].Items[j]
			if !item.Cancelled {
				total += item.LineTotal()
			}
		}
	}
	c.Total = total
	return total
}

// FindOrderItem locates an order item by ID
func (c *Check) FindOrderItem(id string) *OrderItem {
	for i := range c.Orders {
		for j := range c.Orders[i].Items {
			if c.Orders[i].Items[j].ID == id {
				return &c.Orders[i].Items[j]
			}
		}
	}
	return nil
}

// FindTicketItem locates a ticket item and its ticket by ticket item ID
func (c *Check) FindTicketItem(id string) (*Ticket, *TicketItem) {
	for i := range c.Tickets {
		for j := range c.Tickets[i].Items {
			if c.Tickets[i].Items[j].ID == id {
				return &c.Tickets[i], &c.Tickets[i].Items[j]
			}
		}
	}
	return nil, nil
}

// FindPayment locates a payment by ID
func (c *Check) FindPayment(id string) *Payment {
	for i := range c.Payments {
		if c.Payments[i].ID == id {
			return &c.Payments[i]
		}
	}
	return nil
}

// PaymentForKey returns the payment applied for an idempotency key, if any
func (c *Check) PaymentForKey(key string) *Payment {
	for i := range c.Payments {
		if c.Payments[i].IdempotencyKey == key {
			return &c.Payments[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to readers
func (c *Check) Clone() *Check {
	out := *c
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	out.Orders = make([]Order, len(c.Orders))
	for i, o := range c.Orders {
		o.Items = append([]OrderItem(nil), o.Items...)
		for j := range o.Items {
			o.Items[j].Options = append([]OptionSelection(nil), o.Items[j].Options...)
		}
		out.Orders[i] = o
	}
	out.Tickets = make([]Ticket, len(c.Tickets))
	for i, t := range c.Tickets {
		t.Items = append([]TicketItem(nil), t.Items...)
		out.Tickets[i] = t
	}
	out.PendingPayments = append([]string(nil), c.PendingPayments...)
	out.Payments = make([]Payment, len(c.Payments))
	for i, p := range c.Payments {
		p.Allocations = append([]Allocation(nil), p.Allocations...)
		out.Payments[i] = p
	}
	return &out
}

// OrderSource identifies where an order was submitted from
type OrderSource string

const (
	SourceTerminal OrderSource = "TERMINAL"
	SourceQR       OrderSource = "QR"
	SourcePhone    OrderSource = "PHONE"
	SourceWalkIn   OrderSource = "WALK_IN"
)

// Valid reports whether the source is a known value
func (s OrderSource) Valid() bool {
	switch s {
	case SourceTerminal, SourceQR, SourcePhone, SourceWalkIn:
		return true
	}
	return false
}

// Order is a batch of items submitted from one source at one point in time
type Order struct {
	ID          string      `json:"id"`
	CheckID     string      `json:"check_id"`
	Source      OrderSource `json:"source"`
	Items       []OrderItem `json:"items"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// OptionSelection is a chosen modifier for an order item
type OptionSelection struct {
	Group  string `json:"group"`
	Choice string `json:"choice"`
}

// OrderItem is a single line of an order
type OrderItem struct {
	ID           string            `json:"id"`
	OrderID      string            `json:"order_id"`
	MenuItemID   string            `json:"menu_item_id"`
	Name         string            `json:"name"`
	Station      string            `json:"station"`
	Quantity     int               `json:"quantity"`
	UnitPrice    int64             `json:"unit_price"`
	Options      []OptionSelection `json:"options,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	TicketItemID string            `json:"ticket_item_id,omitempty"`
	Cancelled    bool              `json:"cancelled"`
}

// LineTotal returns quantity times unit price
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// MenuItem is the catalog view of a sellable item
type MenuItem struct {
	ID        string `db:"id" json:"id"`
	StoreID   string `db:"store_id" json:"store_id"`
	Name      string `db:"name" json:"name"`
	Price     int64  `db:"price" json:"price"`
	Station   string `db:"station" json:"station"`
	Available bool   `db:"available" json:"available"`
}

// DefaultStation is used when a menu item carries no station
const DefaultStation = "kitchen"

// Ticket groups the ticket items of one order for one station
type Ticket struct {
	ID          string       `json:"id"`
	CheckID     string       `json:"check_id"`
	OrderID     string       `json:"order_id"`
	Station     string       `json:"station"`
	Items       []TicketItem `json:"items"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// AllTerminal reports whether every item on the ticket is terminal
func (t *Ticket) AllTerminal() bool {
	for i := range t.Items {
		if !t.Items[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// TicketItem tracks kitchen preparation of one order item
type TicketItem struct {
	ID           string           `json:"id"`
	TicketID     string           `json:"ticket_id"`
	OrderItemID  string           `json:"order_item_id"`
	MenuItemID   string           `json:"menu_item_id"`
	Name         string           `json:"name"`
	Quantity     int              `json:"quantity"`
	Status       TicketItemStatus `json:"status"`
	CancelReason string           `json:"cancel_reason,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	ReadyAt      *time.Time       `json:"ready_at,omitempty"`
	ServedAt     *time.Time       `json:"served_at,omitempty"`
	CancelledAt  *time.Time       `json:"cancelled_at,omitempty"`
}

// PaymentStatus is the settlement state of a payment (or a check)
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPartial  PaymentStatus = "PARTIAL"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Instrument is a payment instrument kind
type Instrument string

const (
	InstrumentCash   Instrument = "CASH"
	InstrumentCard   Instrument = "CARD"
	InstrumentPoints Instrument = "POINTS"
	InstrumentCoupon Instrument = "COUPON"
)

// Valid reports whether the instrument is a known value
func (i Instrument) Valid() bool {
	switch i {
	case InstrumentCash, InstrumentCard, InstrumentPoints, InstrumentCoupon:
		return true
	}
	return false
}

// Allocation assigns part of a payment to one instrument
type Allocation struct {
	Instrument Instrument `json:"instrument"`
	Amount     int64      `json:"amount"`
	Reference  string     `json:"reference,omitempty"`
}

// SumAllocations totals allocation amounts
func SumAllocations(allocs []Allocation) int64 {
	var sum int64
	for _, a := range allocs {
		sum += a.Amount
	}
	return sum
}

// AmountFor totals the allocations for one instrument
func AmountFor(allocs []Allocation, instrument Instrument) int64 {
	var sum int64
	for _, a := range allocs {
		if a.Instrument == instrument {
			sum += a.Amount
		}
	}
	return sum
}

// UsesBalance reports whether any allocation draws on customer points or coupons
func UsesBalance(allocs []Allocation) bool {
	for _, a := range allocs {
		if a.Instrument == InstrumentPoints || a.Instrument == InstrumentCoupon {
			return true
		}
	}
	return false
}

// Payment is a confirmed payment against a check
type Payment struct {
	ID             string        `json:"id"`
	CheckID        string        `json:"check_id"`
	IdempotencyKey string        `json:"idempotency_key"`
	CustomerID     string        `json:"customer_id,omitempty"`
	Amount         int64         `json:"amount"`
	Allocations    []Allocation  `json:"allocations"`
	Status         PaymentStatus `json:"status"`
	GatewayRef     string        `json:"gateway_ref,omitempty"`
	RefundReason   string        `json:"refund_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	RefundedAt     *time.Time    `json:"refunded_at,omitempty"`
}

// Settled reports whether the payment counts toward the check's paid amount
func (p Payment) Settled() bool {
	return p.Status == PaymentPaid || p.Status == PaymentPartial
}

// PaymentResult is the stored response of a confirmation, replayed verbatim for a repeated key
type PaymentResult struct {
	PaymentID      string        `json:"payment_id"`
	CheckID        string        `json:"check_id"`
	IdempotencyKey string        `json:"idempotency_key"`
	Status         PaymentStatus `json:"status"`
	Amount         int64         `json:"amount"`
	Allocations    []Allocation  `json:"allocations"`
	GatewayRef     string        `json:"gateway_ref,omitempty"`
	ConfirmedAt    time.Time     `json:"confirmed_at"`
}

// AttemptState tracks an idempotency key through the gateway call
type AttemptState string

const (
	AttemptInFlight            AttemptState = "IN_FLIGHT"
	AttemptPendingVerification AttemptState = "PENDING_VERIFICATION"
	AttemptSucceeded           AttemptState = "SUCCEEDED"
	AttemptRejected            AttemptState = "REJECTED"
)

// PaymentAttempt is recorded before the gateway is called so a crash can be reconciled
type PaymentAttempt struct {
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key"`
	CheckID        string         `db:"check_id" json:"check_id"`
	StoreID        string         `db:"store_id" json:"store_id"`
	CustomerID     string         `db:"customer_id" json:"customer_id,omitempty"`
	Amount         int64          `db:"amount" json:"amount"`
	CardAmount     int64          `db:"card_amount" json:"card_amount"`
	Allocations    []Allocation   `db:"-" json:"allocations"`
	State          AttemptState   `db:"state" json:"state"`
	Reason         string         `db:"reason" json:"reason,omitempty"`
	Result         *PaymentResult `db:"-" json:"result,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Pending reports whether the attempt outcome is still unknown
func (a *PaymentAttempt) Pending() bool {
	return a.State == AttemptInFlight || a.State == AttemptPendingVerification
}

// Balance is a customer's redeemable balance
type Balance struct {
	Points  int64            `json:"points"`
	Coupons map[string]int64 `json:"coupons"`
}

// ActivityEntry is a recorded event in the activity log
type ActivityEntry struct {
	EventID    string          `db:"event_id" json:"event_id"`
	EventType  string          `db:"event_type" json:"event_type"`
	StoreID    string          `db:"store_id" json:"store_id"`
	CheckID    string          `db:"check_id" json:"check_id"`
	Sequence   int64           `db:"sequence" json:"sequence"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
}
