package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleUnit is the granularity a line is sold at.
type SaleUnit string

const (
	UnitPack    SaleUnit = "pack"
	UnitSubUnit SaleUnit = "sub-unit"
)

func (u SaleUnit) Valid() bool {
	return u == UnitPack || u == UnitSubUnit
}

// SaleLine is one line of an open bill. UnitPrice and PackSize are
// snapshots taken when the line was first added.
type SaleLine struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	ItemName  string          `json:"item_name"`
	Unit      SaleUnit        `json:"unit"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	PackSize  int             `json:"pack_size"`
}

// Total is unit price times quantity.
func (l SaleLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// BaseStock is the number of packs this line takes out of stock.
func (l SaleLine) BaseStock() decimal.Decimal {
	qty := decimal.NewFromInt(int64(l.Quantity))
	if l.Unit == UnitPack {
		return qty
	}
	size := l.PackSize
	if size < 1 {
		size = 1
	}
	return qty.DivRound(decimal.NewFromInt(int64(size)), 2)
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals derives bill totals from lines. Tax is rounded to cents.
func ComputeTotals(lines []SaleLine, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// Flow distinguishes counter sales from orders that get delivered.
type Flow string

const (
	FlowPOS      Flow = "pos"
	FlowDelivery Flow = "delivery"
)

type OrderStatus string

const (
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
)

var statusRank = map[OrderStatus]int{
	OrderStatusConfirmed:      0,
	OrderStatusPreparing:      1,
	OrderStatusOutForDelivery: 2,
	OrderStatusDelivered:      3,
}

// ParseOrderStatus validates a status name.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := statusRank[st]
	return st, ok
}

// CanAdvanceTo reports whether moving from s to next goes strictly forward.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	return ok && to > from
}

// InitialStatus is the status a freshly committed order starts in.
func (f Flow) InitialStatus() OrderStatus {
	if f == FlowDelivery {
		return OrderStatusConfirmed
	}
	return OrderStatusDelivered
}

// Order is the immutable record of a committed bill. Only Status changes
// after creation.
type Order struct {
	ID            string          `db:"id" json:"id"`
	PharmacyID    string          `db:"pharmacy_id" json:"pharmacy_id"`
	CustomerID    *string         `db:"customer_id" json:"customer_id,omitempty"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	CustomerPhone string          `db:"customer_phone" json:"customer_phone"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Status        OrderStatus     `db:"status" json:"status"`
	Flow          Flow            `db:"flow" json:"flow"`
	CreatedBy     *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	Items         []OrderItem     `db:"-" json:"items"`
}

type OrderItem struct {
	OrderID   string          `db:"order_id" json:"order_id"`
	Position  int             `db:"position" json:"position"`
	ItemID    string          `db:"item_id" json:"item_id"`
	Name      string          `db:"name" json:"name"`
	Unit      SaleUnit        `db:"unit" json:"unit"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal decimal.Decimal `db:"line_total" json:"line_total"`
}

// Clone returns a deep copy so callers cannot mutate a stored order.
func (o Order) Clone() Order {
	c := o
	if o.CustomerID != nil {
		id := *o.CustomerID
		c.CustomerID = &id
	}
	if o.CreatedBy != nil {
		by := *o.CreatedBy
		c.CreatedBy = &by
	}
	c.Items = append([]OrderItem(nil), o.Items...)
	return c
}
