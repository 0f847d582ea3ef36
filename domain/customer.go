package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID         string    `db:"id" json:"id"`
	PharmacyID string    `db:"pharmacy_id" json:"pharmacy_id"`
	Name       string    `db:"name" json:"name"`
	Phone      string    `db:"phone" json:"phone"`
	Age        *int      `db:"age" json:"age,omitempty"`
	Gender     *string   `db:"gender" json:"gender,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// HistoryEntry is one completed sale in a customer's purchase history.
type HistoryEntry struct {
	CustomerID string          `db:"customer_id" json:"customer_id"`
	OrderID    string          `db:"order_id" json:"order_id"`
	Total      decimal.Decimal `db:"total" json:"total"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
