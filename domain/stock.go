package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reasons recorded on stock movements.
const (
	MovementSale       = "sale"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

// StockMovement is the audit row written for every stock change.
type StockMovement struct {
	ID          string          `db:"id" json:"id"`
	ItemID      string          `db:"item_id" json:"item_id"`
	PharmacyID  string          `db:"pharmacy_id" json:"pharmacy_id"`
	Change      decimal.Decimal `db:"quantity_change" json:"quantity_change"`
	StockBefore decimal.Decimal `db:"stock_before" json:"stock_before"`
	StockAfter  decimal.Decimal `db:"stock_after" json:"stock_after"`
	Reason      string          `db:"reason" json:"reason"`
	Reference   *string         `db:"reference" json:"reference,omitempty"`
	CreatedBy   *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
