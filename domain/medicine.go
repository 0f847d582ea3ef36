package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Form is the dosage form of a medicine.
type Form string

const (
	FormTablet  Form = "tablet"
	FormCapsule Form = "capsule"
	FormSyrup   Form = "syrup"
	FormOther   Form = "other"
)

// ParseForm maps free text (as found in the seed catalog) onto a known form.
func ParseForm(s string) (Form, bool) {
	switch f := Form(strings.ToLower(strings.TrimSpace(s))); f {
	case FormTablet, FormCapsule, FormSyrup, FormOther:
		return f, true
	}
	return "", false
}

// Divisible reports whether the form can be sold one sub-unit at a time.
func (f Form) Divisible() bool {
	return f == FormTablet || f == FormCapsule
}

// Medicine is a sellable catalog item. Stock is counted in packs and may be
// fractional after sub-unit sales.
type Medicine struct {
	ID                   string          `db:"id" json:"id"`
	PharmacyID           string          `db:"pharmacy_id" json:"pharmacy_id"`
	BrandName            string          `db:"brand_name" json:"brand_name"`
	GenericName          string          `db:"generic_name" json:"generic_name"`
	Composition          string          `db:"composition" json:"composition"`
	Category             string          `db:"category" json:"category"`
	Form                 Form            `db:"form" json:"form"`
	Manufacturer         string          `db:"manufacturer" json:"manufacturer"`
	PackPrice            decimal.Decimal `db:"pack_price" json:"pack_price"`
	PackSize             int             `db:"pack_size" json:"pack_size"`
	Stock                decimal.Decimal `db:"stock" json:"stock"`
	RequiresPrescription bool            `db:"requires_prescription" json:"requires_prescription"`
	ExpiryDate           *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// SubUnitPrice is the price of a single sub-unit, rounded to cents.
func (m Medicine) SubUnitPrice() decimal.Decimal {
	return m.PackPrice.DivRound(decimal.NewFromInt(int64(m.packSize())), 2)
}

func (m Medicine) packSize() int {
	if m.PackSize < 1 {
		return 1
	}
	return m.PackSize
}
