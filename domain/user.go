package domain

import "time"

// Staff roles.
const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

type User struct {
	ID         string    `json:"id" db:"id"`
	Username   string    `json:"username" db:"username"`
	Email      string    `json:"email" db:"email"`
	Password   string    `json:"password,omitempty" db:"password"`
	Role       string    `json:"role" db:"role"`
	PharmacyID *string   `json:"pharmacy_id,omitempty" db:"pharmacy_id"`
	CreatedAt  time.Time `json:"created_at,omitempty" db:"created_at"`
}
