package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is portable between SQLite and Postgres: text ids, NUMERIC money
// and stock, UTC TIMESTAMP columns.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            pharmacy_id TEXT,
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS pharmacies (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            owner_id TEXT,
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id TEXT PRIMARY KEY,
            pharmacy_id TEXT NOT NULL,
            brand_name TEXT NOT NULL,
            generic_name TEXT NOT NULL DEFAULT '',
            composition TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            form TEXT NOT NULL,
            manufacturer TEXT NOT NULL DEFAULT '',
            pack_price NUMERIC(12,2) NOT NULL,
            pack_size INTEGER NOT NULL CHECK (pack_size >= 1),
            stock NUMERIC(14,2) NOT NULL CHECK (stock >= 0),
            requires_prescription BOOLEAN NOT NULL DEFAULT FALSE,
            expiry_date TIMESTAMP,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_pharmacy ON medicines (pharmacy_id);`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
            id TEXT PRIMARY KEY,
            item_id TEXT NOT NULL,
            pharmacy_id TEXT NOT NULL,
            quantity_change NUMERIC(14,2) NOT NULL,
            stock_before NUMERIC(14,2) NOT NULL,
            stock_after NUMERIC(14,2) NOT NULL,
            reason TEXT NOT NULL,
            reference TEXT,
            created_by TEXT,
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements (item_id);`,
	`CREATE TABLE IF NOT EXISTS customers (
            id TEXT PRIMARY KEY,
            pharmacy_id TEXT NOT NULL,
            name TEXT NOT NULL,
            phone TEXT NOT NULL,
            age INTEGER,
            gender TEXT,
            created_at TIMESTAMP NOT NULL,
            UNIQUE (pharmacy_id, phone)
        );`,
	`CREATE TABLE IF NOT EXISTS orders (
            id TEXT PRIMARY KEY,
            pharmacy_id TEXT NOT NULL,
            customer_id TEXT REFERENCES customers(id),
            customer_name TEXT NOT NULL DEFAULT '',
            customer_phone TEXT NOT NULL DEFAULT '',
            subtotal NUMERIC(14,2) NOT NULL,
            tax NUMERIC(14,2) NOT NULL,
            total NUMERIC(14,2) NOT NULL,
            status TEXT NOT NULL,
            flow TEXT NOT NULL,
            created_by TEXT,
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_orders_pharmacy_created ON orders (pharmacy_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS order_items (
            order_id TEXT NOT NULL REFERENCES orders(id),
            position INTEGER NOT NULL,
            item_id TEXT NOT NULL,
            name TEXT NOT NULL,
            unit TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            unit_price NUMERIC(12,2) NOT NULL,
            line_total NUMERIC(14,2) NOT NULL,
            PRIMARY KEY (order_id, position)
        );`,
	`CREATE TABLE IF NOT EXISTS customer_history (
            customer_id TEXT NOT NULL REFERENCES customers(id),
            order_id TEXT NOT NULL REFERENCES orders(id),
            total NUMERIC(14,2) NOT NULL,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY (customer_id, order_id)
        );`,
}

// Run creates the database schema required for the POS backend.
func Run(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
