package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dasarishourya007-oss/vArogra-sub000/domain"
)

const medicineColumns = `id, pharmacy_id, brand_name, generic_name, composition, category, form, manufacturer,
        pack_price, pack_size, stock, requires_prescription, expiry_date, created_at, updated_at`

const orderColumns = `id, pharmacy_id, customer_id, customer_name, customer_phone, subtotal, tax, total,
        status, flow, created_by, created_at`

// SQL is a Store backed by sqlx. Queries are written with ? placeholders and
// rebound for the driver in use.
type SQL struct {
	db *sqlx.DB
	// lockSuffix is appended to row reads inside Atomic. SQLite has no row
	// locks; the single connection serialises transactions instead.
	lockSuffix string
}

func NewSQL(db *sqlx.DB) *SQL {
	s := &SQL{db: db}
	if db.DriverName() == "postgres" {
		s.lockSuffix = " FOR UPDATE"
	}
	return s
}

func (s *SQL) q(query string) string { return s.db.Rebind(query) }

func (s *SQL) Medicine(ctx context.Context, id string) (domain.Medicine, error) {
	var m domain.Medicine
	err := s.db.GetContext(ctx, &m, s.q(`SELECT `+medicineColumns+` FROM medicines WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	return m, err
}

func (s *SQL) ListMedicines(ctx context.Context, pharmacyID string) ([]domain.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines`
	var args []any
	if pharmacyID != "" {
		query += ` WHERE pharmacy_id = ?`
		args = append(args, pharmacyID)
	}
	query += ` ORDER BY created_at, id`

	medicines := []domain.Medicine{}
	if err := s.db.SelectContext(ctx, &medicines, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	return medicines, nil
}

func (s *SQL) SaveMedicine(ctx context.Context, m domain.Medicine) error {
	query := `INSERT INTO medicines (` + medicineColumns + `)
        VALUES (:id, :pharmacy_id, :brand_name, :generic_name, :composition, :category, :form, :manufacturer,
        :pack_price, :pack_size, :stock, :requires_prescription, :expiry_date, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            brand_name = EXCLUDED.brand_name,
            generic_name = EXCLUDED.generic_name,
            composition = EXCLUDED.composition,
            category = EXCLUDED.category,
            form = EXCLUDED.form,
            manufacturer = EXCLUDED.manufacturer,
            pack_price = EXCLUDED.pack_price,
            pack_size = EXCLUDED.pack_size,
            stock = EXCLUDED.stock,
            requires_prescription = EXCLUDED.requires_prescription,
            expiry_date = EXCLUDED.expiry_date,
            updated_at = EXCLUDED.updated_at`
	if _, err := s.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("save medicine %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQL) DeleteMedicine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM medicines WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete medicine %s: %w", id, err)
	}
	return expectRow(res, "medicine", id)
}

func (s *SQL) ListMovements(ctx context.Context, itemID string) ([]domain.StockMovement, error) {
	movements := []domain.StockMovement{}
	err := s.db.SelectContext(ctx, &movements, s.q(`SELECT id, item_id, pharmacy_id, quantity_change, stock_before, stock_after,
        reason, reference, created_by, created_at FROM stock_movements WHERE item_id = ? ORDER BY created_at, id`), itemID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

func (s *SQL) CreateCustomer(ctx context.Context, c domain.Customer) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, s.q(`SELECT EXISTS(SELECT 1 FROM customers WHERE pharmacy_id = ? AND phone = ?)`), c.PharmacyID, c.Phone); err != nil {
		return fmt.Errorf("check customer phone: %w", err)
	}
	if exists {
		return domain.ErrDuplicatePhone
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO customers (id, pharmacy_id, name, phone, age, gender, created_at)
        VALUES (:id, :pharmacy_id, :name, :phone, :age, :gender, :created_at)`, c)
	if isUniqueViolation(err) {
		return domain.ErrDuplicatePhone
	}
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

func (s *SQL) Customer(ctx context.Context, id string) (domain.Customer, error) {
	var c domain.Customer
	err := s.db.GetContext(ctx, &c, s.q(`SELECT id, pharmacy_id, name, phone, age, gender, created_at FROM customers WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

func (s *SQL) ListCustomers(ctx context.Context, pharmacyID string) ([]domain.Customer, error) {
	query := `SELECT id, pharmacy_id, name, phone, age, gender, created_at FROM customers`
	var args []any
	if pharmacyID != "" {
		query += ` WHERE pharmacy_id = ?`
		args = append(args, pharmacyID)
	}
	query += ` ORDER BY created_at, id`
	customers := []domain.Customer{}
	if err := s.db.SelectContext(ctx, &customers, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

func (s *SQL) History(ctx context.Context, customerID string) ([]domain.HistoryEntry, error) {
	entries := []domain.HistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, s.q(`SELECT customer_id, order_id, total, created_at FROM customer_history
        WHERE customer_id = ? ORDER BY created_at, order_id`), customerID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

func (s *SQL) Order(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := s.db.GetContext(ctx, &o, s.q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, err
	}
	orders := []domain.Order{o}
	if err := s.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (s *SQL) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	var (
		args    []any
		clauses []string
	)
	if f.PharmacyID != "" {
		args = append(args, f.PharmacyID)
		clauses = append(clauses, "pharmacy_id = ?")
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		clauses = append(clauses, "customer_id = ?")
	}
	if !f.From.IsZero() {
		args = append(args, f.From.UTC())
		clauses = append(clauses, "created_at >= ?")
	}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		clauses = append(clauses, "created_at < ?")
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	orders := []domain.Order{}
	if err := s.db.SelectContext(ctx, &orders, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *SQL) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	query, args, err := sqlx.In(`SELECT order_id, position, item_id, name, unit, quantity, unit_price, line_total
        FROM order_items WHERE order_id IN (?) ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("prepare order items query: %w", err)
	}
	var rows []domain.OrderItem
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	byOrder := make(map[string][]domain.OrderItem)
	for _, row := range rows {
		byOrder[row.OrderID] = append(byOrder[row.OrderID], row)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return nil
}

func (s *SQL) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE orders SET status = ? WHERE id = ? AND status = ?`), to, id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	current, err := s.Order(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("order %s is %s: %w", id, current.Status, domain.ErrInvalidStatusTransition)
}

func (s *SQL) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT id, username, email, password, role, pharmacy_id, created_at FROM users WHERE email = ?`), strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return u, err
}

func (s *SQL) UpdatePassword(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET password = ? WHERE id = ?`), hash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectRow(res, "user", userID)
}

func (s *SQL) Pharmacy(ctx context.Context, id string) (domain.Pharmacy, error) {
	var p domain.Pharmacy
	err := s.db.GetContext(ctx, &p, s.q(`SELECT id, name, address, location, owner_id, created_at FROM pharmacies WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Pharmacy{}, fmt.Errorf("pharmacy %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

func (s *SQL) ListPharmacies(ctx context.Context) ([]domain.Pharmacy, error) {
	pharmacies := []domain.Pharmacy{}
	if err := s.db.SelectContext(ctx, &pharmacies, `SELECT id, name, address, location, owner_id, created_at FROM pharmacies ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	return pharmacies, nil
}

func (s *SQL) UpdatePharmacy(ctx context.Context, p domain.Pharmacy) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE pharmacies SET name = ?, address = ?, location = ? WHERE id = ?`), p.Name, p.Address, p.Location, p.ID)
	if err != nil {
		return fmt.Errorf("update pharmacy: %w", err)
	}
	return expectRow(res, "pharmacy", p.ID)
}

// Atomic runs fn inside a database transaction. Statements in fn honour ctx,
// but once fn returns the commit runs to completion even if ctx is
// cancelled. A failed Commit leaves the outcome unknown and is reported as
// *domain.PartialCommitError.
func (s *SQL) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stx := &sqlTx{tx: tx, lockSuffix: s.lockSuffix}
	if err := fn(stx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("commit: %w", err)
		}
		return &domain.PartialCommitError{OrderID: stx.orderID, Err: err}
	}
	return nil
}

type sqlTx struct {
	tx         *sqlx.Tx
	lockSuffix string
	orderID    string
}

func (t *sqlTx) q(query string) string { return t.tx.Rebind(query) }

func (t *sqlTx) MedicineForUpdate(ctx context.Context, id string) (domain.Medicine, error) {
	var m domain.Medicine
	err := t.tx.GetContext(ctx, &m, t.q(`SELECT `+medicineColumns+` FROM medicines WHERE id = ?`+t.lockSuffix), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Medicine{}, fmt.Errorf("medicine %s: %w", id, domain.ErrNotFound)
	}
	return m, err
}

func (t *sqlTx) SetStock(ctx context.Context, id string, stock decimal.Decimal, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, t.q(`UPDATE medicines SET stock = ?, updated_at = ? WHERE id = ?`), stock, at, id)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return expectRow(res, "medicine", id)
}

func (t *sqlTx) LogMovement(ctx context.Context, m domain.StockMovement) error {
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO stock_movements (
            id, item_id, pharmacy_id, quantity_change, stock_before, stock_after, reason, reference, created_by, created_at
        ) VALUES (
            :id, :item_id, :pharmacy_id, :quantity_change, :stock_before, :stock_after, :reason, :reference, :created_by, :created_at
        )`, m)
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
        VALUES (:id, :pharmacy_id, :customer_id, :customer_name, :customer_phone, :subtotal, :tax, :total,
        :status, :flow, :created_by, :created_at)`, o)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, item := range o.Items {
		_, err := t.tx.NamedExecContext(ctx, `INSERT INTO order_items (order_id, position, item_id, name, unit, quantity, unit_price, line_total)
            VALUES (:order_id, :position, :item_id, :name, :unit, :quantity, :unit_price, :line_total)`, item)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	t.orderID = o.ID
	return nil
}

func (t *sqlTx) AppendHistory(ctx context.Context, e domain.HistoryEntry) error {
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO customer_history (customer_id, order_id, total, created_at)
        VALUES (:customer_id, :order_id, :total, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertUser(ctx context.Context, u domain.User) error {
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO users (id, username, email, password, role, pharmacy_id, created_at)
        VALUES (:id, :username, :email, :password, :role, :pharmacy_id, :created_at)`, u)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertPharmacy(ctx context.Context, p domain.Pharmacy) error {
	_, err := t.tx.NamedExecContext(ctx, `INSERT INTO pharmacies (id, name, address, location, owner_id, created_at)
        VALUES (:id, :name, :address, :location, :owner_id, :created_at)`, p)
	if err != nil {
		return fmt.Errorf("insert pharmacy: %w", err)
	}
	return nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
