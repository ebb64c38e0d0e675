package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedSQLite "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/sqlite"
)

// OrderRepoSQLite guarda las líneas del pedido como JSON en una sola columna.
type OrderRepoSQLite struct {
	db *sql.DB
}

func NewOrderRepoSQLite(db *sql.DB) *OrderRepoSQLite {
	return &OrderRepoSQLite{db: db}
}

var _ orderDomain.OrderRepository = (*OrderRepoSQLite)(nil)

const orderColumns = `order_number, customer_id, street, city, postal_code, country, items,
	status, confirmed_at, version, created_at, updated_at`

func (r *OrderRepoSQLite) Create(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_number) DO NOTHING`,
		o.OrderNumber, o.CustomerID, o.Address.Street, o.Address.City, o.Address.PostalCode, o.Address.Country,
		string(items), string(o.Status), confirmedAt(o), o.Version, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", orderDomain.ErrOrderAlreadyExists, o.OrderNumber)
	}

	for _, msg := range msgs {
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Update sólo toca estado y fechas: las líneas de un pedido no cambian tras crearse.
func (r *OrderRepoSQLite) Update(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status=?, confirmed_at=?, version=version+1, updated_at=?
		 WHERE order_number=? AND version=?`,
		string(o.Status), confirmedAt(o), o.UpdatedAt.UTC(), o.OrderNumber, o.Version,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE order_number=?`, o.OrderNumber).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return orderDomain.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return fmt.Errorf("%w: %s (version %d)", orderDomain.ErrConcurrentModification, o.OrderNumber, o.Version)
	}

	for _, msg := range msgs {
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *OrderRepoSQLite) Delete(ctx context.Context, orderNumber string, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE order_number=?`, orderNumber)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return orderDomain.ErrOrderNotFound
	}

	for _, msg := range msgs {
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *OrderRepoSQLite) GetByNumber(ctx context.Context, orderNumber string) (*orderDomain.Order, error) {
	var (
		o         orderDomain.Order
		items     string
		status    string
		confirmed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=?`, orderNumber).Scan(
		&o.OrderNumber, &o.CustomerID, &o.Address.Street, &o.Address.City, &o.Address.PostalCode, &o.Address.Country,
		&items, &status, &confirmed, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("invalid items JSON in order %s: %w", orderNumber, err)
	}
	o.Status = orderDomain.OrderStatus(status)
	if confirmed.Valid {
		t := confirmed.Time.UTC()
		o.ConfirmedAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

// InitOrderSchema crea 'orders' y 'outbox' si no existen.
func InitOrderSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS orders (
		order_number TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		street TEXT NOT NULL,
		city TEXT NOT NULL,
		postal_code TEXT NOT NULL,
		country TEXT NOT NULL,
		items TEXT NOT NULL,
		status TEXT NOT NULL,
		confirmed_at DATETIME,
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}
	return sharedSQLite.InitOutboxSchema(ctx, db)
}

func confirmedAt(o *orderDomain.Order) interface{} {
	if o.ConfirmedAt == nil {
		return nil
	}
	return o.ConfirmedAt.UTC()
}
