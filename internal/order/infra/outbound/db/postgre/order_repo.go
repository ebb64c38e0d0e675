package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedPostgres "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/postgres"
)

// OrderRepoPostgres implementa OrderRepository; las líneas van en una columna JSONB.
type OrderRepoPostgres struct {
	db *sql.DB
}

func NewOrderRepoPostgres(db *sql.DB) *OrderRepoPostgres {
	return &OrderRepoPostgres{db: db}
}

var _ orderDomain.OrderRepository = (*OrderRepoPostgres)(nil)

const orderColumns = `order_number, customer_id, street, city, postal_code, country, items,
	status, confirmed_at, version, created_at, updated_at`

func (r *OrderRepoPostgres) Create(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (order_number) DO NOTHING`,
		o.OrderNumber, o.CustomerID, o.Address.Street, o.Address.City, o.Address.PostalCode, o.Address.Country,
		string(items), string(o.Status), o.ConfirmedAt, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", orderDomain.ErrOrderAlreadyExists, o.OrderNumber)
	}

	for _, msg := range msgs {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to insert outbox: %w", err)
		}
	}
	return tx.Commit()
}

func (r *OrderRepoPostgres) Update(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status=$1, confirmed_at=$2, version=version+1, updated_at=$3
		 WHERE order_number=$4 AND version=$5`,
		string(o.Status), o.ConfirmedAt, o.UpdatedAt, o.OrderNumber, o.Version,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE order_number=$1)`, o.OrderNumber).Scan(&exists); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return orderDomain.ErrOrderNotFound
		}
		return fmt.Errorf("%w: %s (version %d)", orderDomain.ErrConcurrentModification, o.OrderNumber, o.Version)
	}

	for _, msg := range msgs {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to insert outbox: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *OrderRepoPostgres) Delete(ctx context.Context, orderNumber string, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE order_number=$1`, orderNumber)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return orderDomain.ErrOrderNotFound
	}

	for _, msg := range msgs {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to insert outbox: %w", err)
		}
	}
	return tx.Commit()
}

func (r *OrderRepoPostgres) GetByNumber(ctx context.Context, orderNumber string) (*orderDomain.Order, error) {
	var (
		o         orderDomain.Order
		items     []byte
		status    string
		confirmed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, orderNumber).Scan(
		&o.OrderNumber, &o.CustomerID, &o.Address.Street, &o.Address.City, &o.Address.PostalCode, &o.Address.Country,
		&items, &status, &confirmed, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
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

// InitPostgresOrderSchema crea 'orders' y 'outbox' si no existen.
func InitPostgresOrderSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
    CREATE TABLE IF NOT EXISTS orders (
        order_number TEXT PRIMARY KEY,
        customer_id TEXT NOT NULL,
        street TEXT NOT NULL,
        city TEXT NOT NULL,
        postal_code TEXT NOT NULL,
        country TEXT NOT NULL,
        items JSONB NOT NULL,
        status TEXT NOT NULL,
        confirmed_at TIMESTAMP WITH TIME ZONE,
        version BIGINT NOT NULL,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL,
        updated_at TIMESTAMP WITH TIME ZONE NOT NULL
    )`)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}
	return sharedPostgres.InitOutboxSchema(ctx, db)
}
