package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedSQLite "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/sqlite"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
)

// DeliveryRepoSQLite implementa DeliveryRepository sobre SQLite. El outbox vive en la misma base.
type DeliveryRepoSQLite struct {
	db *sql.DB
}

func NewDeliveryRepoSQLite(db *sql.DB) *DeliveryRepoSQLite {
	return &DeliveryRepoSQLite{db: db}
}

var _ deliveryDomain.DeliveryRepository = (*DeliveryRepoSQLite)(nil)

const deliveryColumns = `id, order_number, street, city, state, postal_code, country,
	status, scheduled_date, notes, version, created_at, updated_at`

// Sólo estos campos pueden llegar a un WHERE o a un ORDER BY.
var (
	filterColumns = map[string]string{
		"status":       "status",
		"order_number": "order_number",
		"city":         "city",
	}
	sortColumns = map[string]string{
		"id":             "id",
		"status":         "status",
		"created_at":     "created_at",
		"updated_at":     "updated_at",
		"scheduled_date": "scheduled_date",
	}
)

// ------------------ CRUD + Outbox ------------------

// Create inserta la entrega y sus mensajes del outbox en una transacción.
func (r *DeliveryRepoSQLite) Create(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	res, err := tx.ExecContext(ctx,
		`INSERT INTO deliveries (`+deliveryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		d.ID, d.OrderNumber, d.Address.Street, d.Address.City, d.Address.State, d.Address.PostalCode, d.Address.Country,
		string(d.Status), nullableTime(d), d.Notes, d.Version, d.CreatedAt.UTC(), d.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", deliveryDomain.ErrDeliveryAlreadyExists, d.ID)
	}

	for _, msg := range msgs {
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Update aplica control optimista: sólo escribe si la versión almacenada es la que se leyó.
func (r *DeliveryRepoSQLite) Update(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE deliveries
		 SET street=?, city=?, state=?, postal_code=?, country=?, status=?, scheduled_date=?, notes=?,
		     version=version+1, updated_at=?
		 WHERE id=? AND version=?`,
		d.Address.Street, d.Address.City, d.Address.State, d.Address.PostalCode, d.Address.Country,
		string(d.Status), nullableTime(d), d.Notes, d.UpdatedAt.UTC(), d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM deliveries WHERE id=?`, d.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return deliveryDomain.ErrDeliveryNotFound
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return fmt.Errorf("%w: %s (version %d)", deliveryDomain.ErrConcurrentModification, d.ID, d.Version)
	}

	for _, msg := range msgs {
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	d.Version++
	return nil
}

// Delete borra la entrega y encola sus mensajes; si falla el outbox la entrega sigue ahí.
func (r *DeliveryRepoSQLite) Delete(ctx context.Context, id string, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return deliveryDomain.ErrDeliveryNotFound
	}

	for _, msg := range msgs {
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ------------------ Lectura ------------------

func (r *DeliveryRepoSQLite) GetByID(ctx context.Context, id string) (*deliveryDomain.Delivery, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=?`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, deliveryDomain.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	return d, nil
}

// applyCriteria traduce criterios a SQL para SQLite (?).
func applyCriteria(criteria sharedDomain.Criteria) (string, []interface{}, error) {
	if criteria == nil {
		return "", nil, nil
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return "", nil, nil
	}

	joiner := " AND "
	if c, ok := criteria.(sharedDomain.CompositeCriteria); ok && c.Operator == sharedDomain.OpOr {
		joiner = " OR "
	}

	var clauses []string
	var args []interface{}
	for _, c := range conds {
		col, ok := filterColumns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unsupported filter %q", deliveryDomain.ErrInvalidDelivery, c.Field)
		}
		op := c.Op
		if op == sharedDomain.OpILike {
			op = sharedDomain.OpLike // LIKE ya ignora mayúsculas en SQLite
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", col, op))
		args = append(args, c.Value)
	}
	return strings.Join(clauses, joiner), args, nil
}

// ListByCriteria recupera entregas aplicando filtros, paginación y ordenamiento.
func (r *DeliveryRepoSQLite) ListByCriteria(
	ctx context.Context,
	criteria sharedDomain.Criteria,
	pagination sharedQuery.Pagination,
	sort sharedQuery.Sort,
) ([]*deliveryDomain.Delivery, error) {
	whereSQL, args, err := applyCriteria(criteria)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + deliveryColumns + ` FROM deliveries`
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id", sort.Column(sortColumns, "created_at"), sort.Direction())

	page := sharedQuery.OffsetPagination{}
	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		page = p
	}
	page = page.Normalize()
	query += " LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []*deliveryDomain.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// ------------------ Inicialización del Esquema ------------------

// InitDeliverySchema crea 'deliveries' y 'outbox' si no existen.
func InitDeliverySchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL,
		street TEXT NOT NULL,
		city TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL,
		country TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_date DATETIME,
		notes TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create deliveries table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_deliveries_order ON deliveries (order_number)`); err != nil {
		return err
	}
	return sharedSQLite.InitOutboxSchema(ctx, db)
}

// ------------------ Helpers ------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDelivery(s scanner) (*deliveryDomain.Delivery, error) {
	var (
		d         deliveryDomain.Delivery
		status    string
		scheduled sql.NullTime
	)
	err := s.Scan(&d.ID, &d.OrderNumber, &d.Address.Street, &d.Address.City, &d.Address.State,
		&d.Address.PostalCode, &d.Address.Country, &status, &scheduled, &d.Notes, &d.Version,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = deliveryDomain.DeliveryStatus(status)
	if scheduled.Valid {
		t := scheduled.Time.UTC()
		d.ScheduledDate = &t
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

func nullableTime(d *deliveryDomain.Delivery) interface{} {
	if d.ScheduledDate == nil {
		return nil
	}
	return d.ScheduledDate.UTC()
}
