package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// --- Importaciones del dominio y compartidas ---
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedPostgres "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/postgres"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
)

// DeliveryRepoPostgres implementa la interfaz DeliveryRepository para PostgreSQL.
type DeliveryRepoPostgres struct {
	db *sql.DB
}

// NewDeliveryRepoPostgres es el constructor del repositorio.
func NewDeliveryRepoPostgres(db *sql.DB) *DeliveryRepoPostgres {
	return &DeliveryRepoPostgres{db: db}
}

var _ deliveryDomain.DeliveryRepository = (*DeliveryRepoPostgres)(nil)

const deliveryColumns = `id, order_number, street, city, state, postal_code, country,
	status, scheduled_date, notes, version, created_at, updated_at`

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

// Create inserta la entrega y sus mensajes en una transacción.
func (r *DeliveryRepoPostgres) Create(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	res, err := tx.ExecContext(ctx,
		`INSERT INTO deliveries (`+deliveryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		d.ID, d.OrderNumber, d.Address.Street, d.Address.City, d.Address.State, d.Address.PostalCode, d.Address.Country,
		string(d.Status), d.ScheduledDate, d.Notes, d.Version, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", deliveryDomain.ErrDeliveryAlreadyExists, d.ID)
	}

	for _, msg := range msgs {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to insert outbox: %w", err)
		}
	}

	return tx.Commit()
}

// Update escribe sólo si la versión no ha cambiado desde la lectura.
func (r *DeliveryRepoPostgres) Update(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE deliveries
		 SET street=$1, city=$2, state=$3, postal_code=$4, country=$5, status=$6, scheduled_date=$7, notes=$8,
		     version=version+1, updated_at=$9
		 WHERE id=$10 AND version=$11`,
		d.Address.Street, d.Address.City, d.Address.State, d.Address.PostalCode, d.Address.Country,
		string(d.Status), d.ScheduledDate, d.Notes, d.UpdatedAt, d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM deliveries WHERE id=$1)`, d.ID).Scan(&exists); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return deliveryDomain.ErrDeliveryNotFound
		}
		return fmt.Errorf("%w: %s (version %d)", deliveryDomain.ErrConcurrentModification, d.ID, d.Version)
	}

	for _, msg := range msgs {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to insert outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	d.Version++
	return nil
}

// Delete borra la entrega y encola sus mensajes en la misma transacción.
func (r *DeliveryRepoPostgres) Delete(ctx context.Context, id string, msgs []sharedDomain.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return deliveryDomain.ErrDeliveryNotFound
	}

	for _, msg := range msgs {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to insert outbox: %w", err)
		}
	}
	return tx.Commit()
}

// ------------------ Lectura ------------------

// GetByID recupera una entrega por su id de negocio.
func (r *DeliveryRepoPostgres) GetByID(ctx context.Context, id string) (*deliveryDomain.Delivery, error) {
	d, err := scanDelivery(r.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, deliveryDomain.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	return d, nil
}

// applyCriteria traduce criterios a SQL para Postgres ($1, $2...).
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
	for i, c := range conds {
		col, ok := filterColumns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unsupported filter %q", deliveryDomain.ErrInvalidDelivery, c.Field)
		}
		op := c.Op
		if op == sharedDomain.OpLike {
			op = sharedDomain.OpILike
		}
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", col, op, i+1))
		args = append(args, c.Value)
	}
	return strings.Join(clauses, joiner), args, nil
}

// ListByCriteria recupera entregas aplicando filtros, paginación y ordenamiento.
func (r *DeliveryRepoPostgres) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*deliveryDomain.Delivery, error) {
	whereSQL, args, err := applyCriteria(criteria)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + deliveryColumns + ` FROM deliveries`
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	// Añadir ordenamiento y paginación
	argOffset := len(args)
	query += fmt.Sprintf(" ORDER BY %s %s, id", sort.Column(sortColumns, "created_at"), sort.Direction())

	page := sharedQuery.OffsetPagination{}
	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		page = p
	}
	page = page.Normalize()
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argOffset+1, argOffset+2)
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

// InitPostgresDeliverySchema crea 'deliveries' y 'outbox' si no existen.
func InitPostgresDeliverySchema(ctx context.Context, db *sql.DB) error {
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
        scheduled_date TIMESTAMP WITH TIME ZONE,
        notes TEXT NOT NULL DEFAULT '',
        version BIGINT NOT NULL,
        created_at TIMESTAMP WITH TIME ZONE NOT NULL,
        updated_at TIMESTAMP WITH TIME ZONE NOT NULL
    )`)
	if err != nil {
		return fmt.Errorf("failed to create deliveries table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_deliveries_order ON deliveries (order_number)`); err != nil {
		return err
	}
	return sharedPostgres.InitOutboxSchema(ctx, db)
}

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
