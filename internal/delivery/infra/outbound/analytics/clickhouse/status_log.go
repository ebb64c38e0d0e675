package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// StatusLogRepo guarda la proyección de cambios de estado de entregas en ClickHouse.
type StatusLogRepo struct {
	db *sql.DB
}

// NewStatusLogRepo abre la conexión y comprueba que responde.
func NewStatusLogRepo(ctx context.Context, addr string, dbName string) (*StatusLogRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &StatusLogRepo{db: conn}, nil
}

func (r *StatusLogRepo) Close() error {
	return r.db.Close()
}

// LogBatch inserta el lote en una sola transacción: ClickHouse lo envía como un único bloque.
func (r *StatusLogRepo) LogBatch(ctx context.Context, changes []deliveryDomain.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO delivery_status_log (delivery_id, order_number, status, occurred_at)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.ExecContext(ctx, c.DeliveryID, c.OrderNumber, string(c.Status), c.OccurredAt.UTC()); err != nil {
			return fmt.Errorf("failed to exec statement for delivery %s: %w", c.DeliveryID, err)
		}
	}

	return tx.Commit()
}

// CountByStatus cuenta los cambios a cada estado en [start, end].
func (r *StatusLogRepo) CountByStatus(ctx context.Context, start, end time.Time) ([]deliveryDomain.StatusCount, error) {
	query := `
		SELECT status, count() AS total
		FROM delivery_status_log
		WHERE occurred_at BETWEEN ? AND ?
		GROUP BY status
		ORDER BY status
	`
	rows, err := r.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []deliveryDomain.StatusCount
	for rows.Next() {
		var (
			status string
			c      deliveryDomain.StatusCount
		)
		if err := rows.Scan(&status, &c.Count); err != nil {
			return nil, err
		}
		c.Status = deliveryDomain.DeliveryStatus(status)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// InitSchema crea la tabla si no existe. Particionada por mes, ordenada para consultar por estado.
func (r *StatusLogRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS delivery_status_log (
			delivery_id  String,
			order_number String,
			status       LowCardinality(String),
			occurred_at  DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(occurred_at)
		ORDER BY (status, occurred_at, delivery_id);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

var _ deliveryDomain.DeliveryAnalyticsRepository = (*StatusLogRepo)(nil)
