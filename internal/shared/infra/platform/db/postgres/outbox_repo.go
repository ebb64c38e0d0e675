package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, status, attempts,
	created_at, claimed_at, processed_at, error_message`

// Open abre la conexión con el driver pgx (database/sql).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// InitOutboxSchema crea la tabla outbox compartida por todos los agregados.
// payload es JSON y no JSONB: se publica exactamente el texto que se guardó.
func InitOutboxSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload JSON NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING','PROCESSING','PROCESSED','FAILED')),
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		claimed_at TIMESTAMP WITH TIME ZONE,
		processed_at TIMESTAMP WITH TIME ZONE,
		error_message TEXT
	)`)
	if err != nil {
		return fmt.Errorf("failed to create outbox table: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox (status, created_at)`)
	return err
}

// InsertOutboxTx inserta el mensaje dentro de la transacción del agregado.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, msg sharedDomain.OutboxMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, status, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(sharedDomain.OutboxPending), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}
	return nil
}

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxStore.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

func (r *OutboxRepoPostgres) FetchDue(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox WHERE status=$1 ORDER BY created_at, id LIMIT $2`,
		string(sharedDomain.OutboxPending), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []sharedDomain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (r *OutboxRepoPostgres) Get(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxMessage, error) {
	msg, err := scanOutbox(r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return msg, sharedDomain.ErrOutboxMessageNotFound
	}
	return msg, err
}

func (r *OutboxRepoPostgres) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, claimed_at=$2, attempts=attempts+1 WHERE id=$3 AND status=$4`,
		string(sharedDomain.OutboxProcessing), at, id, string(sharedDomain.OutboxPending),
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}
	if _, err := r.currentStatus(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *OutboxRepoPostgres) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, processed_at=$2, error_message=NULL WHERE id=$3 AND status=$4`,
		string(sharedDomain.OutboxProcessed), at, id, string(sharedDomain.OutboxProcessing),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.settle(ctx, res, id, sharedDomain.OutboxProcessed)
}

func (r *OutboxRepoPostgres) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, error_message=$2 WHERE id=$3 AND status=$4`,
		string(sharedDomain.OutboxFailed), reason, id, string(sharedDomain.OutboxProcessing),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.settle(ctx, res, id, sharedDomain.OutboxFailed)
}

func (r *OutboxRepoPostgres) ReclaimStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, claimed_at=NULL WHERE status=$2 AND claimed_at <= $3`,
		string(sharedDomain.OutboxPending), string(sharedDomain.OutboxProcessing), claimedBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepoPostgres) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, claimed_at=NULL WHERE status=$2 AND attempts < $3`,
		string(sharedDomain.OutboxPending), string(sharedDomain.OutboxFailed), maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepoPostgres) CountByStatus(ctx context.Context) (map[sharedDomain.OutboxStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[sharedDomain.OutboxStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[sharedDomain.OutboxStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *OutboxRepoPostgres) settle(ctx context.Context, res sql.Result, id uuid.UUID, target sharedDomain.OutboxStatus) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 1 {
		return nil
	}
	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return sharedDomain.ResolveUnapplied(current, target)
}

func (r *OutboxRepoPostgres) currentStatus(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM outbox WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", sharedDomain.ErrOutboxMessageNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return sharedDomain.OutboxStatus(status), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOutbox(s scanner) (sharedDomain.OutboxMessage, error) {
	var (
		msg                    sharedDomain.OutboxMessage
		status                 string
		payload                []byte
		claimedAt, processedAt sql.NullTime
		errorMessage           sql.NullString
	)
	err := s.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &payload,
		&status, &msg.Attempts, &msg.CreatedAt, &claimedAt, &processedAt, &errorMessage)
	if err != nil {
		return msg, err
	}
	msg.Payload = string(payload)
	msg.Status = sharedDomain.OutboxStatus(status)
	if claimedAt.Valid {
		msg.ClaimedAt = &claimedAt.Time
	}
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	if errorMessage.Valid {
		msg.ErrorMessage = &errorMessage.String
	}
	return msg, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxStore = (*OutboxRepoPostgres)(nil)
