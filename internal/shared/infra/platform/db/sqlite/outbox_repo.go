package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Driver de SQLite
)

// DSN añade _time_format=sqlite para que las fechas se guarden en un formato
// ordenable como texto (las comparaciones de created_at/claimed_at dependen de ello).
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
}

// Open abre la base de datos. SQLite admite un único escritor: con una sola conexión
// las transacciones del outbox no compiten entre sí.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, status, attempts,
	created_at, claimed_at, processed_at, error_message`

// InitOutboxSchema crea la tabla outbox si no existe.
func InitOutboxSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING','PROCESSING','PROCESSED','FAILED')),
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME,
		processed_at DATETIME,
		error_message TEXT
	)`)
	if err != nil {
		return fmt.Errorf("failed to create outbox table: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox (status, created_at)`)
	return err
}

// InsertOutboxTx es el "stage" del outbox: inserta dentro de la transacción del agregado.
// Si la transacción hace rollback, el mensaje desaparece con ella.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, msg sharedDomain.OutboxMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, status, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		msg.ID.String(), msg.AggregateType, msg.AggregateID.String(), msg.EventType, msg.Payload,
		string(sharedDomain.OutboxPending), msg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}
	return nil
}

// OutboxRepoSQLite implementa sharedDomain.OutboxStore.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// FetchDue devuelve los PENDING más antiguos primero.
func (r *OutboxRepoSQLite) FetchDue(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox
		 WHERE status = ?
		 ORDER BY created_at, id
		 LIMIT ?`, string(sharedDomain.OutboxPending), limit,
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

func (r *OutboxRepoSQLite) Get(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxMessage, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id.String())
	msg, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, sharedDomain.ErrOutboxMessageNotFound
	}
	return msg, err
}

// MarkProcessing reclama la fila sólo si sigue PENDING (compare-and-swap).
func (r *OutboxRepoSQLite) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, claimed_at = ?, attempts = attempts + 1
		 WHERE id = ? AND status = ?`,
		string(sharedDomain.OutboxProcessing), at.UTC(), id.String(), string(sharedDomain.OutboxPending),
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.currentStatus(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *OutboxRepoSQLite) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, processed_at = ?, error_message = NULL
		 WHERE id = ? AND status = ?`,
		string(sharedDomain.OutboxProcessed), at.UTC(), id.String(), string(sharedDomain.OutboxProcessing),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.settle(ctx, res, id, sharedDomain.OutboxProcessed)
}

func (r *OutboxRepoSQLite) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		string(sharedDomain.OutboxFailed), reason, id.String(), string(sharedDomain.OutboxProcessing),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.settle(ctx, res, id, sharedDomain.OutboxFailed)
}

// ReclaimStuck devuelve a PENDING las filas que llevan en PROCESSING desde claimedBefore o antes
// (el proceso que las reclamó murió a mitad de ciclo).
func (r *OutboxRepoSQLite) ReclaimStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, claimed_at = NULL
		 WHERE status = ? AND claimed_at <= ?`,
		string(sharedDomain.OutboxPending), string(sharedDomain.OutboxProcessing), claimedBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepoSQLite) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, claimed_at = NULL
		 WHERE status = ? AND attempts < ?`,
		string(sharedDomain.OutboxPending), string(sharedDomain.OutboxFailed), maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepoSQLite) CountByStatus(ctx context.Context) (map[sharedDomain.OutboxStatus]int64, error) {
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

// settle interpreta un UPDATE condicional que no afectó filas.
func (r *OutboxRepoSQLite) settle(ctx context.Context, res sql.Result, id uuid.UUID, target sharedDomain.OutboxStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if n == 1 {
		return nil
	}
	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return sharedDomain.ResolveUnapplied(current, target)
}

func (r *OutboxRepoSQLite) currentStatus(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM outbox WHERE id = ?`, id.String()).Scan(&status)
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
		claimedAt, processedAt sql.NullTime
		errorMessage           sql.NullString
	)
	err := s.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload,
		&status, &msg.Attempts, &msg.CreatedAt, &claimedAt, &processedAt, &errorMessage)
	if err != nil {
		return msg, err
	}
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

var _ sharedDomain.OutboxStore = (*OutboxRepoSQLite)(nil)
