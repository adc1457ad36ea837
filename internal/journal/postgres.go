package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresJournal persists receipts in PostgreSQL.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal constructs a Postgres-backed journal.
func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// EnsureSchema creates the receipts table when missing.
func (j *PostgresJournal) EnsureSchema(ctx context.Context) error {
	_, err := j.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS attendance_receipts (
        id           UUID PRIMARY KEY,
        record_id    BIGINT NOT NULL,
        position_a   INTEGER NOT NULL,
        position_b   INTEGER NOT NULL,
        submitted_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS attendance_receipts_record_idx
        ON attendance_receipts (record_id, submitted_at DESC)`)
	if err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// Record inserts a receipt.
func (j *PostgresJournal) Record(ctx context.Context, r Receipt) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(ctx, `INSERT INTO attendance_receipts (id, record_id, position_a, position_b, submitted_at)
        VALUES ($1, $2, $3, $4, $5)`, id, r.RecordID, r.Challenge.PositionA, r.Challenge.PositionB, r.SubmittedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateReceipt
	}
	return err
}

// List returns the receipts for recordID, newest first.
func (j *PostgresJournal) List(ctx context.Context, recordID int64) ([]Receipt, error) {
	rows, err := j.db.Query(ctx, `SELECT id, record_id, position_a, position_b, submitted_at
        FROM attendance_receipts WHERE record_id = $1 ORDER BY submitted_at DESC`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Receipt, 0)
	for rows.Next() {
		var (
			id          uuid.UUID
			submittedAt time.Time
			r           Receipt
		)
		if err := rows.Scan(&id, &r.RecordID, &r.Challenge.PositionA, &r.Challenge.PositionB, &submittedAt); err != nil {
			return nil, err
		}
		r.ID = id.String()
		r.SubmittedAt = submittedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
