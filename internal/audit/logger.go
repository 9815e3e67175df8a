package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertEntrySQL = `INSERT INTO audit_entries (firm_id, tipo, descripcion, modulo_origen, usuario, referencia, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Logger writes records into audit_entries.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new audit Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Record persists the entry outside of any caller transaction.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	if l == nil {
		return errors.New("audit: logger not initialised")
	}
	return insertEntry(ctx, l.pool, entry)
}

// RecordTx persists the entry inside the caller's transaction so a lifecycle
// transition and its trail commit or roll back together.
func (l *Logger) RecordTx(ctx context.Context, tx pgx.Tx, entry Entry) error {
	if l == nil {
		return errors.New("audit: logger not initialised")
	}
	return insertEntry(ctx, tx, entry)
}

func insertEntry(ctx context.Context, db execer, entry Entry) error {
	if entry.Type == "" || entry.Module == "" || entry.Reference == "" {
		return errors.New("audit: entry requires type/module/reference")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, insertEntrySQL,
		entry.FirmID, entry.Type, entry.Description, entry.Module, entry.ActorID, entry.Reference, metaJSON, entry.At)
	return err
}
