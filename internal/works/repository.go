package works

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists work records.
type Repository interface {
	Insert(ctx context.Context, in CreateInput) (Record, error)
	Load(ctx context.Context, id int64) (Record, error)
	UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) (Record, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]Record, error)
	CountPending(ctx context.Context, periodID int64, kind Kind) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const recordColumns = `id, period_id, premise_id, kind, status, description, work_date, created_by, approved_by, approved_at, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, in CreateInput) (Record, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO work_records (period_id, premise_id, kind, status, description, work_date, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
RETURNING `+recordColumns,
		in.PeriodID, in.PremiseID, in.Kind, StatusDraft, in.Description, in.WorkDate, in.ActorID)
	return scanRecord(row)
}

func (r *repository) Load(ctx context.Context, id int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM work_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return record, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) (Record, error) {
	var approvedBy any
	var approvedAt any
	if status == StatusApproved {
		approvedBy = actorID
		approvedAt = time.Now()
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE work_records
SET status = $2, approved_by = COALESCE($3, approved_by), approved_at = COALESCE($4, approved_at), updated_at = NOW()
WHERE id = $1
RETURNING `+recordColumns,
		id, status, approvedBy, approvedAt)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return record, nil
}

func (r *repository) ListByPeriod(ctx context.Context, periodID int64) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM work_records WHERE period_id = $1 ORDER BY work_date, id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountPending counts records outside the terminal statuses for a period.
func (r *repository) CountPending(ctx context.Context, periodID int64, kind Kind) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM work_records WHERE period_id = $1 AND kind = $2 AND status NOT IN ($3, $4, $5)`,
		periodID, kind, StatusApproved, StatusClosed, StatusCancelled).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	err := row.Scan(
		&record.ID, &record.PeriodID, &record.PremiseID, &record.Kind, &record.Status,
		&record.Description, &record.WorkDate, &record.CreatedBy,
		&record.ApprovedBy, &record.ApprovedAt, &record.CreatedAt, &record.UpdatedAt)
	return record, err
}
