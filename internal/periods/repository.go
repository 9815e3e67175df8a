package periods

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/platform/db"
)

// Repository persists periods and adjustments. State transitions and their
// audit entries commit in the same transaction.
type Repository interface {
	Get(ctx context.Context, id int64) (Period, error)
	FindActive(ctx context.Context, firmID int64) (Period, bool, error)
	ListByFirm(ctx context.Context, firmID int64) ([]Period, error)
	CreateActive(ctx context.Context, in OpenInput, name string, entry audit.Entry) (Period, error)
	MarkClosed(ctx context.Context, id, closedBy int64, notes string, entry audit.Entry) (Period, error)
	MarkReopened(ctx context.Context, id, reopenedBy int64, reason string, entry audit.Entry) (Period, error)
	InsertAdjustment(ctx context.Context, in AdjustmentInput, createdBy int64, entry audit.Entry) (Adjustment, error)
	ListAdjustments(ctx context.Context, periodID int64) ([]Adjustment, error)
}

type repository struct {
	pool     *pgxpool.Pool
	auditLog *audit.Logger
}

// NewRepository constructs a Repository backed by pgx.
func NewRepository(pool *pgxpool.Pool, auditLog *audit.Logger) Repository {
	return &repository{pool: pool, auditLog: auditLog}
}

const periodColumns = `id, firm_id, name, start_date, end_date, status, is_locked, notes,
closed_by, closed_at, closed_notes, reopened_by, reopened_at, reopen_reason, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1`, id)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return period, nil
}

func (r *repository) FindActive(ctx context.Context, firmID int64) (Period, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE firm_id = $1 AND status = $2`, firmID, StatusActive)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, err
	}
	return period, true, nil
}

func (r *repository) ListByFirm(ctx context.Context, firmID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE firm_id = $1 ORDER BY start_date DESC, id DESC`, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

// CreateActive inserts an ACTIVE period. A partial unique index on
// periods(firm_id) WHERE status = 'ACTIVE' guards the single-active invariant
// against concurrent opens.
func (r *repository) CreateActive(ctx context.Context, in OpenInput, name string, entry audit.Entry) (Period, error) {
	var period Period
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO periods (firm_id, name, start_date, end_date, status, is_locked, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6, NOW(), NOW())
RETURNING `+periodColumns,
			in.FirmID, name, in.StartDate, in.EndDate, StatusActive, in.Notes)
		var err error
		period, err = scanPeriod(row)
		if err != nil {
			return err
		}
		entry.Reference = formatID(period.ID)
		return r.auditLog.RecordTx(ctx, tx, entry)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, ok, findErr := r.FindActive(ctx, in.FirmID)
			if findErr == nil && ok {
				return Period{}, &OpenConflictError{ExistingID: existing.ID}
			}
			return Period{}, &OpenConflictError{}
		}
		return Period{}, err
	}
	return period, nil
}

// MarkClosed locks the period row, re-checks the state and records the close
// together with its audit entry.
func (r *repository) MarkClosed(ctx context.Context, id, closedBy int64, notes string, entry audit.Entry) (Period, error) {
	var period Period
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockPeriod(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		row := tx.QueryRow(ctx,
			`UPDATE periods
SET status = $2, is_locked = TRUE, closed_by = $3, closed_at = NOW(), closed_notes = $4, updated_at = NOW()
WHERE id = $1
RETURNING `+periodColumns,
			id, StatusClosed, closedBy, notes)
		period, err = scanPeriod(row)
		if err != nil {
			return err
		}
		return r.auditLog.RecordTx(ctx, tx, entry)
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// MarkReopened clears the lock and records the exceptional transition.
func (r *repository) MarkReopened(ctx context.Context, id, reopenedBy int64, reason string, entry audit.Entry) (Period, error) {
	var period Period
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockPeriod(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusClosed {
			return ErrNotClosed
		}
		row := tx.QueryRow(ctx,
			`UPDATE periods
SET status = $2, is_locked = FALSE, reopened_by = $3, reopened_at = NOW(), reopen_reason = $4, updated_at = NOW()
WHERE id = $1
RETURNING `+periodColumns,
			id, StatusActive, reopenedBy, reason)
		period, err = scanPeriod(row)
		if err != nil {
			return err
		}
		return r.auditLog.RecordTx(ctx, tx, entry)
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// InsertAdjustment records a post-close correction. The period row is locked
// so a concurrent reopen cannot race the CLOSED check.
func (r *repository) InsertAdjustment(ctx context.Context, in AdjustmentInput, createdBy int64, entry audit.Entry) (Adjustment, error) {
	var adjustment Adjustment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockPeriod(ctx, tx, in.PeriodID)
		if err != nil {
			return err
		}
		if current.Status != StatusClosed {
			return ErrNotClosed
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO period_adjustments (period_id, adjustment_type, description, old_value, new_value, reference_table, reference_id, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
RETURNING id, period_id, adjustment_type, description, old_value, new_value, reference_table, reference_id, created_by, created_at`,
			in.PeriodID, in.Type, in.Description, in.OldValue, in.NewValue, in.ReferenceTable, in.ReferenceID, createdBy)
		if err := row.Scan(
			&adjustment.ID, &adjustment.PeriodID, &adjustment.Type, &adjustment.Description,
			&adjustment.OldValue, &adjustment.NewValue, &adjustment.ReferenceTable,
			&adjustment.ReferenceID, &adjustment.CreatedBy, &adjustment.CreatedAt); err != nil {
			return err
		}
		return r.auditLog.RecordTx(ctx, tx, entry)
	})
	if err != nil {
		return Adjustment{}, err
	}
	return adjustment, nil
}

func (r *repository) ListAdjustments(ctx context.Context, periodID int64) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, period_id, adjustment_type, description, old_value, new_value, reference_table, reference_id, created_by, created_at
FROM period_adjustments WHERE period_id = $1 ORDER BY created_at, id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.PeriodID, &a.Type, &a.Description, &a.OldValue, &a.NewValue,
			&a.ReferenceTable, &a.ReferenceID, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func lockPeriod(ctx context.Context, tx pgx.Tx, id int64) (Period, error) {
	row := tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = $1 FOR UPDATE`, id)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return period, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (Period, error) {
	var (
		period      Period
		notes       *string
		closedNotes *string
		reason      *string
	)
	err := row.Scan(
		&period.ID, &period.FirmID, &period.Name, &period.StartDate, &period.EndDate,
		&period.Status, &period.Locked, &notes,
		&period.ClosedBy, &period.ClosedAt, &closedNotes,
		&period.ReopenedBy, &period.ReopenedAt, &reason,
		&period.CreatedAt, &period.UpdatedAt)
	if err != nil {
		return Period{}, err
	}
	if notes != nil {
		period.Notes = *notes
	}
	if closedNotes != nil {
		period.ClosedNotes = *closedNotes
	}
	if reason != nil {
		period.ReopenReason = *reason
	}
	return period, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
