package firms

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads firm and premise master data.
type Repository interface {
	GetFirm(ctx context.Context, id int64) (Firm, error)
	ListFirms(ctx context.Context) ([]Firm, error)
	GetPremise(ctx context.Context, id int64) (Premise, error)
	ListPremises(ctx context.Context, firmID int64) ([]Premise, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetFirm(ctx context.Context, id int64) (Firm, error) {
	var firm Firm
	err := r.pool.QueryRow(ctx, `SELECT id, name, tax_id, created_at FROM firms WHERE id = $1`, id).
		Scan(&firm.ID, &firm.Name, &firm.TaxID, &firm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Firm{}, ErrFirmNotFound
		}
		return Firm{}, err
	}
	return firm, nil
}

func (r *repository) ListFirms(ctx context.Context) ([]Firm, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, tax_id, created_at FROM firms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var firms []Firm
	for rows.Next() {
		var firm Firm
		if err := rows.Scan(&firm.ID, &firm.Name, &firm.TaxID, &firm.CreatedAt); err != nil {
			return nil, err
		}
		firms = append(firms, firm)
	}
	return firms, rows.Err()
}

func (r *repository) GetPremise(ctx context.Context, id int64) (Premise, error) {
	var premise Premise
	err := r.pool.QueryRow(ctx, `SELECT id, firm_id, name, location, hectares, created_at FROM premises WHERE id = $1`, id).
		Scan(&premise.ID, &premise.FirmID, &premise.Name, &premise.Location, &premise.Hectares, &premise.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Premise{}, ErrPremiseNotFound
		}
		return Premise{}, err
	}
	return premise, nil
}

func (r *repository) ListPremises(ctx context.Context, firmID int64) ([]Premise, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, firm_id, name, location, hectares, created_at FROM premises WHERE firm_id = $1 ORDER BY name`, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var premises []Premise
	for rows.Next() {
		var premise Premise
		if err := rows.Scan(&premise.ID, &premise.FirmID, &premise.Name, &premise.Location, &premise.Hectares, &premise.CreatedAt); err != nil {
			return nil, err
		}
		premises = append(premises, premise)
	}
	return premises, rows.Err()
}
