package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads valuation source rows and persists run records.
type Repository interface {
	ActiveAnimals(ctx context.Context, premiseID int64, asOf time.Time) ([]Animal, error)
	LatestWeights(ctx context.Context, animalIDs []int64, asOf time.Time) (map[int64]float64, error)
	InputsInStock(ctx context.Context, premiseID int64) ([]InputItem, error)
	ReceiptMovements(ctx context.Context, inputID int64, asOf time.Time) ([]StockMovement, error)
	Insert(ctx context.Context, record Record) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]Record, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ActiveAnimals(ctx context.Context, premiseID int64, asOf time.Time) ([]Animal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.premise_id, a.category_id, c.name, a.initial_kg, a.created_at
FROM animals a
JOIN livestock_categories c ON c.id = a.category_id
WHERE a.premise_id = $1 AND a.status = 'ACTIVE' AND a.created_at <= $2
ORDER BY a.id`, premiseID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var animals []Animal
	for rows.Next() {
		var a Animal
		if err := rows.Scan(&a.ID, &a.PremiseID, &a.CategoryID, &a.CategoryName, &a.InitialKg, &a.CreatedAt); err != nil {
			return nil, err
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

// LatestWeights returns the most recent weighing at or before asOf per animal.
// Animals with no weighing are absent from the map.
func (r *repository) LatestWeights(ctx context.Context, animalIDs []int64, asOf time.Time) (map[int64]float64, error) {
	if len(animalIDs) == 0 {
		return map[int64]float64{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (animal_id) animal_id, kg
FROM weight_events
WHERE animal_id = ANY($1) AND weighed_at <= $2
ORDER BY animal_id, weighed_at DESC`, animalIDs, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weights := make(map[int64]float64, len(animalIDs))
	for rows.Next() {
		var animalID int64
		var kg float64
		if err := rows.Scan(&animalID, &kg); err != nil {
			return nil, err
		}
		weights[animalID] = kg
	}
	return weights, rows.Err()
}

func (r *repository) InputsInStock(ctx context.Context, premiseID int64) ([]InputItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.premise_id, i.category_id, c.name, i.stock, i.unit_price
FROM inputs i
JOIN input_categories c ON c.id = i.category_id
WHERE i.premise_id = $1 AND i.stock > 0
ORDER BY i.id`, premiseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InputItem
	for rows.Next() {
		var item InputItem
		if err := rows.Scan(&item.ID, &item.PremiseID, &item.CategoryID, &item.CategoryName, &item.Stock, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) ReceiptMovements(ctx context.Context, inputID int64, asOf time.Time) ([]StockMovement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT input_id, kind, quantity, unit_cost, moved_at
FROM stock_movements
WHERE input_id = $1 AND kind IN ($2, $3) AND moved_at <= $4
ORDER BY moved_at, input_id`, inputID, MovementEntry, MovementPurchase, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.InputID, &m.Kind, &m.Quantity, &m.UnitCost, &m.At); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const recordColumns = `id, firm_id, premise_id, period_id, valuation_date, valuation_type, scope, method, price_source,
item_count, total_qty, total_value, categories, notes, created_by, created_at`

// Insert persists a run record. A unique index on
// (premise_id, valuation_type, valuation_date, scope) makes runs append-once.
func (r *repository) Insert(ctx context.Context, record Record) (Record, error) {
	categoriesJSON, err := json.Marshal(record.Categories)
	if err != nil {
		return Record{}, err
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO inventory_valuations
(firm_id, premise_id, period_id, valuation_date, valuation_type, scope, method, price_source, item_count, total_qty, total_value, categories, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
RETURNING `+recordColumns,
		record.FirmID, record.PremiseID, record.PeriodID, record.Date, record.Type, record.Scope,
		record.Method, record.PriceSource, record.Count, record.TotalQty, record.TotalValue,
		categoriesJSON, record.Notes, record.CreatedBy)
	saved, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateRun
		}
		return Record{}, err
	}
	return saved, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_valuations WHERE id = $1`, id)
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
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM inventory_valuations WHERE period_id = $1 ORDER BY valuation_date, id`, periodID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	var categoriesJSON []byte
	err := row.Scan(
		&record.ID, &record.FirmID, &record.PremiseID, &record.PeriodID, &record.Date,
		&record.Type, &record.Scope, &record.Method, &record.PriceSource,
		&record.Count, &record.TotalQty, &record.TotalValue, &categoriesJSON,
		&record.Notes, &record.CreatedBy, &record.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	if len(categoriesJSON) > 0 {
		if err := json.Unmarshal(categoriesJSON, &record.Categories); err != nil {
			return Record{}, err
		}
	}
	return record, nil
}
