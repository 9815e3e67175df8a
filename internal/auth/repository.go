package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pampa-erp/pampa-erp/internal/shared"
)

// Repository persists users, sessions, and firm access grants.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	ListFirmAccess(ctx context.Context, userID int64) ([]int64, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT id, email, full_name, password_hash, is_active, created_at FROM users WHERE email = $1`, email)
}

func (r *repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.findOne(ctx, `SELECT id, email, full_name, password_hash, is_active, created_at FROM users WHERE id = $1`, id)
}

func (r *repository) findOne(ctx context.Context, sql string, arg any) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, sql, arg).
		Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListFirmAccess returns ids of firms the user holds a non-revoked grant for.
func (r *repository) ListFirmAccess(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT firm_id FROM user_firm_access WHERE user_id = $1 AND revoked_at IS NULL ORDER BY firm_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var firmIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		firmIDs = append(firmIDs, id)
	}
	return firmIDs, rows.Err()
}

func (r *repository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_sessions (id, user_id, expires_at, ip, user_agent, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, userID, expiresAt, ip, ua)
	return err
}

func (r *repository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return err
}
