package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByIdentifier(ctx context.Context, role principal.Role, identifier string) (*Account, error)
	FindByID(ctx context.Context, role principal.Role, id string) (*Account, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetOnline(ctx context.Context, id string, online bool) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, role, username, email, name, password_hash, is_active, is_super_admin,
	requires_verification, avg_rating, total_ratings, is_online, created_at, last_login`

// FindByIdentifier fetches an account of role by username or email.
func (r *PGRepository) FindByIdentifier(ctx context.Context, role principal.Role, identifier string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE role = $1 AND (lower(username) = $2 OR lower(email) = $2) LIMIT 1`, string(role), identifier)
	return scanAccount(row)
}

// FindByID fetches an account of role by primary key.
func (r *PGRepository) FindByID(ctx context.Context, role principal.Role, id string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE role = $1 AND id = $2`, string(role), id)
	return scanAccount(row)
}

// TouchLastLogin stamps the most recent successful login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_login = $2 WHERE id = $1`, id, at.UTC())
	return err
}

// SetOnline toggles the presence flag of a customer service agent.
func (r *PGRepository) SetOnline(ctx context.Context, id string, online bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET is_online = $2 WHERE id = $1 AND role = $3`, id, online, string(principal.RoleCustomerService))
	return err
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a    Account
		role string
	)
	err := row.Scan(&a.ID, &role, &a.Username, &a.Email, &a.Name, &a.PasswordHash, &a.IsActive, &a.IsSuperAdmin,
		&a.RequiresVerification, &a.AvgRating, &a.TotalRatings, &a.IsOnline, &a.CreatedAt, &a.LastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	a.Role = principal.Role(role)
	return &a, nil
}

var _ Repository = (*PGRepository)(nil)
