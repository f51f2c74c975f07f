package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new profile and returns it.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName, userType string) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (email, password_hash, full_name, user_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, email, passwordHash, fullName, userType).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Email = email
	p.FullName = fullName
	p.UserType = userType
	return &p, nil
}

// GetByEmail returns the profile and password hash for login, or nil when no
// profile exists for the email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Profile, string, error) {
	var p Profile
	var passwordHash string
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, full_name, user_type, password_hash, created_at
		FROM profiles WHERE email = $1
	`, email).Scan(&p.ID, &p.Email, &p.FullName, &p.UserType, &passwordHash, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &p, passwordHash, nil
}
