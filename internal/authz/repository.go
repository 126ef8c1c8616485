package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Repository defines persistence operations for the authz module.
type Repository interface {
	FindByID(ctx context.Context, principalID string) (*Principal, error)
	UpdatePermissionsBlob(ctx context.Context, principalID string, blob []byte) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches a principal row.
func (r *PGRepository) FindByID(ctx context.Context, principalID string) (*Principal, error) {
	const query = `
		SELECT id, email, role, is_admin, permissions
		FROM principals
		WHERE id = $1
	`
	var p Principal
	var role string
	err := r.pool.QueryRow(ctx, query, principalID).Scan(&p.ID, &p.Email, &role, &p.IsAdmin, &p.PermissionsBlob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("authz: find principal: %w", err)
	}
	p.Role = Role(role)
	return &p, nil
}

// UpdatePermissionsBlob persists the serialized override document.
func (r *PGRepository) UpdatePermissionsBlob(ctx context.Context, principalID string, blob []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE principals SET permissions = $2, updated_at = now() WHERE id = $1`,
		principalID, blob)
	if err != nil {
		return fmt.Errorf("authz: update permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
