package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Repository defines persistence operations for the linkage layer.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Transport, error)
	// ClaimLink sets targetID's pointer to sourceID only while it is
	// currently null. The claim is the serialization point for racing
	// connects on one target: exactly one caller observes claimed=true.
	ClaimLink(ctx context.Context, targetID, sourceID int64) (claimed bool, err error)
	// ClearLink nulls the transport's own pointer. Clearing an already
	// null pointer is a no-op, so retries are safe.
	ClearLink(ctx context.Context, id int64) error
	// ClearLinksTo nulls the pointer of every transport aimed at id.
	ClearLinksTo(ctx context.Context, id int64) (int64, error)
	FindWhereConnectedEquals(ctx context.Context, id int64) ([]int64, error)
	SetDriver(ctx context.Context, id int64, driverName *string) error
	ListPage(ctx context.Context, limit, offset int) ([]Transport, error)
	CountAll(ctx context.Context) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID retrieves a transport by ID.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Transport, error) {
	const query = `
		SELECT id, reference, status, driver_name, vehicle_number,
		       scheduled_at, connected_transport_id, created_at, updated_at
		FROM transports
		WHERE id = $1
	`
	var t Transport
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Reference, &t.Status, &t.DriverName, &t.VehicleNumber,
		&t.ScheduledAt, &t.ConnectedTransportID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("transport: find: %w", err)
	}
	return &t, nil
}

// ClaimLink performs the conditional pointer write. The WHERE clause only
// matches while the target is unlinked, so two racing claims cannot both
// report success. A unique index on connected_transport_id backs the
// single-incoming-edge invariant at the storage level; a violation maps
// to the same Conflict the conditional path produces.
func (r *PGRepository) ClaimLink(ctx context.Context, targetID, sourceID int64) (bool, error) {
	const query = `
		UPDATE transports
		SET connected_transport_id = $2, updated_at = now()
		WHERE id = $1 AND connected_transport_id IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, targetID, sourceID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("transport: claim link: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearLink nulls the transport's own pointer.
func (r *PGRepository) ClearLink(ctx context.Context, id int64) error {
	const query = `
		UPDATE transports
		SET connected_transport_id = NULL, updated_at = now()
		WHERE id = $1 AND connected_transport_id IS NOT NULL
	`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("transport: clear link: %w", err)
	}
	return nil
}

// ClearLinksTo nulls every pointer aimed at id.
func (r *PGRepository) ClearLinksTo(ctx context.Context, id int64) (int64, error) {
	const query = `
		UPDATE transports
		SET connected_transport_id = NULL, updated_at = now()
		WHERE connected_transport_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("transport: clear links to: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindWhereConnectedEquals lists the ids of transports pointing at id.
func (r *PGRepository) FindWhereConnectedEquals(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM transports WHERE connected_transport_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("transport: find incoming: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var incoming int64
		if err := rows.Scan(&incoming); err != nil {
			return nil, fmt.Errorf("transport: scan incoming: %w", err)
		}
		ids = append(ids, incoming)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transport: iterate incoming: %w", err)
	}
	return ids, nil
}

// ListPage returns a page of transports ordered by schedule.
func (r *PGRepository) ListPage(ctx context.Context, limit, offset int) ([]Transport, error) {
	const query = `
		SELECT id, reference, status, driver_name, vehicle_number,
		       scheduled_at, connected_transport_id, created_at, updated_at
		FROM transports
		ORDER BY scheduled_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transport: list: %w", err)
	}
	defer rows.Close()

	var transports []Transport
	for rows.Next() {
		var t Transport
		if err := rows.Scan(
			&t.ID, &t.Reference, &t.Status, &t.DriverName, &t.VehicleNumber,
			&t.ScheduledAt, &t.ConnectedTransportID, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("transport: scan list: %w", err)
		}
		transports = append(transports, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transport: iterate list: %w", err)
	}
	return transports, nil
}

// CountAll returns the total number of transports.
func (r *PGRepository) CountAll(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transports`).Scan(&total); err != nil {
		return 0, fmt.Errorf("transport: count: %w", err)
	}
	return total, nil
}

// SetDriver copies a driver assignment onto the transport.
func (r *PGRepository) SetDriver(ctx context.Context, id int64, driverName *string) error {
	const query = `UPDATE transports SET driver_name = $2, updated_at = now() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, driverName); err != nil {
		return fmt.Errorf("transport: set driver: %w", err)
	}
	return nil
}
