// Package postgres provides the Postgres-backed interval store. Every
// mutation records a notification row in the outbox within the same
// transaction, so the live pipeline sees exactly the mutations that
// committed.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timelog/internal/domain"
	"example.com/timelog/internal/observability"
)

// Repository provides Postgres-backed persistence for intervals and their
// outbox signals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const intervalColumns = `id, owner_id, title, tags, start_at, end_at, created_at, updated_at`

func scanInterval(row pgx.Row) (*domain.TimeInterval, error) {
	var iv domain.TimeInterval
	if err := row.Scan(&iv.ID, &iv.OwnerID, &iv.Title, &iv.Tags, &iv.StartAt, &iv.EndAt, &iv.CreatedAt, &iv.UpdatedAt); err != nil {
		return nil, err
	}
	return &iv, nil
}

// ListIntervals returns every interval for the owner, newest start first.
func (r *Repository) ListIntervals(ctx context.Context, ownerID string) ([]domain.TimeInterval, error) {
	const query = `SELECT ` + intervalColumns + ` FROM intervals WHERE owner_id=$1 ORDER BY start_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimeInterval
	for rows.Next() {
		iv, err := scanInterval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *iv)
	}
	return out, rows.Err()
}

// ListIntervalsPage returns intervals for the owner with cursor pagination.
func (r *Repository) ListIntervalsPage(ctx context.Context, ownerID string, cursor *domain.Cursor, limit int) ([]domain.TimeInterval, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	args := []interface{}{ownerID, limit}
	query := `SELECT ` + intervalColumns + ` FROM intervals WHERE owner_id=$1`
	if cursor != nil {
		query += ` AND (start_at, id) < ($3, $4)`
		args = append(args, cursor.StartAt, cursor.ID)
	}
	query += ` ORDER BY start_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []domain.TimeInterval
	for rows.Next() {
		iv, err := scanInterval(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, *iv)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(out) == limit {
		last := out[len(out)-1]
		next = &domain.Cursor{StartAt: last.StartAt, ID: last.ID}
	}
	return out, next, nil
}

// GetInterval retrieves one interval scoped to the owner. A missing row
// yields (nil, nil).
func (r *Repository) GetInterval(ctx context.Context, ownerID, id string) (*domain.TimeInterval, error) {
	const query = `SELECT ` + intervalColumns + ` FROM intervals WHERE owner_id=$1 AND id=$2`

	iv, err := scanInterval(r.pool.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return iv, nil
}

// FindOpenInterval returns the owner's running interval, if any.
func (r *Repository) FindOpenInterval(ctx context.Context, ownerID string) (*domain.TimeInterval, error) {
	const query = `SELECT ` + intervalColumns + ` FROM intervals WHERE owner_id=$1 AND end_at IS NULL`

	iv, err := scanInterval(r.pool.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return iv, nil
}

// CreateInterval persists the interval and records interval.created inside a
// single transaction.
func (r *Repository) CreateInterval(ctx context.Context, iv domain.TimeInterval) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO intervals (id, owner_id, title, tags, start_at, end_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, insert,
		iv.ID, iv.OwnerID, iv.Title, iv.Tags, iv.StartAt, iv.EndAt, iv.CreatedAt, iv.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, iv.OwnerID, "interval.created"); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordIntervalPersisted(iv.UpdatedAt)
	return nil
}

// UpdateInterval rewrites the interval and records interval.stopped when the
// write closes a previously open interval, interval.changed otherwise.
func (r *Repository) UpdateInterval(ctx context.Context, iv domain.TimeInterval) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var wasOpen bool
	err = tx.QueryRow(ctx, `SELECT end_at IS NULL FROM intervals WHERE owner_id=$1 AND id=$2 FOR UPDATE`, iv.OwnerID, iv.ID).Scan(&wasOpen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrIntervalNotFound
		}
		return err
	}

	const update = `UPDATE intervals SET title=$3, tags=$4, start_at=$5, end_at=$6, updated_at=$7
        WHERE owner_id=$1 AND id=$2`

	_, err = tx.Exec(ctx, update,
		iv.OwnerID, iv.ID, iv.Title, iv.Tags, iv.StartAt, iv.EndAt, iv.UpdatedAt,
	)
	if err != nil {
		return err
	}

	eventType := "interval.changed"
	if wasOpen && iv.EndAt != nil {
		eventType = "interval.stopped"
	}
	if err = insertOutbox(ctx, tx, iv.OwnerID, eventType); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordIntervalPersisted(iv.UpdatedAt)
	return nil
}

// DeleteInterval removes the interval and records interval.deleted.
func (r *Repository) DeleteInterval(ctx context.Context, ownerID, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM intervals WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrIntervalNotFound
		return err
	}

	if err = insertOutbox(ctx, tx, ownerID, "interval.deleted"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, ownerID, eventType string) error {
	const stmt = `INSERT INTO outbox (owner_id, event_type) VALUES ($1,$2)`
	_, err := tx.Exec(ctx, stmt, ownerID, eventType)
	return err
}
