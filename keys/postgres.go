package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores keyrings in the signing_keyrings table created
// by the db migrations.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Load(ctx context.Context, set string) (*Keyring, error) {
	var payload string
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM signing_keyrings WHERE set_name = $1`,
		set,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyringNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return UnmarshalKeyring([]byte(payload))
}

func (r *PostgresRepository) CompareAndSwap(ctx context.Context, set, expectedCurrentID string, next *Keyring) error {
	data, err := MarshalKeyring(next)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag
	if expectedCurrentID == "" {
		tag, err = r.pool.Exec(ctx, `
			INSERT INTO signing_keyrings (set_name, current_key_id, payload, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (set_name) DO NOTHING`,
			set, next.Current.ID, string(data),
		)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE signing_keyrings
			SET current_key_id = $3, payload = $4, updated_at = now()
			WHERE set_name = $1 AND current_key_id = $2`,
			set, expectedCurrentID, next.Current.ID, string(data),
		)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
