package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const sessionColumns = `handle, user_id, jwt_payload, db_payload, lineage_hash, expires_at, created_at`

// PostgresStore keeps sessions in the sessions table and lineage history in
// session_lineage_history. Tables come from the db package migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore returns a Store over pool. now may be nil.
func NewPostgresStore(pool *pgxpool.Pool, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{pool: pool, now: now}
}

func scanRow(row pgx.CollectableRow) (Row, error) {
	var (
		r             Row
		jwtRaw, dbRaw string
	)
	err := row.Scan(&r.Handle, &r.UserID, &jwtRaw, &dbRaw, &r.LineageHash, &r.ExpiresAt, &r.CreatedAt)
	r.JWTPayload = json.RawMessage(jwtRaw)
	r.DBPayload = json.RawMessage(dbRaw)
	return r, err
}

func (s *PostgresStore) CreateSession(ctx context.Context, row Row) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.Handle, row.UserID, string(row.JWTPayload), string(row.DBPayload),
			row.LineageHash, row.ExpiresAt, row.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO session_lineage_history (handle, lineage_hash, recorded_at, retain_until)
			VALUES ($1, $2, $3, $4)`,
			row.Handle, row.LineageHash, row.CreatedAt, row.ExpiresAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateHandle
		}
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, handle string) (*Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE handle = $1 AND expires_at > $2`,
		handle, s.now(),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	row, err := pgx.CollectOneRow(rows, scanRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &row, nil
}

// AdvanceLineage relies on the row lock taken by the conditional UPDATE: a
// concurrent caller with the same expectedHash blocks, then re-evaluates the
// WHERE clause against the new hash and updates nothing.
func (s *PostgresStore) AdvanceLineage(ctx context.Context, handle, expectedHash, nextHash string, nextExpiry time.Time) (AdvanceResult, *Row, error) {
	var (
		result  AdvanceResult
		updated Row
	)
	now := s.now()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE sessions
			SET lineage_hash = $3, expires_at = $4
			WHERE handle = $1 AND lineage_hash = $2 AND expires_at > $5
			RETURNING `+sessionColumns,
			handle, expectedHash, nextHash, nextExpiry, now,
		)
		if err != nil {
			return err
		}
		updated, err = pgx.CollectOneRow(rows, scanRow)
		if err == nil {
			result = Advanced
			_, err = tx.Exec(ctx, `
				INSERT INTO session_lineage_history (handle, lineage_hash, recorded_at, retain_until)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (handle, lineage_hash) DO NOTHING`,
				handle, nextHash, now, nextExpiry,
			)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE session_lineage_history SET retain_until = $2 WHERE handle = $1`,
				handle, nextExpiry,
			)
			return err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE handle = $1 AND expires_at > $2)`,
			handle, now,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			result = Mismatch
		} else {
			result = NotFound
		}
		return nil
	})
	if err != nil {
		return 0, nil, unavailable(err)
	}
	if result != Advanced {
		return result, nil, nil
	}
	return Advanced, &updated, nil
}

func (s *PostgresStore) IsLineageHistorical(ctx context.Context, handle, hash string) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM session_lineage_history WHERE handle = $1 AND lineage_hash = $2)`,
		handle, hash,
	).Scan(&seen)
	if err != nil {
		return false, unavailable(err)
	}
	return seen, nil
}

func (s *PostgresStore) UpdatePayload(ctx context.Context, handle string, jwtPayload, dbPayload json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET jwt_payload = COALESCE($2, jwt_payload),
		    db_payload = COALESCE($3, db_payload)
		WHERE handle = $1 AND expires_at > $4`,
		handle, nullableText(jwtPayload), nullableText(dbPayload), s.now(),
	)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableText(v json.RawMessage) *string {
	if v == nil {
		return nil
	}
	s := string(v)
	return &s
}

func (s *PostgresStore) Revoke(ctx context.Context, handles ...string) (int, error) {
	if len(handles) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE handle = ANY($1) AND expires_at > $2`,
		handles, s.now(),
	)
	if err != nil {
		return 0, unavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) HandlesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT handle FROM sessions WHERE user_id = $1 AND expires_at > $2 ORDER BY created_at`,
		userID, s.now(),
	)
	if err != nil {
		return nil, unavailable(err)
	}
	handles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable(err)
	}
	return handles, nil
}

func (s *PostgresStore) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM sessions WHERE expires_at > $1`, s.now(),
	).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *PostgresStore) HistoricalCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM session_lineage_history`).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// PurgeHistory deletes expired session rows, then lineage history whose
// retention has elapsed and whose session no longer exists. It returns the
// number of history records removed.
func (s *PostgresStore) PurgeHistory(ctx context.Context, retention time.Duration) (int, error) {
	now := s.now()
	var purged int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			DELETE FROM session_lineage_history h
			WHERE h.retain_until + make_interval(secs => $2) <= $1
			  AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.handle = h.handle)`,
			now, retention.Seconds(),
		)
		if err != nil {
			return err
		}
		purged = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return int(purged), nil
}
