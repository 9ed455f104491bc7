package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskflowhq/taskflow/internal/observability"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// MaxActiveTokens caps the rotating per-user list; the oldest entry is
// evicted first (FIFO) when a sixth token is recorded.
const MaxActiveTokens = 5

type RefreshTokenRow struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type RefreshTokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *RefreshTokensRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Record appends a token to the user's list and trims it back to the cap in
// the same transaction, so concurrent logins cannot grow the list past the
// cap. Expired entries are purged on the way.
func (r *RefreshTokensRepo) Record(ctx context.Context, row RefreshTokenRow) error {
	return r.observe("refresh_tokens.record", func() error {
		return r.record(ctx, row)
	})
}

func (r *RefreshTokensRepo) record(ctx context.Context, row RefreshTokenRow) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.CreatedAt,
	)

	if err != nil {
		return err
	}

	if err := r.prune(ctx, tx, row.UserID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Rotate atomically replaces the presented token with a new one. The old
// token must be present in the stored list and unexpired, which makes the
// refresh flow revocation-aware: a logged-out or evicted token cannot be
// replayed even while its signature is still valid.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, userID, oldTokenHash string, next RefreshTokenRow) error {
	return r.observe("refresh_tokens.rotate", func() error {
		return r.rotate(ctx, userID, oldTokenHash, next)
	})
}

func (r *RefreshTokensRepo) rotate(ctx context.Context, userID, oldTokenHash string, next RefreshTokenRow) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock prevents two concurrent refreshes from both consuming the
	// same token.
	var id string

	err = tx.QueryRow(ctx,
		`SELECT id FROM refresh_tokens
		WHERE user_id = $1 AND token_hash = $2 AND expires_at > NOW()
		FOR UPDATE`,
		userID, oldTokenHash,
	).Scan(&id)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRefreshTokenNotFound
		}

		return err
	}

	_, err = tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)

	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		next.ID, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt,
	)

	if err != nil {
		return err
	}

	if err := r.prune(ctx, tx, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Revoke removes a single matching token (logout). Idempotent.
func (r *RefreshTokensRepo) Revoke(ctx context.Context, userID, tokenHash string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2`,
		userID, tokenHash,
	)

	return err
}

// RevokeAllForUser clears the whole list (account disable, password change).
func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
		userID,
	)

	return err
}

// PruneExpired lazily drops expired entries outside a rotation.
func (r *RefreshTokensRepo) PruneExpired(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= NOW()`,
		userID,
	)

	return err
}

func (r *RefreshTokensRepo) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1`,
		userID,
	).Scan(&n)

	return n, err
}

// prune drops expired rows and everything beyond the newest MaxActiveTokens.
func (r *RefreshTokensRepo) prune(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= NOW()`,
		userID,
	)

	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM refresh_tokens
		WHERE user_id = $1
		AND id NOT IN (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)`,
		userID, MaxActiveTokens,
	)

	return err
}
