package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/gym-booking/internal/database"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct {
	DB *sql.DB
	d  database.Dialect
}

func NewTokenRepo(db *sql.DB, d database.Dialect) *TokenRepo { return &TokenRepo{DB: db, d: d} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, identityID, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx, r.d.Rebind(
		"INSERT INTO refresh_tokens (identity_id, token_hash, expires_at) VALUES (?,?,?)"),
		identityID, tokenHash, exp.UTC())
	return err
}

// ValidateRefresh returns the identity ID if a non-revoked, non-expired
// token exists.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var (
		identityID string
		expiresAt  time.Time
		revokedAt  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, r.d.Rebind(
		"SELECT identity_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1"),
		tokenHash).Scan(&identityID, &expiresAt, &revokedAt)
	if err != nil {
		return "", notFound(err)
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return "", ErrNotFound
	}
	return identityID, nil
}

// RevokeByHash marks an active token as revoked.  It returns ErrNotFound
// when no unrevoked row matched, so of two callers racing on one token
// only the first gets nil.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx, r.d.Rebind(
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL"),
		time.Now().UTC(), tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForIdentity revokes all of an identity's active tokens.
func (r *TokenRepo) RevokeAllForIdentity(ctx context.Context, identityID string) error {
	_, err := r.DB.ExecContext(ctx, r.d.Rebind(
		"UPDATE refresh_tokens SET revoked_at=? WHERE identity_id=? AND revoked_at IS NULL"),
		time.Now().UTC(), identityID)
	return err
}
