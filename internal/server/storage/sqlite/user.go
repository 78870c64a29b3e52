package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
)

const userColumns = `public_key, pair_id, push_endpoint, push_p256dh, push_auth, created_at, last_seen`

// scanUser читает одну строку users с nullable полями
func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var endpoint, p256dh, auth sql.NullString
	var lastSeen sql.NullTime

	err := row.Scan(
		&user.PublicKey,
		&user.PairID,
		&endpoint,
		&p256dh,
		&auth,
		&user.CreatedAt,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	if endpoint.Valid {
		user.PushEndpoint = &endpoint.String
	}
	if p256dh.Valid {
		user.PushP256dh = &p256dh.String
	}
	if auth.Valid {
		user.PushAuth = &auth.String
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}

	return user, nil
}

// GetUser retrieves user by public key
func (s *Storage) GetUser(ctx context.Context, publicKey string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE public_key = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, publicKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetPartner retrieves the other user of the pair
func (s *Storage) GetPartner(ctx context.Context, pairID, selfKey string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE pair_id = ? AND public_key != ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, pairID, selfKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}

	return user, nil
}

// UpdatePushSubscription upserts the user's Web Push triple
func (s *Storage) UpdatePushSubscription(ctx context.Context, publicKey, endpoint, p256dh, auth string) error {
	query := `
		UPDATE users
		SET push_endpoint = ?, push_p256dh = ?, push_auth = ?
		WHERE public_key = ?
	`

	res, err := s.db.ExecContext(ctx, query, endpoint, p256dh, auth, publicKey)
	if err != nil {
		return fmt.Errorf("failed to update push subscription: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// ClearPushSubscription nulls the user's Web Push triple
func (s *Storage) ClearPushSubscription(ctx context.Context, publicKey string) error {
	query := `
		UPDATE users
		SET push_endpoint = NULL, push_p256dh = NULL, push_auth = NULL
		WHERE public_key = ?
	`

	if _, err := s.db.ExecContext(ctx, query, publicKey); err != nil {
		return fmt.Errorf("failed to clear push subscription: %w", err)
	}

	return nil
}

// DeleteUserCascade deletes the user's entries, then the user row
// Порядок обязателен: entries.author_key ссылается на users.public_key
func (s *Storage) DeleteUserCascade(ctx context.Context, publicKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE author_key = ?`, publicKey); err != nil {
		return fmt.Errorf("failed to delete user entries: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE public_key = ?`, publicKey)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
