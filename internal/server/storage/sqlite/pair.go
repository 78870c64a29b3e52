package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/models"
	"github.com/aaronmgdr/paper-hearts/internal/server/storage"
)

// upsertUserQuery вставляет пользователя в пару или переносит его в новую
// Семантика re-pair несущая: прежнее членство в паре заменяется,
// push-подписка обнуляется
const upsertUserQuery = `
	INSERT INTO users (public_key, pair_id, push_endpoint, push_p256dh, push_auth, created_at)
	VALUES (?, ?, NULL, NULL, NULL, ?)
	ON CONFLICT (public_key) DO UPDATE SET
		pair_id = excluded.pair_id,
		push_endpoint = NULL,
		push_p256dh = NULL,
		push_auth = NULL
`

// CreatePairWithInitiator runs the initiate-pair transaction
func (s *Storage) CreatePairWithInitiator(ctx context.Context, pair *models.Pair, publicKey string, token *models.RelayToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Новая пара
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pairs (id, created_at) VALUES (?, ?)`,
		pair.ID, pair.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pair: %w", err)
	}

	// Инициатор: вставка или перенос в новую пару
	_, err = tx.ExecContext(ctx, upsertUserQuery, publicKey, pair.ID, pair.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert initiator: %w", err)
	}

	// Одноразовый токен
	_, err = tx.ExecContext(ctx,
		`INSERT INTO relay_tokens (token, initiator_key, pair_id, expires_at, consumed, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		token.Token, token.InitiatorKey, token.PairID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert relay token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetToken retrieves a relay token row
func (s *Storage) GetToken(ctx context.Context, token string) (*models.RelayToken, error) {
	query := `
		SELECT token, initiator_key, pair_id, expires_at, consumed, created_at
		FROM relay_tokens
		WHERE token = ?
	`

	rt := &models.RelayToken{}

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&rt.Token,
		&rt.InitiatorKey,
		&rt.PairID,
		&rt.ExpiresAt,
		&rt.Consumed,
		&rt.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get relay token: %w", err)
	}

	return rt, nil
}

// ConsumeTokenAndJoin runs the join-pair transaction
// Compare-and-set через AND consumed = 0 - единственная защита от гонки
// двух последователей с одним токеном
func (s *Storage) ConsumeTokenAndJoin(ctx context.Context, token, followerKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// CAS: гасим токен только если он еще не погашен
	res, err := tx.ExecContext(ctx,
		`UPDATE relay_tokens SET consumed = 1 WHERE token = ? AND consumed = 0`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to consume relay token: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Проиграли гонку - транзакция откатывается
		return storage.ErrTokenConsumed
	}

	// Пара из токена
	var pairID string
	err = tx.QueryRowContext(ctx,
		`SELECT pair_id FROM relay_tokens WHERE token = ?`, token,
	).Scan(&pairID)
	if err != nil {
		return fmt.Errorf("failed to resolve token pair: %w", err)
	}

	// Последователь: та же семантика re-pair, что и у инициатора
	_, err = tx.ExecContext(ctx, upsertUserQuery, followerKey, pairID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert follower: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteExpiredTokens removes token audit rows expired before the cutoff
func (s *Storage) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM relay_tokens WHERE expires_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
