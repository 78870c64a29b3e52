package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/models"
)

// CreateEntry inserts a new entry
func (s *Storage) CreateEntry(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO entries (id, author_key, pair_id, day_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.AuthorKey,
		entry.PairID,
		entry.DayID,
		entry.Payload,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	return nil
}

// CountEntriesForDay returns the number of entries by author for the day
func (s *Storage) CountEntriesForDay(ctx context.Context, authorKey, dayID string) (int, error) {
	query := `SELECT COUNT(*) FROM entries WHERE author_key = ? AND day_id = ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, authorKey, dayID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return count, nil
}

// ListUndelivered selects unacknowledged partner entries and stamps fetched_at
func (s *Storage) ListUndelivered(ctx context.Context, pairID, authorKey, since string, now time.Time) ([]*models.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id, author_key, pair_id, day_id, payload, created_at, fetched_at, acked_at
		FROM entries
		WHERE pair_id = ? AND author_key = ? AND day_id >= ? AND acked_at IS NULL
		ORDER BY day_id ASC
	`

	rows, err := tx.QueryContext(ctx, query, pairID, authorKey, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	var unfetched []string

	for rows.Next() {
		entry := &models.Entry{}
		var fetchedAt, ackedAt sql.NullTime

		err := rows.Scan(
			&entry.ID,
			&entry.AuthorKey,
			&entry.PairID,
			&entry.DayID,
			&entry.Payload,
			&entry.CreatedAt,
			&fetchedAt,
			&ackedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		if fetchedAt.Valid {
			entry.FetchedAt = &fetchedAt.Time
		} else {
			// Первая выборка партнером - штампуем в этой же транзакции
			stamped := now
			entry.FetchedAt = &stamped
			unfetched = append(unfetched, entry.ID)
		}
		if ackedAt.Valid {
			entry.AckedAt = &ackedAt.Time
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	if len(unfetched) > 0 {
		update := `UPDATE entries SET fetched_at = ? WHERE id IN (?` +
			strings.Repeat(", ?", len(unfetched)-1) + `)`

		args := make([]any, 0, len(unfetched)+1)
		args = append(args, now)
		for _, id := range unfetched {
			args = append(args, id)
		}

		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return nil, fmt.Errorf("failed to stamp fetched_at: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return entries, nil
}

// DeleteAcked deletes acknowledged entries
// Предикат одновременно запрещает self-ack (author_key = ключ партнера,
// не вызывающего) и cross-pair ack (pair_id вызывающего)
func (s *Storage) DeleteAcked(ctx context.Context, ids []string, pairID, authorKey string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM entries WHERE pair_id = ? AND author_key = ? AND id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`

	args := make([]any, 0, len(ids)+2)
	args = append(args, pairID, authorKey)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete acked entries: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// DeleteStaleEntries removes unacknowledged entries older than the cutoff
func (s *Storage) DeleteStaleEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE created_at < ? AND acked_at IS NULL`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale entries: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
