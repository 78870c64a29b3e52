package storage

import (
	"context"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/models"
)

// EntryStorage defines interface for entry store-and-forward persistence
type EntryStorage interface {
	// CreateEntry inserts a new entry
	CreateEntry(ctx context.Context, entry *models.Entry) error

	// CountEntriesForDay returns the number of entries the author has
	// uploaded for the given day id. Used for the per-day upload ceiling
	CountEntriesForDay(ctx context.Context, authorKey, dayID string) (int, error)

	// ListUndelivered selects unacknowledged entries authored by authorKey
	// within pairID with day_id >= since, ordered by day_id ascending.
	// Rows with a null fetched_at are stamped with now in the same transaction
	ListUndelivered(ctx context.Context, pairID, authorKey, since string, now time.Time) ([]*models.Entry, error)

	// DeleteAcked deletes entries matching id IN ids AND pair_id = pairID
	// AND author_key = authorKey. The predicate makes self-ack and cross-pair
	// ack silently delete zero rows. Returns number of deleted entries
	DeleteAcked(ctx context.Context, ids []string, pairID, authorKey string) (int64, error)

	// DeleteStaleEntries removes unacknowledged entries created before the
	// cutoff (orphan cleanup). Returns number of deleted entries
	DeleteStaleEntries(ctx context.Context, cutoff time.Time) (int64, error)
}
