package storage

import (
	"context"
	"time"

	"github.com/aaronmgdr/paper-hearts/internal/models"
)

// PairStorage defines interface for the pairing lifecycle
type PairStorage interface {
	// CreatePairWithInitiator runs the initiate-pair transaction:
	// insert pair, upsert initiator (re-pair rewrites pair_id and clears
	// the push subscription), insert relay token
	CreatePairWithInitiator(ctx context.Context, pair *models.Pair, publicKey string, token *models.RelayToken) error

	// GetToken retrieves a relay token row
	// Returns ErrTokenNotFound if token doesn't exist
	GetToken(ctx context.Context, token string) (*models.RelayToken, error)

	// ConsumeTokenAndJoin runs the join-pair transaction: flips consumed
	// false -> true via compare-and-set, then upserts the follower into the
	// token's pair with the same re-pair semantics as initiate
	// Returns ErrTokenConsumed if the CAS lost (zero rows updated)
	ConsumeTokenAndJoin(ctx context.Context, token, followerKey string) error

	// DeleteExpiredTokens removes token audit rows that expired before the
	// given cutoff. Returns number of deleted tokens
	DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}
