package storage

import (
	"context"

	"github.com/aaronmgdr/paper-hearts/internal/models"
)

// UserStorage defines interface for user persistence
// Public key is the only account identifier
type UserStorage interface {
	// GetUser retrieves user by public key
	// Returns ErrUserNotFound if user doesn't exist
	GetUser(ctx context.Context, publicKey string) (*models.User, error)

	// GetPartner retrieves the other user of the pair
	// Returns ErrPartnerNotFound if the caller is alone in the pair
	GetPartner(ctx context.Context, pairID, selfKey string) (*models.User, error)

	// UpdatePushSubscription upserts the user's Web Push triple
	// Returns ErrUserNotFound if user doesn't exist
	UpdatePushSubscription(ctx context.Context, publicKey, endpoint, p256dh, auth string) error

	// ClearPushSubscription nulls the user's Web Push triple
	// No-op if the user doesn't exist
	ClearPushSubscription(ctx context.Context, publicKey string) error

	// DeleteUserCascade deletes the user's entries, then the user row,
	// in a single transaction
	// Returns ErrUserNotFound if user doesn't exist
	DeleteUserCascade(ctx context.Context, publicKey string) error
}
