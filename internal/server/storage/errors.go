package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrPairNotFound indicates that pair was not found in storage
	ErrPairNotFound = errors.New("pair not found")

	// ErrPartnerNotFound indicates that the caller's pair has no second user yet
	ErrPartnerNotFound = errors.New("partner not found")

	// ErrTokenNotFound indicates that relay token was not found
	ErrTokenNotFound = errors.New("relay token not found")

	// ErrTokenConsumed indicates that the compare-and-set on the relay token
	// lost: the token was already redeemed by another join
	ErrTokenConsumed = errors.New("relay token already consumed")

	// ErrEntryNotFound indicates that entry was not found
	ErrEntryNotFound = errors.New("entry not found")
)
