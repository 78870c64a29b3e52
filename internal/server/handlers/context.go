package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// PublicKeyKey ключ для хранения публичного ключа вызывающего в контексте
	PublicKeyKey contextKey = "public_key"
	// PairIDKey ключ для хранения pair_id вызывающего в контексте
	PairIDKey contextKey = "pair_id"
)

// GetPublicKey извлекает публичный ключ вызывающего из контекста запроса
func GetPublicKey(ctx context.Context) (string, bool) {
	publicKey, ok := ctx.Value(PublicKeyKey).(string)
	return publicKey, ok
}

// GetPairID извлекает pair_id вызывающего из контекста запроса
func GetPairID(ctx context.Context) (string, bool) {
	pairID, ok := ctx.Value(PairIDKey).(string)
	return pairID, ok
}

// WithIdentity добавляет аутентифицированную личность в контекст
// Используется middleware подписи после успешной проверки
func WithIdentity(ctx context.Context, publicKey, pairID string) context.Context {
	ctx = context.WithValue(ctx, PublicKeyKey, publicKey)
	return context.WithValue(ctx, PairIDKey, pairID)
}
