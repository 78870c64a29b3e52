package models

import "time"

// User представляет пользователя в системе
// Публичный ключ - единственный идентификатор аккаунта
type User struct {
	PublicKey    string     `json:"public_key"`              // base64 Ed25519 ключ, глобально уникальный
	PairID       string     `json:"pair_id"`                 // ID текущей пары
	PushEndpoint *string    `json:"push_endpoint,omitempty"` // Web Push endpoint
	PushP256dh   *string    `json:"push_p256dh,omitempty"`   // Web Push p256dh ключ
	PushAuth     *string    `json:"push_auth,omitempty"`     // Web Push auth secret
	CreatedAt    time.Time  `json:"created_at"`              // время создания
	LastSeen     *time.Time `json:"last_seen,omitempty"`     // время последнего запроса
}

// HasPushSubscription сообщает, есть ли у пользователя полная push-подписка
func (u *User) HasPushSubscription() bool {
	return u.PushEndpoint != nil && u.PushP256dh != nil && u.PushAuth != nil
}
