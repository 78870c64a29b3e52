package models

import "time"

// Entry представляет одну запись - непрозрачный зашифрованный blob
// Сервер никогда не интерпретирует payload
type Entry struct {
	ID        string     `json:"id"`         // UUID записи
	AuthorKey string     `json:"author_key"` // публичный ключ автора
	PairID    string     `json:"pair_id"`    // ID пары
	DayID     string     `json:"day_id"`     // календарная дата YYYY-MM-DD
	Payload   []byte     `json:"payload"`    // непрозрачные байты шифротекста
	CreatedAt time.Time  `json:"created_at"` // время загрузки
	FetchedAt *time.Time `json:"fetched_at"` // время первой выборки партнером
	AckedAt   *time.Time `json:"acked_at"`   // время подтверждения (перед удалением)
}
