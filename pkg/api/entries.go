package api

// UploadRequest представляет запрос на загрузку записи
type UploadRequest struct {
	DayID   string `json:"dayId"`   // календарная дата YYYY-MM-DD
	Payload string `json:"payload"` // base64 шифротекста
}

// UploadResponse представляет ответ на успешную загрузку
type UploadResponse struct {
	ID     string `json:"id"`     // UUID записи
	Status string `json:"status"` // всегда "stored"
}

// FetchedEntry представляет одну запись партнера в ответе fetch
type FetchedEntry struct {
	ID      string `json:"id"`
	DayID   string `json:"dayId"`   // каноничная YYYY-MM-DD
	Payload string `json:"payload"` // base64 шифротекста
}

// FetchResponse представляет ответ со списком недоставленных записей
type FetchResponse struct {
	Entries []FetchedEntry `json:"entries"`
}

// AckRequest представляет запрос на подтверждение доставки
type AckRequest struct {
	EntryIDs []string `json:"entryIds"`
}

// AckResponse представляет ответ с количеством удаленных записей
type AckResponse struct {
	Deleted int64 `json:"deleted"`
}
