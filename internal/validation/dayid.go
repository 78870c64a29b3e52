package validation

import (
	"fmt"
	"regexp"
)

// DayIDPattern определяет допустимый формат day id: ровно YYYY-MM-DD
// Валидность даты намеренно не проверяется: 2099-13-45 проходит,
// 26-01-01 - нет. Сервер не интерпретирует календарь клиента
var DayIDPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DayIDLen длина корректного day id
const DayIDLen = 10

// ValidateDayID проверяет, что строка соответствует грамматике YYYY-MM-DD
func ValidateDayID(dayID string) error {
	if dayID == "" {
		return fmt.Errorf("dayId cannot be empty")
	}

	if len(dayID) != DayIDLen || !DayIDPattern.MatchString(dayID) {
		return fmt.Errorf("dayId must match YYYY-MM-DD")
	}

	return nil
}
