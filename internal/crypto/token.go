package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RelayTokenSize размер случайной части relay токена в байтах (256 bit)
const RelayTokenSize = 32

// NewRelayToken генерирует криптографически случайный одноразовый токен
// URL-safe base64 без padding, >= 256 bit энтропии
func NewRelayToken() (string, error) {
	buf := make([]byte, RelayTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate relay token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
