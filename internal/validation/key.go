package validation

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// ValidatePublicKey проверяет, что строка - корректный base64 Ed25519 ключ
// Ключ трактуется как непрозрачная печатная строка, но длина после
// декодирования должна быть ровно ed25519.PublicKeySize байт
func ValidatePublicKey(key string) error {
	if key == "" {
		return fmt.Errorf("public key cannot be empty")
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("public key must be valid base64")
	}

	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must decode to %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}

	return nil
}
