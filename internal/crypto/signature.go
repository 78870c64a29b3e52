package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// FreshnessWindow максимально допустимое расхождение X-Timestamp
	// с часами сервера. Окно плюс точная байтовая привязка подписи -
	// единственная защита от replay, nonce-кеш не ведется
	FreshnessWindow = 5 * time.Minute

	// WatchPrefix префикс подписываемых байтов для роли watcher
	WatchPrefix = "WATCH"
	// CollectPrefix префикс подписываемых байтов для роли collector
	CollectPrefix = "COLLECT"
)

// CanonicalPayload собирает точную байтовую последовательность, которую
// подписывает клиент: method + "\n" + path + "\n" + timestamp + "\n" + bodyHash
// bodyHash - lower-case hex SHA256 от сырых байтов тела,
// пустая строка для запросов без тела
func CanonicalPayload(method, pathWithQuery, timestamp string, body []byte) []byte {
	bodyHash := ""
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		bodyHash = hex.EncodeToString(sum[:])
	}

	return []byte(method + "\n" + pathWithQuery + "\n" + timestamp + "\n" + bodyHash)
}

// ChannelPayload собирает подписываемые байты для аутентификации канала:
// prefix + "\n" + publicKey + "\n" + timestamp
// Разные префиксы для watch и collect исключают подмену роли
func ChannelPayload(prefix, publicKey, timestamp string) []byte {
	return []byte(prefix + "\n" + publicKey + "\n" + timestamp)
}

// VerifySignature проверяет Ed25519 подпись над payload
// Ключ и подпись приходят base64-кодированными; любое отклонение
// (размер, кодировка, арифметика) возвращает ошибку
func VerifySignature(publicKeyB64, signatureB64 string, payload []byte) error {
	rawKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(rawKey) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(rawKey))
	}

	rawSig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(rawSig) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(rawSig))
	}

	if !ed25519.Verify(ed25519.PublicKey(rawKey), payload, rawSig) {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}

// CheckFreshness проверяет, что timestamp парсится как ISO-8601 instant
// и отстоит от now не более чем на FreshnessWindow в любую сторону
func CheckFreshness(timestamp string, now time.Time) error {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp: %w", err)
	}

	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}

	if diff > FreshnessWindow {
		return fmt.Errorf("timestamp outside freshness window: %s", diff)
	}

	return nil
}
