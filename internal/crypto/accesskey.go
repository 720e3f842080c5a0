// Package crypto содержит хеширование ключей доступа участников.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// HashAccessKey хеширует ключ доступа через SHA256.
// Ключи выдаются сервером как случайные 32-байтовые значения, поэтому
// соление и растяжение не требуются: энтропия уже в ключе.
func HashAccessKey(accessKey string) (string, error) {
	if accessKey == "" {
		return "", fmt.Errorf("access key cannot be empty")
	}

	hash := sha256.Sum256([]byte(accessKey))

	return hex.EncodeToString(hash[:]), nil
}

// VerifyAccessKey проверяет ключ доступа против сохраненного хеша.
func VerifyAccessKey(accessKey, hashedKey string) error {
	if hashedKey == "" {
		return fmt.Errorf("hashed access key cannot be empty")
	}

	computed, err := HashAccessKey(accessKey)
	if err != nil {
		return fmt.Errorf("failed to compute access key hash: %w", err)
	}

	// Сравнение за постоянное время.
	if subtle.ConstantTimeCompare([]byte(computed), []byte(hashedKey)) != 1 {
		return fmt.Errorf("invalid access key")
	}

	return nil
}

// GenerateAccessKey выдает новый случайный ключ доступа.
func GenerateAccessKey() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate access key: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(keyBytes), nil
}
