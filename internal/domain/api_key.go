package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// Environment constants
const (
	EnvTest = "test"
	EnvLive = "live"
)

const (
	apiKeyPrefix = "fp"
	apiKeyLength = 32
	base62Chars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var validEnvironments = map[string]bool{
	EnvTest: true,
	EnvLive: true,
}

// GenerateAPIKey gera uma nova API key com hash e prefix
// Retorna: (plainKey, hash, prefix)
// Formato: fp_<env>_<random32>
func GenerateAPIKey(env string) (string, string, string, error) {
	if !validEnvironments[env] {
		return "", "", "", errors.New("invalid environment: must be 'test' or 'live'")
	}

	randomPart, err := generateSecureRandomString(apiKeyLength)
	if err != nil {
		return "", "", "", err
	}

	plainKey := apiKeyPrefix + "_" + env + "_" + randomPart
	hash := HashAPIKey(plainKey)

	// Key prefix for display: fp_live_A1b2C3
	keyPrefix := plainKey[:14]

	return plainKey, hash, keyPrefix, nil
}

// HashAPIKey gera o hash SHA256 de uma API key
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// MatchAPIKey reports whether key hashes to one of the configured hashes.
// Comparison is constant time per candidate.
func MatchAPIKey(key string, hashes []string) bool {
	if key == "" {
		return false
	}
	got := []byte(HashAPIKey(key))
	matched := false
	for _, h := range hashes {
		if subtle.ConstantTimeCompare(got, []byte(strings.ToLower(h))) == 1 {
			matched = true
		}
	}
	return matched
}

// IsValidFormat verifica se a API key tem o formato correto
// Formato esperado: fp_<env>_<random32>
func IsValidFormat(key string) bool {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return false
	}

	if parts[0] != apiKeyPrefix {
		return false
	}

	if !validEnvironments[parts[1]] {
		return false
	}

	randomPart := parts[2]
	if len(randomPart) != apiKeyLength {
		return false
	}

	for _, char := range randomPart {
		if !strings.ContainsRune(base62Chars, char) {
			return false
		}
	}

	return true
}

// generateSecureRandomString gera uma string aleatória segura usando crypto/rand
func generateSecureRandomString(length int) (string, error) {
	result := make([]byte, length)
	base62Len := big.NewInt(int64(len(base62Chars)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", err
		}
		result[i] = base62Chars[num.Int64()]
	}

	return string(result), nil
}
