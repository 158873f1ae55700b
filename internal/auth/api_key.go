package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/types"
)

// HashAPIKey creates a SHA-256 hash of the API key
func HashAPIKey(key string) string {
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}

// GenerateAPIKey generates a new API key
// The key is returned in its raw form, it should be hashed before storing in config
func GenerateAPIKey() string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return hex.EncodeToString(key)
}

// ValidateAPIKey looks the key up in the configuration and returns the caller
// it acts as. Operator keys may carry the zero address.
func ValidateAPIKey(cfg *config.Configuration, key string) (caller types.Address, operator bool, ok bool) {
	details, exists := cfg.Auth.APIKey.Keys[HashAPIKey(key)]
	if !exists || !details.IsActive {
		return types.ZeroAddress, false, false
	}
	caller = types.ZeroAddress
	if details.Caller != "" {
		parsed, err := types.ParseAddress(details.Caller)
		if err != nil {
			return types.ZeroAddress, false, false
		}
		caller = parsed
	}
	return caller, details.Operator, true
}
