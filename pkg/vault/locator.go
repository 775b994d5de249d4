package vault

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Locator file name shape: "v-<hex of NFC(secret)>.db".
const (
	locatorPrefix = "v-"
	locatorSuffix = ".db"
)

// ErrNotLocator indicates a string is not a well-formed vault locator.
var ErrNotLocator = errors.New("vault: not a vault locator")

// Normalize canonicalizes a secret to NFC before any hashing or locator
// derivation, so a visually identical secret composed from different
// code point sequences always maps to the same vault.
func Normalize(secret string) string {
	return norm.NFC.String(secret)
}

// Locator derives the deterministic store identifier for a secret. The
// mapping is reversible: the normalized secret is embedded hex-encoded,
// which keeps arbitrary secrets filesystem-safe. Callers must pass an
// already normalized secret.
func Locator(secret string) string {
	return locatorPrefix + hex.EncodeToString([]byte(secret)) + locatorSuffix
}

// SecretFromLocator inverts Locator.
func SecretFromLocator(locator string) (string, error) {
	if !strings.HasPrefix(locator, locatorPrefix) || !strings.HasSuffix(locator, locatorSuffix) {
		return "", ErrNotLocator
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(locator, locatorPrefix), locatorSuffix)
	secret, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotLocator, err)
	}
	return string(secret), nil
}
