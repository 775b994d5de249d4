// Package crypto provides the cryptographic primitives for pinvault:
// AES-256-GCM authenticated encryption, Argon2id key derivation,
// HKDF-SHA256 subkey derivation, and one-way secret hashing for the
// attempt ledger.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// DeriveKey derives a 256-bit encryption key from a secret using Argon2id.
// The salt should be SaltLength bytes of cryptographically secure random data.
func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
}

// DeriveSubkey derives a purpose-bound 256-bit subkey from a parent key
// using HKDF-SHA256. The info string separates key domains: the same
// parent key with different info values yields independent subkeys.
func DeriveSubkey(parent []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, parent, nil, []byte(info))
	sub := make([]byte, KeyLength)
	if _, err := r.Read(sub); err != nil {
		return nil, fmt.Errorf("crypto: failed to derive subkey: %w", err)
	}
	return sub, nil
}

// HashSecret computes the one-way, fixed-output hash of a secret used by
// the attempt ledger. The plaintext secret never leaves this function;
// only the hex-encoded SHA-256 digest is returned.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HMACName computes a keyed HMAC-SHA256 of an entry name for lookup
// columns. Unlike HashSecret this is keyed, so stored digests cannot be
// brute-forced without the vault key.
func HMACName(key []byte, name string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewSalt returns SaltLength bytes of cryptographically secure random data.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewKey returns KeyLength bytes of cryptographically secure random data,
// suitable for use as a data encryption key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under a random nonce.
// The authentication tag is appended to the ciphertext; the nonce is
// returned separately and must be stored alongside the ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts AES-256-GCM ciphertext, verifying the authentication
// tag. A wrong key, tampering, or corruption all surface as
// ErrDecryptionFailed; callers must not try to distinguish them.
func Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation. Used to destroy
// DEKs and in-memory secret copies when a session ends.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// b is still "in use" after the loop, so the writes cannot be
	// optimized away.
	runtime.KeepAlive(b)
}
