// Package crypto seals values written to a backing store with AES-256-GCM.
//
// Keys are derived from a passphrase with PBKDF2-SHA256. Every sealed value
// carries its own random salt and nonce, so the passphrase is the only
// secret that has to be configured.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Prefix marks a sealed value. Values without it are treated as plaintext.
	Prefix = "enc:v1:"

	saltSize   = 16
	iterations = 100000
	keySize    = 32 // AES-256
)

// ErrCorrupt is returned when a sealed value cannot be opened.
var ErrCorrupt = errors.New("sealed value is corrupt or the key is wrong")

// Encryptor seals and opens strings with a passphrase-derived key.
type Encryptor struct {
	passphrase []byte

	// Only the most recently derived key is kept: opening the same stored
	// value repeatedly is cheap, and the cache stays bounded.
	mu       sync.Mutex
	lastSalt []byte
	lastKey  []byte
}

// NewEncryptor returns nil for an empty passphrase. A nil *Encryptor passes
// values through unchanged.
func NewEncryptor(passphrase string) *Encryptor {
	if passphrase == "" {
		return nil
	}
	return &Encryptor{passphrase: []byte(passphrase)}
}

func (e *Encryptor) key(salt []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastKey != nil && bytes.Equal(e.lastSalt, salt) {
		return e.lastKey
	}
	k := pbkdf2.Key(e.passphrase, salt, iterations, keySize, sha256.New)
	e.lastSalt = append([]byte(nil), salt...)
	e.lastKey = k
	return k
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext and returns Prefix followed by
// base64(salt | nonce | ciphertext).
func (e *Encryptor) Seal(plaintext string) (string, error) {
	if e == nil {
		return plaintext, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := newGCM(e.key(salt))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)

	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without Prefix are returned unchanged so that
// stores written before encryption was enabled stay readable.
func (e *Encryptor) Open(value string) (string, error) {
	if e == nil || !strings.HasPrefix(value, Prefix) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(data) < saltSize {
		return "", ErrCorrupt
	}
	salt, rest := data[:saltSize], data[saltSize:]

	gcm, err := newGCM(e.key(salt))
	if err != nil {
		return "", err
	}
	if len(rest) < gcm.NonceSize() {
		return "", ErrCorrupt
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plaintext), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}
