// Package secrets encrypts credential values at rest. Keys never leave
// the install: a random 256-bit key is generated on first start and
// kept in a mode-0600 file under the data directory.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailed means the blob was produced under a different key
// or has been corrupted. Callers treat it as "credentials unusable",
// never as a transient error.
var ErrDecryptionFailed = errors.New("decryption failed")

const keyFileName = "secrets.key"

// Store seals and opens secret blobs with XChaCha20-Poly1305.
type Store struct {
	key []byte
}

// Open loads the install key from dataDir, generating one on first use.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, keyFileName)
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %s has %d bytes, want %d", path, len(key), chacha20poly1305.KeySize)
		}
		return &Store{key: key}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return &Store{key: key}, nil
}

// Encrypt seals plaintext into a self-contained blob (nonce prefix +
// ciphertext + tag).
func (s *Store) Encrypt(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any authentication failure
// is reported as ErrDecryptionFailed.
func (s *Store) Decrypt(blob []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	if len(blob) < aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
