// Package security provides symmetric at-rest encryption for storage
// chunks, such as a bundle's store/ entries, independent of the
// post-quantum scheme in internal/crypto/pqc.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ChunkEncryption encrypts document chunks with a passphrase-derived
// AES-GCM key.
type ChunkEncryption struct {
	iterations int
	keyLength  int
}

func NewChunkEncryption() *ChunkEncryption {
	return &ChunkEncryption{
		iterations: 100000,
		keyLength:  32,
	}
}

// DeriveKey derives an encryption key from a user-supplied passphrase.
func (c *ChunkEncryption) DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key(
		[]byte(passphrase),
		salt,
		c.iterations,
		c.keyLength,
		sha256.New,
	)
}

// EncryptChunk encrypts a chunk before it is handed to a storage backend.
// chunkKey, the storage key the ciphertext will be written under, is bound
// in as additional authenticated data: a ciphertext swapped onto a
// different entry within the same archive fails to decrypt instead of
// silently returning the wrong chunk's plaintext under the right one's key.
func (c *ChunkEncryption) EncryptChunk(data []byte, key []byte, chunkKey string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, data, []byte(chunkKey))
	return ciphertext, nil
}

// DecryptChunk decrypts a chunk read back from a storage backend. chunkKey
// must be the same storage key passed to EncryptChunk or decryption fails.
func (c *ChunkEncryption) DecryptChunk(encrypted []byte, key []byte, chunkKey string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(chunkKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateSalt generates a random salt for key derivation.
func (c *ChunkEncryption) GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// EncodeKey encodes a key to base64 for storage alongside a bundle manifest.
func (c *ChunkEncryption) EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeKey decodes a base64-encoded key.
func (c *ChunkEncryption) DecodeKey(encoded string) ([]byte, error) {
	return base64.URLEncoding.DecodeString(encoded)
}
